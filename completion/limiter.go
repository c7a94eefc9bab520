package completion

// turnLimiter counts tool-calling rounds within one prompt. It is owned by a
// single Prompt call.
type turnLimiter struct {
	max   int
	count int
}

// newTurnLimiter creates a limiter allowing max rounds. max <= 0 means unlimited.
func newTurnLimiter(max int) *turnLimiter {
	return &turnLimiter{max: max}
}

// Increment records a round and reports whether it is still within the limit.
func (l *turnLimiter) Increment() bool {
	l.count++
	return l.max <= 0 || l.count <= l.max
}
