package core

import "sync"

// Messages is an ordered conversation transcript.
type Messages []Content

// Clone returns a deep enough copy for independent appends.
func (m Messages) Clone() Messages {
	out := make(Messages, len(m))
	for i, c := range m {
		out[i] = c.Clone()
	}
	return out
}

// WithoutPendingCalls returns a copy in which every function call lacking a
// matching function response is removed. Entries left without parts are
// dropped. Providers reject transcripts that end in unanswered calls, which
// is what a snapshot taken in the middle of a tool round looks like.
func (m Messages) WithoutPendingCalls() Messages {
	answered := make(map[string]struct{})
	for _, c := range m {
		for _, fr := range c.FunctionResponses() {
			answered[callKey(fr.ID, fr.Name)] = struct{}{}
		}
	}

	out := make(Messages, 0, len(m))
	for _, c := range m {
		parts := make([]Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			if fc, ok := p.(FunctionCallPart); ok {
				if _, done := answered[callKey(fc.FunctionCall.ID, fc.FunctionCall.Name)]; !done {
					continue
				}
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, Content{Role: c.Role, Parts: parts})
	}
	return out
}

// callKey pairs calls with responses by id, or by name for providers that
// do not assign ids.
func callKey(id, name string) string {
	if id != "" {
		return "id:" + id
	}
	return "name:" + name
}

// History is the shared, lock protected conversation transcript of a channel.
//
// History is append-only. Readers take a Snapshot; writers either Append a
// single entry or hold the exclusive lock across a whole completion turn via
// Update. While Update runs, no other goroutine can read or append, which is
// what serializes process results behind an in-flight turn.
type History struct {
	mu       sync.RWMutex
	messages Messages
}

// NewHistory creates an empty history.
func NewHistory() *History { return &History{} }

// Snapshot returns a copy of the current transcript. Branches receive a
// snapshot and never touch the live history.
func (h *History) Snapshot() Messages {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messages.Clone()
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Append adds entries to the end of the transcript.
func (h *History) Append(entries ...Content) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, entries...)
}

// Update runs fn with exclusive access to the live transcript. The lock is
// held until fn returns, including any blocking model or tool calls made by
// fn. fn must only append to the slice it is given.
func (h *History) Update(fn func(messages *Messages)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.messages)
}
