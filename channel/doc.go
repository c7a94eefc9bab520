// Package channel implements the user-facing conversation process.
//
// A Channel runs one goroutine that alternates between two sources: inbound
// messages from its Inbox and process events from the agent's bus. Each
// inbound message becomes a completion turn in which the model may reply,
// fork branches, delegate to workers, route follow-ups or cancel running
// processes through the per-turn channel tools. Results of those processes
// arrive later as events; the channel merges them into its history and
// retriggers itself with a synthetic system message so the model can react.
//
// Resource limits are enforced at spawn time (see SpawnBranch and
// SpawnWorker) and every spawned process is tied to the channel's lifetime.
package channel
