// Package completion runs a model through a bounded tool-calling loop.
//
// An Agent appends the prompt to a caller-owned transcript, calls the model,
// executes any requested tools through a tool.Registry and repeats until the
// model answers in plain text. A Hook observes each step and may terminate
// the turn before a tool runs.
package completion
