// Package model defines the provider-agnostic abstractions for interacting
// with language models inside channelmesh.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Route each process type (channel, branch, worker) to a backend
//
// Providers (openai, anthropic) implement Model in sub-packages so channels,
// branches and workers remain decoupled from vendor SDKs.
package model
