// Package testutil contains helpers shared by package tests: fluent builders
// for transcript content and inbound messages, a scripted model that replays
// canned steps, and a collector that records bus events. They are not
// intended for production usage.
package testutil
