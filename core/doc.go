// Package core defines the vocabulary shared by every channelmesh package:
// process identifiers, inbound and outbound messages, the process event
// union broadcast on the bus, the conversation History and the typed errors
// surfaced by the spawn protocol.
package core
