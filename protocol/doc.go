// Package protocol implements the wire protocol spoken between the bridge
// and a chat endpoint over its persistent channel.
//
// Every request carries a caller-generated correlation id that the endpoint
// echoes in its reply; frames without a correlation id are unsolicited
// events. Events are decoded once, at the boundary, into a closed set of
// typed variants; unrecognized type tags are preserved as EventUnknown so
// callers can log and ignore them.
package protocol
