// Package delivery owns the message delivery state machine: tracking-id
// generation and parsing, the matching rules that tie asynchronous delivery
// events back to in-flight test messages, and latency computation.
//
// Matching runs from most to least reliable. An exact tracking-id lookup
// resolves in O(1) and refuses to guess when more than one candidate exists.
// Messages without a tracking id fall back to content correlation: the most
// recently created undelivered message with the same sender/recipient
// pairing and identical text. Content may repeat, so the fallback can match
// an unrelated message under duplicate-content load; campaign traffic always
// carries tracking ids and never relies on it.
package delivery
