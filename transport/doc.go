// Package transport maintains the persistent channels between the bridge
// and its endpoints. A Connection owns one websocket, an inbound receive
// loop and a table of outstanding correlation ids awaiting replies; the Pool
// creates and reuses Connections per endpoint and exposes the synchronous
// send-command-await-reply operation on top of them.
//
// Replies are matched strictly by correlation id, never by arrival order.
// Frames whose correlation id matches no outstanding request are dispatched
// to the registered event handlers, the same path unsolicited events take.
package transport
