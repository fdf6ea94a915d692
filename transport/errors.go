package transport

import "errors"

// ErrTimeout is returned when no matching reply arrives within a command's
// deadline. The pending request is removed before the error is returned.
var ErrTimeout = errors.New("command timed out")

// ErrDisconnected is returned when the channel to an endpoint is closed or
// unreachable. Pending requests fail with it immediately on disconnect.
var ErrDisconnected = errors.New("endpoint disconnected")
