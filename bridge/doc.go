// Package bridge runs the always-on event listener supervisor. On a fixed
// tick it reconciles one long-lived listener per active endpoint, each
// feeding delivery events to the tracker, and broadcasts an aggregate
// connectivity snapshot. Listeners reconnect with exponential backoff and
// are cancelled outright when their endpoint goes inactive or the
// supervisor stops. The supervisor loop is the top-level recovery boundary:
// no listener failure, malformed event or tracker error is allowed to take
// it down.
package bridge
