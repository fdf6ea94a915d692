// Package campaign drives scripted message campaigns across endpoint
// pairings to measure delivery latency and reliability. A campaign sends a
// fixed number of tracked messages from one sender according to a recipient
// selection policy, waits a bounded time for outstanding deliveries, then
// aggregates latency and success statistics. Campaigns are cancellable
// mid-run; cancellation is cooperative, so in-flight sends run to
// completion.
package campaign
