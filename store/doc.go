// Package store defines the persistence interface the bridge needs from its
// surrounding system, together with the data model the bridge reads and
// mutates. Endpoints, pairings, messages and campaigns are owned by an
// external store; the bridge only depends on the operations declared here.
// MemoryStore is a complete in-process implementation used by the default
// daemon wiring and by tests.
package store
