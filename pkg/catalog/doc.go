// Package catalog defines the public types and contracts of the catalog
// bootstrap engine: object identifiers, the closed set of catalog item
// payloads, durable store records, the store and secrets interfaces, and
// the error classes surfaced to callers.
//
// Concrete implementations live under internal/. The in-memory catalog is
// internal/state, the durable stores are internal/durable/badgerstore and
// internal/durable/pgstore, and internal/bootstrap wires everything together.
package catalog
