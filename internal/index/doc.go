// Package index owns the in-memory catalog entries.
//
// EntryIndex is the only place entries are added or removed, which keeps the
// derived used-by edges consistent with every entry's resolved ids. It also
// provides the dependents-first ordering used to plan drops and creates, and
// the allocator for the cosmetic 32-bit OIDs.
package index
