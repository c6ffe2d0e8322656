// Package sql parses, plans and renders the CREATE statements stored in the
// catalog.
//
// The dialect covers what the catalog persists: tables, views, materialized
// views, indexes, sources, sinks, list types, secrets and connections. Item
// references are either fully qualified names or resolved references of the
// form [u1 AS db.schema.item]. Render produces a canonical text that parses
// back to the same statement, which is what lets ReplaceIDs rewrite a stored
// definition to point at migrated objects.
//
// Plan resolves references against a Snapshot and fails with
// catalog.UnknownIDError or catalog.UnknownNameError when a reference is not
// present yet; every other failure is an ordinary error.
package sql
