// Package checksum computes the fingerprints that decide whether a built-in
// catalog object changed between releases.
//
// A fingerprint is the hex SHA-256 of a normalized definition. Normalization
// removes SQL comments, folds everything outside string literals to lower
// case and collapses whitespace, so reformatting a built-in definition never
// forces a migration while any semantic edit does.
//
//	fp := checksum.Definition("CREATE VIEW mz_catalog.v AS SELECT 1")
//	fp = checksum.Columns([]catalog.Column{{Name: "id", Type: "text"}})
package checksum
