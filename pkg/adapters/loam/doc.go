// Package loam stores entities, audit trails and inboxes as documents in a
// directory managed by the loam library.
//
// Each record is one file: frontmatter carries the id, kind and status so
// the tree stays readable, and the body holds the record as JSON. The
// directory is read once at Open and written through on every change, so
// it suits single-process deployments and local development. Use the
// redis or sql adapters when several processes share state.
package loam
