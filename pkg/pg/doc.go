// Package pg provides PostgreSQL pool bootstrap, goose migrations, and a
// health probe for the audit trail storage.
package pg
