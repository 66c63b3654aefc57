package sql

import _ "embed"

// Schema creates every table and index the store needs. It is idempotent.
//
//go:embed schema.sql
var Schema string
