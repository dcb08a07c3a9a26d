// Package db embeds the receipt journal schema.
package db

import _ "embed"

// Schema is applied on startup. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
