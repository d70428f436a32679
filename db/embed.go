// Package db embeds the PostgreSQL schema for the catalog.
package db

import _ "embed"

// Schema creates the products table and its listing index. Every statement
// is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
