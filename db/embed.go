// Package db embeds the SQL migrations and seeders applied by cmd/cli.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seeders/*.sql
var Seeders embed.FS
