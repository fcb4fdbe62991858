// Package migrations embeds the goose migrations for each SQL job store.
package migrations

import "embed"

// Migrations holds one directory per dialect: "postgres" and "sqlite".
//
//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS
