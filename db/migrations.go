// Package db embeds the SQL migrations so the server binary carries its own
// schema. Each supported driver has its own directory under migrations/.
package db

import "embed"

// Migrations holds migrations/mysql and migrations/sqlite.
//
//go:embed migrations
var Migrations embed.FS
