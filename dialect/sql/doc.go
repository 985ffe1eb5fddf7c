// Package sql provides the database/sql driver adapter and the small
// statement builder used by the junction-table primitives.
//
// # Builder Types
//
//   - Builder: low-level string builder with identifier quoting and placeholders
//   - Selector: SELECT with joins, predicates, ordering and limit
//   - InsertBuilder: INSERT of a single row
//   - DeleteBuilder: DELETE with WHERE predicates
//
// # Dialect Support
//
// Identifiers are quoted with backticks for MySQL and SQLite and with double
// quotes for PostgreSQL. Placeholders are "?" or "$n" respectively:
//
//	sql.Dialect(dialect.Postgres).
//	    Delete("article_tags").
//	    Where(sql.Conds(map[string]any{"article_id": 1, "type": "review"}))
//	// DELETE FROM "article_tags" WHERE ("article_id" = $1) AND ("type" = $2)
//
// # Predicates
//
//	sql.EQ("type", "review")   // `type` = ?
//	sql.EQ("deleted_at", nil)  // `deleted_at` IS NULL
//	sql.In("id", 1, 2, 3)      // `id` IN (?, ?, ?)
//	sql.Conds(m)               // AND of EQ over the sorted keys of m
//
// # Drivers
//
// Driver adapts *sql.DB to dialect.Driver. StatsDriver and DebugDriver wrap
// a driver with statement statistics and debug logging.
package sql
