// Package dialect provides the database dialect abstraction used by the
// m2m storage layer.
//
// The synchronizer itself never talks to a database. The SQL store in
// package sqlstore does, through the interfaces defined here, so that the
// same junction-table logic runs against PostgreSQL, MySQL and SQLite.
//
// # Dialect Constants
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// database/sql driver names that differ from the dialect name (for
// example "pgx" or "sqlite3") are mapped with Normalize.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface adds Commit and Rollback. Both Driver and Tx satisfy
// ExecQuerier, which is all the sqlgraph primitives need.
//
// # Usage
//
//	import (
//	    "github.com/syssam/m2m/dialect"
//	    "github.com/syssam/m2m/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// # Sub-packages
//
//   - dialect/sql: driver adapter and statement builder
//   - dialect/sql/sqlgraph: junction-table primitives and constraint errors
package dialect
