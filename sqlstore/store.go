// Package sqlstore implements m2m.Storage for SQL databases on top of
// the junction-table primitives of package sqlgraph.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syssam/m2m"
	"github.com/syssam/m2m/dialect"
	"github.com/syssam/m2m/dialect/sql/sqlgraph"
)

// Store is an m2m.Storage backed by a SQL driver. Entity types and
// relations are resolved through the nodes and edges of its schema:
// a relation of an owner type is the edge of the same name going out
// of the owner node.
type Store struct {
	drv    dialect.Driver      // nil inside a transaction
	exec   dialect.ExecQuerier // drv, or the running transaction
	schema *sqlgraph.Schema
	logger *slog.Logger
}

var (
	_ m2m.Storage    = (*Store)(nil)
	_ m2m.Transactor = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. A nil logger uses slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a store running statements on drv. The store shares
// schema with the caller: when schema.Dialect is empty, New sets it to
// the dialect of the driver, and a dialect already set is kept. The
// schema must not be changed while the store is in use.
func New(drv dialect.Driver, schema *sqlgraph.Schema, opts ...Option) *Store {
	if schema.Dialect == "" {
		schema.Dialect = dialect.Normalize(drv.Dialect())
	}
	s := &Store{
		drv:    drv,
		exec:   drv,
		schema: schema,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the schema of the store.
func (s *Store) Schema() *sqlgraph.Schema {
	return s.schema
}

// Find returns the entity of the target type with the given key.
func (s *Store) Find(ctx context.Context, target string, key any) (m2m.Entity, error) {
	rec, err := s.record(ctx, target, key)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteWhere deletes the rows of table matching all pairs of cond.
func (s *Store) DeleteWhere(ctx context.Context, table string, cond map[string]any) (int64, error) {
	n, err := s.schema.DeleteRows(ctx, s.exec, table, cond)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "sqlstore: deleted junction rows", "table", table, "rows", n)
	return n, nil
}

// UnlinkAll removes all junction rows of the owner relation.
func (s *Store) UnlinkAll(ctx context.Context, owner m2m.Owner, relation string, deleteTargets bool) (int64, error) {
	n, err := s.schema.DeleteEdges(ctx, s.exec, owner.Type(), relation, owner.Key(), deleteTargets)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "sqlstore: unlinked relation",
		"type", owner.Type(), "key", owner.Key(), "relation", relation, "rows", n, "delete_targets", deleteTargets)
	return n, nil
}

// Link inserts one junction row between owner and target.
func (s *Store) Link(ctx context.Context, owner m2m.Owner, relation string, target m2m.Entity, extra map[string]any) error {
	err := s.schema.AddEdge(ctx, s.exec, owner.Type(), relation, owner.Key(), target.Key(), extra)
	return convert(err, "")
}

// Junction returns the junction table metadata of the owner relation.
func (s *Store) Junction(_ context.Context, owner m2m.Owner, relation string) (m2m.Junction, error) {
	e, err := s.schema.Edge(owner.Type(), relation)
	if err != nil {
		return m2m.Junction{}, err
	}
	return m2m.Junction{
		Table:        e.Spec.Table,
		OwnerColumn:  e.OwnerColumn(),
		TargetColumn: e.TargetColumn(),
	}, nil
}

// WithTx runs fn with a store bound to a new transaction. The transaction
// is committed if fn returns nil and rolled back otherwise. Calls from
// within a transaction reuse it.
func (s *Store) WithTx(ctx context.Context, fn func(m2m.Storage) error) error {
	if s.drv == nil {
		return fn(s)
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: starting a transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	txs := &Store{exec: tx, schema: s.schema, logger: s.logger}
	if err := fn(txs); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %w", err, &m2m.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing transaction: %w", err)
	}
	return nil
}

// Load returns the entity of the given type and key with all of its
// relations loaded, ready to be materialized.
func (s *Store) Load(ctx context.Context, typ string, key any) (*m2m.Record, error) {
	rec, err := s.record(ctx, typ, key)
	if err != nil {
		return nil, err
	}
	if err := s.LoadEdges(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadEdges loads every relation of the record.
func (s *Store) LoadEdges(ctx context.Context, rec *m2m.Record) error {
	n, err := s.schema.Node(rec.Type())
	if err != nil {
		return err
	}
	for _, e := range n.Edges {
		related, err := s.LoadRelated(ctx, rec, e.Name)
		if err != nil {
			return err
		}
		rec.SetEdges(e.Name, related)
	}
	return nil
}

// LoadRelated returns the entities linked to owner through the relation,
// ordered by their key.
func (s *Store) LoadRelated(ctx context.Context, owner m2m.Owner, relation string) ([]m2m.Entity, error) {
	e, err := s.schema.Edge(owner.Type(), relation)
	if err != nil {
		return nil, err
	}
	rows, err := s.schema.QueryNeighbors(ctx, s.exec, owner.Type(), relation, owner.Key())
	if err != nil {
		return nil, err
	}
	related := make([]m2m.Entity, len(rows))
	for i, row := range rows {
		related[i] = m2m.NewRecord(e.To.Type, e.To.ID.Column, row)
	}
	return related, nil
}

// Create inserts the record and sets its key when it was generated
// by the database.
func (s *Store) Create(ctx context.Context, rec *m2m.Record) error {
	id, err := s.schema.CreateNode(ctx, s.exec, rec.Type(), rec.Fields())
	if err != nil {
		return convert(err, rec.Type())
	}
	rec.Set(rec.KeyColumn(), id)
	return nil
}

// Update writes all fields of the record.
func (s *Store) Update(ctx context.Context, rec *m2m.Record) error {
	return convert(s.schema.UpdateNode(ctx, s.exec, rec.Type(), rec.Key(), rec.Fields()), rec.Type())
}

func (s *Store) record(ctx context.Context, typ string, key any) (*m2m.Record, error) {
	row, err := s.schema.QueryNode(ctx, s.exec, typ, key)
	if err != nil {
		return nil, convert(err, typ)
	}
	n, err := s.schema.Node(typ)
	if err != nil {
		return nil, err
	}
	return m2m.NewRecord(typ, n.ID.Column, row), nil
}

// convert maps sqlgraph errors to their m2m counterparts.
func convert(err error, typ string) error {
	var nf *sqlgraph.NotFoundError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &nf):
		return m2m.NewNotFoundErrorWithID(typ, nf.ID())
	case sqlgraph.IsConstraintError(err):
		return m2m.NewConstraintError(err.Error(), err)
	default:
		return err
	}
}
