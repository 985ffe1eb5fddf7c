package sqlstore

import (
	"context"
	"fmt"

	"github.com/syssam/m2m"
)

// Repository persists records through a handler chain: the innermost
// handler writes the record with the store, and hooks such as
// m2m.Behavior.Hook run around it.
//
//	b, _ := m2m.Attach(store, relations)
//	repo := sqlstore.NewRepository(store, b.Hook("Article"))
//	article, err := repo.Get(ctx, "Article", 1)
type Repository struct {
	store   *Store
	handler m2m.Handler
}

// NewRepository returns a repository writing to store. The first hook
// is the outermost.
func NewRepository(store *Store, hooks ...m2m.Hook) *Repository {
	return &Repository{
		store:   store,
		handler: m2m.Chain(m2m.HandleFunc(store.persist), hooks...),
	}
}

// Get loads the record of the given type and key.
func (r *Repository) Get(ctx context.Context, typ string, key any) (*m2m.Record, error) {
	rec, err := r.store.record(ctx, typ, key)
	if err != nil {
		return nil, err
	}
	if err := r.handler.Handle(ctx, m2m.OpLoad, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts the record.
func (r *Repository) Create(ctx context.Context, rec *m2m.Record) error {
	return r.handler.Handle(ctx, m2m.OpInsert, rec)
}

// Update writes the fields of the record.
func (r *Repository) Update(ctx context.Context, rec *m2m.Record) error {
	return r.handler.Handle(ctx, m2m.OpUpdate, rec)
}

func (s *Store) persist(ctx context.Context, op m2m.Op, o m2m.Owner) error {
	rec, ok := o.(*m2m.Record)
	if !ok {
		return fmt.Errorf("sqlstore: unexpected owner type %T", o)
	}
	switch op {
	case m2m.OpLoad:
		return s.LoadEdges(ctx, rec)
	case m2m.OpInsert:
		return s.Create(ctx, rec)
	case m2m.OpUpdate:
		return s.Update(ctx, rec)
	default:
		return fmt.Errorf("sqlstore: unsupported operation %s", op)
	}
}
