package m2m_test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/syssam/m2m"
)

// memEdge describes the junction table of one relation in memStorage.
type memEdge struct {
	m2m.Junction
	target string
}

// memStorage is an in-memory m2m.Storage used to observe the
// effects of the synchronizer.
type memStorage struct {
	entities map[string]map[any]*m2m.Record
	edges    map[string]memEdge
	rows     map[string][]map[string]any // junction table -> rows
	calls    []string
	linkErr  error
	txs      int
}

var (
	_ m2m.Storage    = (*memStorage)(nil)
	_ m2m.Transactor = (*memStorage)(nil)
)

func newMemStorage() *memStorage {
	s := &memStorage{
		entities: make(map[string]map[any]*m2m.Record),
		edges:    make(map[string]memEdge),
		rows:     make(map[string][]map[string]any),
	}
	s.addEdge("tags", "Tag", m2m.Junction{Table: "article_tags", OwnerColumn: "article_id", TargetColumn: "tag_id"})
	s.addEdge("categories", "Category", m2m.Junction{Table: "article_categories", OwnerColumn: "article_id", TargetColumn: "category_id"})
	return s
}

func (s *memStorage) addEdge(relation, target string, j m2m.Junction) {
	s.edges[relation] = memEdge{Junction: j, target: target}
}

func (s *memStorage) addEntity(typ string, keys ...int) {
	if s.entities[typ] == nil {
		s.entities[typ] = make(map[any]*m2m.Record)
	}
	for _, k := range keys {
		s.entities[typ][k] = m2m.NewRecord(typ, "id", map[string]any{"id": k, "name": fmt.Sprintf("%s-%d", typ, k)})
	}
}

func (s *memStorage) addRow(relation string, row map[string]any) {
	e := s.edges[relation]
	s.rows[e.Table] = append(s.rows[e.Table], row)
}

// linked returns the sorted target keys linked to owner through relation.
func (s *memStorage) linked(relation string, owner any) []int {
	e := s.edges[relation]
	var keys []int
	for _, r := range s.rows[e.Table] {
		if r[e.OwnerColumn] == owner {
			keys = append(keys, r[e.TargetColumn].(int))
		}
	}
	sort.Ints(keys)
	return keys
}

// load sets the edges of the owner from the junction rows, as a
// persistence layer does before materialize.
func (s *memStorage) load(owner *m2m.Record, relation string) {
	e := s.edges[relation]
	var related []m2m.Entity
	for _, k := range s.linked(relation, owner.Key()) {
		related = append(related, s.entities[e.target][k])
	}
	owner.SetEdges(relation, related)
}

func (s *memStorage) Find(_ context.Context, target string, key any) (m2m.Entity, error) {
	s.calls = append(s.calls, fmt.Sprintf("find %s %v", target, key))
	if e, ok := s.entities[target][key]; ok {
		return e, nil
	}
	return nil, m2m.NewNotFoundErrorWithID(target, key)
}

func (s *memStorage) DeleteWhere(_ context.Context, table string, cond map[string]any) (int64, error) {
	s.calls = append(s.calls, "delete "+table)
	var n int64
	s.rows[table] = slices.DeleteFunc(s.rows[table], func(r map[string]any) bool {
		for k, v := range cond {
			if r[k] != v {
				return false
			}
		}
		n++
		return true
	})
	return n, nil
}

func (s *memStorage) UnlinkAll(_ context.Context, owner m2m.Owner, relation string, deleteTargets bool) (int64, error) {
	s.calls = append(s.calls, fmt.Sprintf("unlink %s %t", relation, deleteTargets))
	e := s.edges[relation]
	var n int64
	s.rows[e.Table] = slices.DeleteFunc(s.rows[e.Table], func(r map[string]any) bool {
		if r[e.OwnerColumn] != owner.Key() {
			return false
		}
		if deleteTargets {
			delete(s.entities[e.target], r[e.TargetColumn])
		}
		n++
		return true
	})
	return n, nil
}

func (s *memStorage) Link(_ context.Context, owner m2m.Owner, relation string, target m2m.Entity, extra map[string]any) error {
	s.calls = append(s.calls, fmt.Sprintf("link %s %v", relation, target.Key()))
	if s.linkErr != nil {
		return s.linkErr
	}
	e := s.edges[relation]
	row := maps.Clone(extra)
	if row == nil {
		row = make(map[string]any)
	}
	row[e.OwnerColumn] = owner.Key()
	row[e.TargetColumn] = target.Key()
	for _, r := range s.rows[e.Table] {
		if r[e.OwnerColumn] == owner.Key() && r[e.TargetColumn] == target.Key() {
			return m2m.NewConstraintError("duplicate link", nil)
		}
	}
	s.rows[e.Table] = append(s.rows[e.Table], row)
	return nil
}

func (s *memStorage) Junction(_ context.Context, _ m2m.Owner, relation string) (m2m.Junction, error) {
	s.calls = append(s.calls, "junction "+relation)
	e, ok := s.edges[relation]
	if !ok {
		return m2m.Junction{}, fmt.Errorf("unknown relation %q", relation)
	}
	return e.Junction, nil
}

// WithTx snapshots the junction rows and restores them when fn fails.
func (s *memStorage) WithTx(_ context.Context, fn func(m2m.Storage) error) error {
	s.txs++
	snapshot := make(map[string][]map[string]any, len(s.rows))
	for t, rows := range s.rows {
		snapshot[t] = slices.Clone(rows)
	}
	if err := fn(s); err != nil {
		s.rows = snapshot
		return err
	}
	return nil
}

// plainStorage hides the Transactor implementation of memStorage.
type plainStorage struct{ m2m.Storage }
