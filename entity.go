package m2m

import (
	"maps"
	"slices"
)

// Entity is a persisted record as seen by the synchronizer.
type Entity interface {
	// Key returns the primary key of the entity.
	Key() any
	// Value returns the value of the named column and whether the
	// entity has such a column.
	Value(column string) (any, bool)
}

// Owner is an entity that owns one or more many-to-many relations.
type Owner interface {
	Entity
	// Type returns the entity type name, for example "Article".
	Type() string
	// Edges returns the loaded related collection of the relation. It returns
	// a *NotLoadedError if the collection was never loaded.
	Edges(relation string) ([]Entity, error)
	// RelationAttribute returns the desired key set held by the named
	// attribute. The second value is false when the attribute is not set.
	RelationAttribute(name string) ([]any, bool)
	// SetRelationAttribute replaces the key set held by the named attribute.
	SetRelationAttribute(name string, keys []any)
}

// Record is a generic, map-backed Owner. It is not safe for concurrent use.
type Record struct {
	typ    string
	keyCol string
	fields map[string]any
	edges  map[string][]Entity
	attrs  map[string][]any
}

var _ Owner = (*Record)(nil)

// NewRecord returns a record of the given type. keyColumn names the
// field holding the primary key.
func NewRecord(typ, keyColumn string, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{
		typ:    typ,
		keyCol: keyColumn,
		fields: fields,
		edges:  make(map[string][]Entity),
		attrs:  make(map[string][]any),
	}
}

// Type returns the record type.
func (r *Record) Type() string { return r.typ }

// KeyColumn returns the name of the primary key field.
func (r *Record) KeyColumn() string { return r.keyCol }

// Key returns the primary key of the record.
func (r *Record) Key() any { return r.fields[r.keyCol] }

// Value returns the value of the named field.
func (r *Record) Value(column string) (any, bool) {
	v, ok := r.fields[column]
	return v, ok
}

// Set sets the value of the named field.
func (r *Record) Set(column string, v any) {
	r.fields[column] = v
}

// Fields returns a copy of the record fields.
func (r *Record) Fields() map[string]any {
	return maps.Clone(r.fields)
}

// Edges returns the loaded collection of the relation.
func (r *Record) Edges(relation string) ([]Entity, error) {
	es, ok := r.edges[relation]
	if !ok {
		return nil, NewNotLoadedError(relation)
	}
	return es, nil
}

// SetEdges sets the loaded collection of the relation.
func (r *Record) SetEdges(relation string, es []Entity) {
	if es == nil {
		es = []Entity{}
	}
	r.edges[relation] = es
}

// RelationAttribute returns the key set held by the named attribute.
func (r *Record) RelationAttribute(name string) ([]any, bool) {
	keys, ok := r.attrs[name]
	if !ok || keys == nil {
		return nil, false
	}
	return slices.Clone(keys), true
}

// SetRelationAttribute replaces the key set held by the named attribute.
// A nil slice unsets the attribute.
func (r *Record) SetRelationAttribute(name string, keys []any) {
	if keys == nil {
		delete(r.attrs, name)
		return
	}
	r.attrs[name] = slices.Clone(keys)
}
