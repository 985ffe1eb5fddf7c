package m2m

import (
	"fmt"
	"maps"
	"slices"
)

// Relation property names, as used in configuration files and errors.
const (
	FieldTarget          = "modelClass"
	FieldAttribute       = "attribute"
	FieldKeyColumn       = "pkColumnName"
	FieldExtraColumns    = "extraColumns"
	FieldDeleteTargets   = "deleteAllRelatedEntriesBeforeSave"
	FieldUnlinkCondition = "additionalUnlinkCondition"
)

// Relation configures the synchronization of one many-to-many relation
// of an owner type.
type Relation struct {
	// Name of the relation, for example "tags".
	Name string `yaml:"-"`
	// Target is the entity type of the related side. Mandatory.
	Target string `yaml:"modelClass"`
	// Attribute is the owner attribute holding the desired key set. Mandatory.
	Attribute string `yaml:"attribute"`
	// KeyColumn is the column read from each related entity on materialize. Mandatory.
	KeyColumn string `yaml:"pkColumnName"`
	// ExtraColumns are written onto every junction row created by reconcile.
	ExtraColumns map[string]any `yaml:"extraColumns,omitempty"`
	// DeleteTargets also deletes the target rows when all links are removed.
	// It has no effect when UnlinkCondition is set.
	DeleteTargets bool `yaml:"deleteAllRelatedEntriesBeforeSave,omitempty"`
	// UnlinkCondition restricts the junction rows removed by reconcile to
	// those matching all of its column-value pairs. Empty means all rows
	// of the owner are removed.
	UnlinkCondition map[string]any `yaml:"additionalUnlinkCondition,omitempty"`
}

func (r *Relation) clone() *Relation {
	c := *r
	c.ExtraColumns = maps.Clone(r.ExtraColumns)
	c.UnlinkCondition = maps.Clone(r.UnlinkCondition)
	return &c
}

// check reports the first mandatory property that is not set.
func (r *Relation) check() error {
	for _, f := range []struct{ name, value string }{
		{FieldAttribute, r.Attribute},
		{FieldTarget, r.Target},
		{FieldKeyColumn, r.KeyColumn},
	} {
		if f.value == "" {
			return NewConfigError(r.Name, f.name)
		}
	}
	return nil
}

// Registry holds the relation configurations of an owner type,
// in declaration order. It is immutable and safe for concurrent use.
type Registry struct {
	names     []string
	relations map[string]*Relation
}

// NewRegistry returns a registry holding copies of the given relations.
// It fails with a *ConfigError if no relation is given or a relation name is
// empty or duplicated. Mandatory properties are checked on first use, or
// eagerly by Validate.
func NewRegistry(relations ...*Relation) (*Registry, error) {
	if len(relations) == 0 {
		return nil, NewConfigError("", "relations")
	}
	r := &Registry{relations: make(map[string]*Relation, len(relations))}
	for i, rel := range relations {
		switch {
		case rel == nil:
			return nil, &ConfigError{Msg: fmt.Sprintf("relation #%d is nil", i)}
		case rel.Name == "":
			return nil, &ConfigError{Msg: fmt.Sprintf("relation #%d has no name", i)}
		case r.relations[rel.Name] != nil:
			return nil, &ConfigError{Relation: rel.Name, Msg: "declared more than once"}
		}
		r.names = append(r.names, rel.Name)
		r.relations[rel.Name] = rel.clone()
	}
	return r, nil
}

// Validate checks the mandatory properties of all relations.
func (r *Registry) Validate() error {
	for _, name := range r.names {
		if err := r.relations[name].check(); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the relation names in declaration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Relations returns copies of all relations in declaration order.
func (r *Registry) Relations() []*Relation {
	rs := make([]*Relation, len(r.names))
	for i, name := range r.names {
		rs[i] = r.relations[name].clone()
	}
	return rs
}

// Relation returns a copy of the named relation after checking
// its mandatory properties.
func (r *Registry) Relation(name string) (*Relation, error) {
	rel, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := rel.check(); err != nil {
		return nil, err
	}
	return rel.clone(), nil
}

// Get returns the value of a relation property by its configuration name.
// Mandatory properties (attribute, modelClass, pkColumnName) fail with a
// *ConfigError when they are not set. Optional properties return their zero
// value. An unset additionalUnlinkCondition is returned as false.
func (r *Registry) Get(relation, field string) (any, error) {
	rel, err := r.lookup(relation)
	if err != nil {
		return nil, err
	}
	var v string
	switch field {
	case FieldAttribute:
		v = rel.Attribute
	case FieldTarget:
		v = rel.Target
	case FieldKeyColumn:
		v = rel.KeyColumn
	case FieldExtraColumns:
		return maps.Clone(rel.ExtraColumns), nil
	case FieldDeleteTargets:
		return rel.DeleteTargets, nil
	case FieldUnlinkCondition:
		if len(rel.UnlinkCondition) == 0 {
			return false, nil
		}
		return maps.Clone(rel.UnlinkCondition), nil
	default:
		return nil, &ConfigError{Relation: relation, Field: field, Msg: fmt.Sprintf("unknown property %q", field)}
	}
	if v == "" {
		return nil, NewConfigError(relation, field)
	}
	return v, nil
}

// Attribute returns the owner attribute of the relation.
func (r *Registry) Attribute(relation string) (string, error) {
	return r.mandatory(relation, FieldAttribute)
}

// Target returns the target entity type of the relation.
func (r *Registry) Target(relation string) (string, error) {
	return r.mandatory(relation, FieldTarget)
}

// KeyColumn returns the key column of the relation targets.
func (r *Registry) KeyColumn(relation string) (string, error) {
	return r.mandatory(relation, FieldKeyColumn)
}

func (r *Registry) mandatory(relation, field string) (string, error) {
	v, err := r.Get(relation, field)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Registry) lookup(name string) (*Relation, error) {
	rel, ok := r.relations[name]
	if !ok {
		return nil, &ConfigError{Relation: name, Msg: "relation is not configured"}
	}
	return rel, nil
}
