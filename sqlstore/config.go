package sqlstore

import (
	"fmt"

	"github.com/syssam/m2m"
	"github.com/syssam/m2m/dialect/sql/sqlgraph"
)

// NodeConfig maps an entity type to its table.
type NodeConfig struct {
	Type  string `yaml:"type"`
	Table string `yaml:"table"`
	// Key is the primary key column. Defaults to "id".
	Key string `yaml:"key,omitempty"`
}

// EdgeConfig declares the junction table of a relation. Table and
// Columns default to the names derived from the node tables.
type EdgeConfig struct {
	From    string   `yaml:"from"`
	Name    string   `yaml:"name"`
	To      string   `yaml:"to"`
	Table   string   `yaml:"table,omitempty"`
	Columns []string `yaml:"columns,omitempty"`
	Inverse bool     `yaml:"inverse,omitempty"`
}

// SchemaConfig is the YAML representation of a sqlgraph schema.
//
//	nodes:
//	  - {type: Article, table: articles}
//	  - {type: Tag, table: tags}
//	edges:
//	  - {from: Article, name: tags, to: Tag, table: article_tags, columns: [article_id, tag_id]}
type SchemaConfig struct {
	Nodes []NodeConfig `yaml:"nodes"`
	Edges []EdgeConfig `yaml:"edges,omitempty"`
}

// Build returns the schema described by the configuration.
func (c *SchemaConfig) Build(dialect string) (*sqlgraph.Schema, error) {
	g := &sqlgraph.Schema{Dialect: dialect}
	for _, n := range c.Nodes {
		node := &sqlgraph.Node{Type: n.Type, NodeSpec: sqlgraph.NodeSpec{Table: n.Table}}
		if n.Key != "" {
			node.ID = &sqlgraph.FieldSpec{Column: n.Key}
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, e := range c.Edges {
		spec := &sqlgraph.EdgeSpec{Rel: sqlgraph.M2M, Inverse: e.Inverse, Table: e.Table, Columns: e.Columns}
		if err := g.AddE(e.Name, spec, e.From, e.To); err != nil {
			return nil, fmt.Errorf("sqlstore: edge %s.%s: %w", e.From, e.Name, err)
		}
	}
	return g, nil
}

// AddRelations adds an edge with default junction naming for every
// relation of the owner type that has no edge in the schema yet.
func AddRelations(g *sqlgraph.Schema, owner string, rels ...*m2m.Relation) error {
	for _, rel := range rels {
		if _, err := g.Edge(owner, rel.Name); err == nil {
			continue
		}
		if rel.Target == "" {
			return m2m.NewConfigError(rel.Name, m2m.FieldTarget)
		}
		if err := g.AddE(rel.Name, &sqlgraph.EdgeSpec{Rel: sqlgraph.M2M}, owner, rel.Target); err != nil {
			return fmt.Errorf("sqlstore: relation %s.%s: %w", owner, rel.Name, err)
		}
	}
	return nil
}
