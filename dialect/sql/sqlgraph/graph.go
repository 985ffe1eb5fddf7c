// Package sqlgraph provides the junction-table primitives used to store
// many-to-many edges in SQL databases: loading the neighbors of a node,
// deleting edges (all of them, or a subset matching a condition), and
// adding a single edge with extra columns.
package sqlgraph

import (
	"context"
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/syssam/m2m/dialect"
	"github.com/syssam/m2m/dialect/sql"
)

// Rel is an edge relation type.
type Rel int

// Relation types.
const (
	Unk Rel = iota // Unknown.
	O2O            // One to one / has one.
	O2M            // One to many / has many.
	M2O            // Many to one (inverse perspective for O2M).
	M2M            // Many to many.
)

// String returns the relation name.
func (r Rel) String() (s string) {
	switch r {
	case O2O:
		s = "O2O"
	case O2M:
		s = "O2M"
	case M2O:
		s = "M2O"
	case M2M:
		s = "M2M"
	default:
		s = "Unknown"
	}
	return s
}

type (
	// FieldSpec holds the information for updating a field column in the database.
	FieldSpec struct {
		Column string
	}

	// NodeSpec defines the information for querying and decoding nodes in the graph.
	NodeSpec struct {
		Table string
		ID    *FieldSpec
	}

	// Node in the graph is an entity type backed by a table.
	Node struct {
		NodeSpec
		// Type is the entity type name, for example "Tag".
		Type string
		// Edges holds the M2M edges going out of this node.
		Edges []*Edge
	}

	// EdgeSpec holds the information for the junction table of an edge.
	// Columns holds the two junction columns in association order: the first
	// one references the edge owner and the second one the edge target.
	// Inverse edges read the same junction table from the other side.
	EdgeSpec struct {
		Rel     Rel
		Inverse bool
		Table   string
		Columns []string
	}

	// Edge is a named M2M edge between two nodes.
	Edge struct {
		Name string
		Spec *EdgeSpec
		From *Node
		To   *Node
	}

	// Schema holds the nodes of the graph and the dialect used
	// for building its statements.
	Schema struct {
		Dialect string
		Nodes   []*Node
	}
)

// OwnerColumn returns the junction column that references the edge owner.
func (e *Edge) OwnerColumn() string {
	if e.Spec.Inverse {
		return e.Spec.Columns[1]
	}
	return e.Spec.Columns[0]
}

// TargetColumn returns the junction column that references the edge target.
func (e *Edge) TargetColumn() string {
	if e.Spec.Inverse {
		return e.Spec.Columns[0]
	}
	return e.Spec.Columns[1]
}

// AddNode adds a node to the schema. The ID column defaults to "id".
func (g *Schema) AddNode(n *Node) error {
	if n.Type == "" || n.Table == "" {
		return fmt.Errorf("sqlgraph: node requires a type and a table")
	}
	if g.node(n.Type) != nil {
		return fmt.Errorf("sqlgraph: node %q already exists", n.Type)
	}
	if n.ID == nil || n.ID.Column == "" {
		n.ID = &FieldSpec{Column: "id"}
	}
	g.Nodes = append(g.Nodes, n)
	return nil
}

// AddE adds an edge to the graph. Only M2M edges are supported. The
// junction table and its columns are derived from the node tables when
// they are not set: an "articles" node with a "tags" edge to a "tags"
// node is stored in "article_tags" with columns "article_id" and "tag_id".
func (g *Schema) AddE(name string, spec *EdgeSpec, from, to string) error {
	var fromT, toT *Node
	for i := range g.Nodes {
		t := g.Nodes[i].Type
		if t == from {
			fromT = g.Nodes[i]
		}
		if t == to {
			toT = g.Nodes[i]
		}
	}
	if fromT == nil || toT == nil {
		return fmt.Errorf("from/to type was not found")
	}
	if spec.Rel != M2M {
		return fmt.Errorf("sqlgraph: edge %q: unsupported relation %s", name, spec.Rel)
	}
	for _, e := range fromT.Edges {
		if e.Name == name {
			return fmt.Errorf("sqlgraph: edge %q already exists on node %q", name, from)
		}
	}
	ownerCol := inflect.Singularize(fromT.Table) + "_id"
	targetCol := inflect.Singularize(toT.Table) + "_id"
	if ownerCol == targetCol {
		targetCol = inflect.Singularize(name) + "_id"
	}
	if spec.Table == "" {
		spec.Table = inflect.Singularize(fromT.Table) + "_" + name
	}
	switch len(spec.Columns) {
	case 0:
		spec.Columns = []string{ownerCol, targetCol}
		if spec.Inverse {
			spec.Columns = []string{targetCol, ownerCol}
		}
	case 2:
	default:
		return fmt.Errorf("sqlgraph: edge %q: M2M edges require 2 junction columns, got %d", name, len(spec.Columns))
	}
	fromT.Edges = append(fromT.Edges, &Edge{Name: name, Spec: spec, From: fromT, To: toT})
	return nil
}

// Node returns the node of the given type.
func (g *Schema) Node(typ string) (*Node, error) {
	if n := g.node(typ); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("sqlgraph: unknown node type %q", typ)
}

// Edge returns the named edge of the given node type.
func (g *Schema) Edge(from, name string) (*Edge, error) {
	n, err := g.Node(from)
	if err != nil {
		return nil, err
	}
	for _, e := range n.Edges {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("sqlgraph: node %q has no edge %q", from, name)
}

func (g *Schema) node(typ string) *Node {
	for _, n := range g.Nodes {
		if n.Type == typ {
			return n
		}
	}
	return nil
}

func (g *Schema) builder() *sql.DialectBuilder {
	d := g.Dialect
	if d == "" {
		d = dialect.SQLite
	}
	return sql.Dialect(d)
}

// QueryNode loads the row of the node with the given id.
// It returns a *NotFoundError if there is no such row.
func (g *Schema) QueryNode(ctx context.Context, drv dialect.ExecQuerier, typ string, id any) (map[string]any, error) {
	n, err := g.Node(typ)
	if err != nil {
		return nil, err
	}
	selector := g.builder().Select().From(n.Table).Where(sql.EQ(n.ID.Column, id)).Limit(1)
	rows, err := query(ctx, drv, selector)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{table: n.Table, id: id}
	}
	return rows[0], nil
}

// QueryNeighbors loads the target rows linked to the owner id through the
// junction table of the edge, ordered by the target id column.
func (g *Schema) QueryNeighbors(ctx context.Context, drv dialect.ExecQuerier, from, edge string, id any) ([]map[string]any, error) {
	e, err := g.Edge(from, edge)
	if err != nil {
		return nil, err
	}
	selector := g.builder().Select("t1.*").
		From(e.To.Table).As("t1").
		Join(e.Spec.Table, "t2").On("t2."+e.TargetColumn(), "t1."+e.To.ID.Column).
		Where(sql.EQ("t2."+e.OwnerColumn(), id)).
		OrderBy("t1." + e.To.ID.Column)
	return query(ctx, drv, selector)
}

// DeleteRows deletes the rows of the table matching all column-value
// pairs of cond and returns the number of deleted rows.
func (g *Schema) DeleteRows(ctx context.Context, drv dialect.ExecQuerier, table string, cond map[string]any) (int64, error) {
	if len(cond) == 0 {
		return 0, fmt.Errorf("sqlgraph: refusing to delete from %q without conditions", table)
	}
	return exec(ctx, drv, g.builder().Delete(table).Where(sql.Conds(cond)))
}

// DeleteEdges deletes all junction rows of the edge owned by id, and when
// deleteTargets is set, the target rows they pointed to. It returns the
// number of deleted junction rows.
func (g *Schema) DeleteEdges(ctx context.Context, drv dialect.ExecQuerier, from, edge string, id any, deleteTargets bool) (int64, error) {
	e, err := g.Edge(from, edge)
	if err != nil {
		return 0, err
	}
	var targets []any
	if deleteTargets {
		rows, err := query(ctx, drv, g.builder().Select(e.TargetColumn()).From(e.Spec.Table).Where(sql.EQ(e.OwnerColumn(), id)))
		if err != nil {
			return 0, err
		}
		for _, r := range rows {
			targets = append(targets, r[e.TargetColumn()])
		}
	}
	n, err := exec(ctx, drv, g.builder().Delete(e.Spec.Table).Where(sql.EQ(e.OwnerColumn(), id)))
	if err != nil {
		return 0, err
	}
	if len(targets) > 0 {
		if _, err := exec(ctx, drv, g.builder().Delete(e.To.Table).Where(sql.In(e.To.ID.Column, targets...))); err != nil {
			return n, err
		}
	}
	return n, nil
}

// AddEdge inserts one junction row linking id to target. Extra columns are
// written alongside, and the owner and target columns take precedence over
// extra columns with the same name.
func (g *Schema) AddEdge(ctx context.Context, drv dialect.ExecQuerier, from, edge string, id, target any, extra map[string]any) error {
	e, err := g.Edge(from, edge)
	if err != nil {
		return err
	}
	values := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		values[k] = v
	}
	values[e.OwnerColumn()] = id
	values[e.TargetColumn()] = target
	_, err = exec(ctx, drv, g.builder().Insert(e.Spec.Table).SetMap(values))
	return wrapConstraint(err)
}

// CreateNode inserts a node row and returns its id. When fields holds no
// id, the id generated by the database is returned.
func (g *Schema) CreateNode(ctx context.Context, drv dialect.ExecQuerier, typ string, fields map[string]any) (any, error) {
	n, err := g.Node(typ)
	if err != nil {
		return nil, err
	}
	insert := g.builder().Insert(n.Table).SetMap(fields)
	if id, ok := fields[n.ID.Column]; ok {
		_, err := exec(ctx, drv, insert)
		return id, wrapConstraint(err)
	}
	if g.Dialect == dialect.Postgres {
		rows, err := query(ctx, drv, insert.Returning(n.ID.Column))
		if err != nil {
			return nil, wrapConstraint(err)
		}
		if len(rows) != 1 {
			return nil, fmt.Errorf("sqlgraph: insert into %q returned %d rows", n.Table, len(rows))
		}
		return rows[0][n.ID.Column], nil
	}
	if err := insert.Err(); err != nil {
		return nil, err
	}
	q, args := insert.Query()
	var res sql.Result
	if err := drv.Exec(ctx, q, args, &res); err != nil {
		return nil, wrapConstraint(err)
	}
	return res.LastInsertId()
}

// UpdateNode sets the given fields of the node row with the given id.
// The id column itself is never updated. It returns a *NotFoundError
// if there is no such row.
func (g *Schema) UpdateNode(ctx context.Context, drv dialect.ExecQuerier, typ string, id any, fields map[string]any) error {
	n, err := g.Node(typ)
	if err != nil {
		return err
	}
	values := make(map[string]any, len(fields))
	for c, v := range fields {
		if c != n.ID.Column {
			values[c] = v
		}
	}
	if len(values) == 0 {
		return nil
	}
	affected, err := exec(ctx, drv, g.builder().Update(n.Table).SetMap(values).Where(sql.EQ(n.ID.Column, id)))
	if err != nil {
		return wrapConstraint(err)
	}
	// MySQL reports changed rows, not matched rows.
	if affected == 0 && g.Dialect != dialect.MySQL {
		return &NotFoundError{table: n.Table, id: id}
	}
	return nil
}

type statement interface {
	sql.Querier
	Err() error
}

func query(ctx context.Context, drv dialect.ExecQuerier, s statement) ([]map[string]any, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	q, args := s.Query()
	rows := &sql.Rows{}
	if err := drv.Query(ctx, q, args, rows); err != nil {
		return nil, err
	}
	return sql.ScanMaps(rows)
}

func exec(ctx context.Context, drv dialect.ExecQuerier, s statement) (int64, error) {
	if err := s.Err(); err != nil {
		return 0, err
	}
	q, args := s.Query()
	var res sql.Result
	if err := drv.Exec(ctx, q, args, &res); err != nil {
		return 0, err
	}
	return sql.RowsAffected(res), nil
}
