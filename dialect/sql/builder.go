package sql

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/m2m/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Querier wraps the basic Query method that is implemented
// by the different builders in this package.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder for the sql dsl. It tracks
// placeholders per dialect and collects identifier errors.
type Builder struct {
	sb      strings.Builder
	args    []any
	total   int
	dialect string
	errs    []error
}

// WriteString writes the given string as is.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Pad adds a space to the query.
func (b *Builder) Pad() *Builder {
	return b.WriteString(" ")
}

// Ident writes the given identifier quoted for the dialect.
func (b *Builder) Ident(s string) *Builder {
	return b.WriteString(b.Quote(s))
}

// IdentComma calls Ident on all arguments and adds a comma between them.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// Quote quotes the given identifier with the characters of the dialect.
// Qualified names ("t.id") are quoted part by part and "*" is kept as is.
// Invalid identifiers are recorded as errors and returned unquoted.
func (b *Builder) Quote(ident string) string {
	if ident == "*" {
		return ident
	}
	if prefix, ok := strings.CutSuffix(ident, ".*"); ok {
		return b.Quote(prefix) + ".*"
	}
	if !isValidIdentifier(ident) {
		b.AddError(fmt.Errorf("sql: invalid identifier %q", ident))
		return ident
	}
	q := "`"
	if b.dialect == dialect.Postgres {
		q = `"`
	}
	parts := strings.Split(ident, ".")
	for i := range parts {
		parts[i] = q + parts[i] + q
	}
	return strings.Join(parts, ".")
}

// Arg appends an input argument to the builder and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.total++
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		return b.WriteString("$" + strconv.Itoa(b.total))
	}
	return b.WriteString("?")
}

// Args appends a list of arguments to the builder, comma separated.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// AddError appends an error to the builder errors.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns a concatenated error of all errors encountered during
// the query-building, or were added manually by calling AddError.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	br := strings.Builder{}
	for i := range b.errs {
		if i > 0 {
			br.WriteString("; ")
		}
		br.WriteString(b.errs[i].Error())
	}
	return errors.New(br.String())
}

// String returns the accumulated string.
func (b *Builder) String() string {
	return b.sb.String()
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.String(), b.args
}

// P is a predicate written into the WHERE clause of a statement.
type P func(*Builder)

// EQ returns a "column = value" predicate. A nil value
// is rendered as "column IS NULL".
func EQ(col string, v any) P {
	return func(b *Builder) {
		b.Ident(col)
		if v == nil {
			b.WriteString(" IS NULL")
			return
		}
		b.WriteString(" = ").Arg(v)
	}
}

// In returns a "column IN (values)" predicate. An empty list
// never matches.
func In(col string, vs ...any) P {
	return func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("1 = 0")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(vs...).WriteString(")")
	}
}

// And joins the given predicates with AND. Nil predicates are skipped.
func And(ps ...P) P {
	ps = slices.DeleteFunc(slices.Clone(ps), func(p P) bool { return p == nil })
	return func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if len(ps) > 1 {
				b.WriteString("(")
				p(b)
				b.WriteString(")")
				continue
			}
			p(b)
		}
	}
}

// Conds converts a column-value map into an AND of predicates: EQ for
// scalars and In for slice values. Columns are sorted to keep the
// generated statement deterministic.
//
//	Conds(map[string]any{"article_id": 1, "type": []any{"review", "draft"}})
//	// (`article_id` = ?) AND (`type` IN (?, ?))
func Conds(m map[string]any) P {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	ps := make([]P, 0, len(cols))
	for _, c := range cols {
		ps = append(ps, cond(c, m[c]))
	}
	return And(ps...)
}

// cond returns In for slices other than []byte, and EQ otherwise.
// Arrays such as uuid.UUID are single values.
func cond(col string, v any) P {
	switch v := v.(type) {
	case nil, []byte:
		return EQ(col, v)
	case []any:
		return In(col, v...)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return EQ(col, v)
	}
	vs := make([]any, rv.Len())
	for i := range vs {
		vs[i] = rv.Index(i).Interface()
	}
	return In(col, vs...)
}

// DialectBuilder prefixes all root builders with the dialect name.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: dialect.Normalize(name)}
}

// Select creates a Selector for the configured dialect.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	dialect string
	columns []string
	from    string
	as      string
	joins   []join
	where   P
	order   []string
	limit   *int
}

type join struct {
	table, as string
	on        [2]string
}

// From sets the source table of the selector.
func (s *Selector) From(table string) *Selector {
	s.from = table
	return s
}

// As sets an alias for the source table.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// Join appends an inner join with the given table and alias.
// Call On to set its condition.
func (s *Selector) Join(table, as string) *Selector {
	s.joins = append(s.joins, join{table: table, as: as})
	return s
}

// On sets the "ON" condition of the last join.
func (s *Selector) On(c1, c2 string) *Selector {
	if n := len(s.joins); n > 0 {
		s.joins[n-1].on = [2]string{c1, c2}
	}
	return s
}

// Where appends a predicate to the selector. Multiple calls are joined with AND.
func (s *Selector) Where(p P) *Selector {
	if s.where != nil {
		p = And(s.where, p)
	}
	s.where = p
	return s
}

// OrderBy appends ascending ORDER BY columns.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Limit adds the `LIMIT` clause to the `SELECT` statement.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

func (s *Selector) build() *Builder {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.from)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
	for _, j := range s.joins {
		b.WriteString(" JOIN ").Ident(j.table)
		if j.as != "" {
			b.WriteString(" AS ").Ident(j.as)
		}
		b.WriteString(" ON ").Ident(j.on[0]).WriteString(" = ").Ident(j.on[1])
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ").IdentComma(s.order...)
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(*s.limit))
	}
	return b
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	return s.build().Query()
}

// Err returns the identifier errors of the statement, if any.
func (s *Selector) Err() error {
	return s.build().Err()
}

// InsertBuilder is a builder for the `INSERT INTO` statement.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	returning []string
}

// Set appends a column and its value to the statement.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// SetMap appends the columns of the map in sorted order.
func (i *InsertBuilder) SetMap(m map[string]any) *InsertBuilder {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	for _, c := range cols {
		i.Set(c, m[c])
	}
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// Supported by Postgres and SQLite.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

func (i *InsertBuilder) build() *Builder {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	if len(i.columns) == 0 {
		b.AddError(fmt.Errorf("sql: insert into %q without columns", i.table))
		return b
	}
	b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES (").Args(i.values...).WriteString(")")
	if len(i.returning) > 0 {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	return i.build().Query()
}

// Err returns the identifier errors of the statement, if any.
func (i *InsertBuilder) Err() error {
	return i.build().Err()
}

// UpdateBuilder is a builder for the `UPDATE` statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   P
}

// Set appends a column and its new value to the statement.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// SetMap appends the columns of the map in sorted order.
func (u *UpdateBuilder) SetMap(m map[string]any) *UpdateBuilder {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	for _, c := range cols {
		u.Set(c, m[c])
	}
	return u
}

// Where appends a predicate to the statement. Multiple calls are joined with AND.
func (u *UpdateBuilder) Where(p P) *UpdateBuilder {
	if u.where != nil {
		p = And(u.where, p)
	}
	u.where = p
	return u
}

// Empty reports whether the statement has no columns to set.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0
}

func (u *UpdateBuilder) build() *Builder {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	if u.Empty() {
		b.AddError(fmt.Errorf("sql: update %q without columns", u.table))
		return b
	}
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where(b)
	}
	return b
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	return u.build().Query()
}

// Err returns the identifier errors of the statement, if any.
func (u *UpdateBuilder) Err() error {
	return u.build().Err()
}

// DeleteBuilder is a builder for the `DELETE` statement.
type DeleteBuilder struct {
	dialect string
	table   string
	where   P
}

// Where appends a predicate to the statement. Multiple calls are joined with AND.
func (d *DeleteBuilder) Where(p P) *DeleteBuilder {
	if d.where != nil {
		p = And(d.where, p)
	}
	d.where = p
	return d
}

func (d *DeleteBuilder) build() *Builder {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where(b)
	}
	return b
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	return d.build().Query()
}

// Err returns the identifier errors of the statement, if any.
func (d *DeleteBuilder) Err() error {
	return d.build().Err()
}
