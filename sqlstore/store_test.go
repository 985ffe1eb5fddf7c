package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/m2m"
	"github.com/syssam/m2m/dialect"
	"github.com/syssam/m2m/dialect/sql"
	"github.com/syssam/m2m/dialect/sql/sqlgraph"
)

func tagsRelation() *m2m.Relation {
	return &m2m.Relation{Name: "tags", Target: "Tag", Attribute: "tagIds", KeyColumn: "id"}
}

func openSQLite(t *testing.T) *sql.Driver {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	// Each connection of an in-memory database sees its own database.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })
	for _, stmt := range []string{
		"CREATE TABLE articles (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT)",
		"CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE article_tags (article_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, type TEXT, PRIMARY KEY (article_id, tag_id))",
		"INSERT INTO articles (id, title) VALUES (1, 'first'), (2, 'second')",
		"INSERT INTO tags (id, name) VALUES (5, 'db'), (6, 'sql'), (7, 'go'), (9, 'orm')",
	} {
		_, err := drv.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return drv
}

func newStore(t *testing.T, drv dialect.Driver, rels ...*m2m.Relation) *Store {
	t.Helper()
	cfg := SchemaConfig{Nodes: []NodeConfig{
		{Type: "Article", Table: "articles"},
		{Type: "Tag", Table: "tags"},
	}}
	g, err := cfg.Build("")
	require.NoError(t, err)
	require.NoError(t, AddRelations(g, "Article", rels...))
	return New(drv, g)
}

func link(t *testing.T, drv *sql.Driver, article, tag int, typ any) {
	t.Helper()
	_, err := drv.DB().Exec("INSERT INTO article_tags (article_id, tag_id, type) VALUES (?, ?, ?)", article, tag, typ)
	require.NoError(t, err)
}

func linked(t *testing.T, drv *sql.Driver, article int) []int64 {
	t.Helper()
	rows, err := drv.DB().Query("SELECT tag_id FROM article_tags WHERE article_id = ? ORDER BY tag_id", article)
	require.NoError(t, err)
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestStore_ArticleTags(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	link(t, drv, 1, 5, nil)
	link(t, drv, 1, 7, nil)
	link(t, drv, 2, 5, nil)
	store := newStore(t, drv, tagsRelation())
	b, err := m2m.Attach(store, []*m2m.Relation{tagsRelation()})
	require.NoError(t, err)

	article, err := store.Load(ctx, "Article", 1)
	require.NoError(t, err)
	require.NoError(t, b.OnAfterLoad(ctx, article))
	keys, ok := article.RelationAttribute("tagIds")
	require.True(t, ok)
	assert.Equal(t, []any{int64(5), int64(7)}, keys)

	article.SetRelationAttribute("tagIds", []any{7, 9})
	require.NoError(t, b.OnAfterUpdate(ctx, article))
	assert.Equal(t, []int64{7, 9}, linked(t, drv, 1))
	assert.Equal(t, []int64{5}, linked(t, drv, 2))

	// Round-trip and idempotence.
	reloaded, err := store.Load(ctx, "Article", 1)
	require.NoError(t, err)
	require.NoError(t, b.OnAfterLoad(ctx, reloaded))
	keys, _ = reloaded.RelationAttribute("tagIds")
	assert.ElementsMatch(t, []any{int64(7), int64(9)}, keys)
	require.NoError(t, b.OnAfterUpdate(ctx, reloaded))
	require.NoError(t, b.OnAfterUpdate(ctx, reloaded))
	assert.Equal(t, []int64{7, 9}, linked(t, drv, 1))
}

func TestStore_PartialUnlink(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	link(t, drv, 1, 5, "review")
	link(t, drv, 1, 6, "topic")
	rel := tagsRelation()
	rel.UnlinkCondition = map[string]any{"type": "review"}
	rel.ExtraColumns = map[string]any{"type": "review"}
	store := newStore(t, drv, rel)
	b, err := m2m.Attach(store, []*m2m.Relation{rel})
	require.NoError(t, err)

	article, err := store.Load(ctx, "Article", 1)
	require.NoError(t, err)
	article.SetRelationAttribute("tagIds", []any{9})
	require.NoError(t, b.OnAfterUpdate(ctx, article))
	assert.Equal(t, []int64{6, 9}, linked(t, drv, 1))

	var typ string
	require.NoError(t, drv.DB().QueryRow("SELECT type FROM article_tags WHERE article_id = 1 AND tag_id = 9").Scan(&typ))
	assert.Equal(t, "review", typ)
}

func TestStore_PartialUnlinkList(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	link(t, drv, 1, 5, "review")
	link(t, drv, 1, 6, "draft")
	link(t, drv, 1, 7, "topic")
	link(t, drv, 2, 5, "review")
	rel := tagsRelation()
	rel.UnlinkCondition = map[string]any{"type": []any{"review", "draft"}}
	store := newStore(t, drv, rel)
	b, err := m2m.Attach(store, []*m2m.Relation{rel})
	require.NoError(t, err)

	article, err := store.Load(ctx, "Article", 1)
	require.NoError(t, err)
	article.SetRelationAttribute("tagIds", []any{9})
	require.NoError(t, b.OnAfterUpdate(ctx, article))
	assert.Equal(t, []int64{7, 9}, linked(t, drv, 1))
	assert.Equal(t, []int64{5}, linked(t, drv, 2))
}

func TestStore_DeleteTargets(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	link(t, drv, 1, 5, nil)
	store := newStore(t, drv, tagsRelation())

	n, err := store.UnlinkAll(ctx, m2m.NewRecord("Article", "id", map[string]any{"id": 1}), "tags", true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = store.Find(ctx, "Tag", 5)
	assert.True(t, m2m.IsNotFound(err))
	_, err = store.Find(ctx, "Tag", 7)
	assert.NoError(t, err)
}

func TestStore_Find(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, openSQLite(t), tagsRelation())

	tag, err := store.Find(ctx, "Tag", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, tag.Key())
	name, ok := tag.Value("name")
	require.True(t, ok)
	assert.Equal(t, "go", name)

	tag, err = store.Find(ctx, "Tag", 8)
	assert.Nil(t, tag)
	var nf *m2m.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Tag", nf.Label())
	assert.Equal(t, 8, nf.ID())

	_, err = store.Find(ctx, "User", 1)
	require.Error(t, err)
	assert.False(t, m2m.IsNotFound(err))
}

func TestStore_MissingRelated(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	link(t, drv, 1, 5, nil)
	store := newStore(t, drv, tagsRelation())

	t.Run("Abort", func(t *testing.T) {
		b, err := m2m.Attach(store, []*m2m.Relation{tagsRelation()})
		require.NoError(t, err)
		article := m2m.NewRecord("Article", "id", map[string]any{"id": 1})
		article.SetRelationAttribute("tagIds", []any{7, 8})
		err = b.OnAfterUpdate(ctx, article)
		var rnf *m2m.RelatedNotFoundError
		require.ErrorAs(t, err, &rnf)
		assert.Equal(t, 8, rnf.Key)
		assert.Equal(t, []int64{7}, linked(t, drv, 1), "no transaction by default")
	})

	t.Run("AbortTx", func(t *testing.T) {
		link(t, drv, 2, 5, nil)
		b, err := m2m.Attach(store, []*m2m.Relation{tagsRelation()}, m2m.WithTx())
		require.NoError(t, err)
		article := m2m.NewRecord("Article", "id", map[string]any{"id": 2})
		article.SetRelationAttribute("tagIds", []any{7, 8})
		require.True(t, m2m.IsRelatedNotFound(b.OnAfterUpdate(ctx, article)))
		assert.Equal(t, []int64{5}, linked(t, drv, 2), "rolled back")
	})
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	store := newStore(t, drv, tagsRelation())
	article := m2m.NewRecord("Article", "id", map[string]any{"id": 1})
	tag := m2m.NewRecord("Tag", "id", map[string]any{"id": 7})

	t.Run("Commit", func(t *testing.T) {
		err := store.WithTx(ctx, func(st m2m.Storage) error {
			return st.Link(ctx, article, "tags", tag, nil)
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{7}, linked(t, drv, 1))
	})

	t.Run("DuplicateRollsBack", func(t *testing.T) {
		err := store.WithTx(ctx, func(st m2m.Storage) error {
			if _, err := st.UnlinkAll(ctx, article, "tags", false); err != nil {
				return err
			}
			if err := st.Link(ctx, article, "tags", tag, nil); err != nil {
				return err
			}
			return st.Link(ctx, article, "tags", tag, nil)
		})
		require.Error(t, err)
		assert.True(t, m2m.IsConstraintError(err))
		assert.True(t, sqlgraph.IsUniqueConstraintError(err))
		assert.Equal(t, []int64{7}, linked(t, drv, 1))
	})

	t.Run("Nested", func(t *testing.T) {
		sentinel := errors.New("abort")
		err := store.WithTx(ctx, func(st m2m.Storage) error {
			return st.(m2m.Transactor).WithTx(ctx, func(inner m2m.Storage) error {
				assert.Same(t, st, inner)
				if _, err := inner.UnlinkAll(ctx, article, "tags", false); err != nil {
					return err
				}
				return sentinel
			})
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, []int64{7}, linked(t, drv, 1))
	})

	t.Run("Panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = store.WithTx(ctx, func(st m2m.Storage) error {
				_, _ = st.UnlinkAll(ctx, article, "tags", false)
				panic("boom")
			})
		})
		assert.Equal(t, []int64{7}, linked(t, drv, 1))
	})
}

func TestNew_SchemaDialect(t *testing.T) {
	drv := openSQLite(t)

	g := &sqlgraph.Schema{}
	store := New(drv, g)
	assert.Same(t, g, store.Schema())
	assert.Equal(t, dialect.SQLite, g.Dialect)

	g = &sqlgraph.Schema{Dialect: dialect.MySQL}
	New(drv, g)
	assert.Equal(t, dialect.MySQL, g.Dialect)
}

func TestStore_Junction(t *testing.T) {
	store := newStore(t, openSQLite(t), tagsRelation())
	j, err := store.Junction(context.Background(), m2m.NewRecord("Article", "id", nil), "tags")
	require.NoError(t, err)
	assert.Equal(t, m2m.Junction{Table: "article_tags", OwnerColumn: "article_id", TargetColumn: "tag_id"}, j)

	_, err = store.Junction(context.Background(), m2m.NewRecord("Article", "id", nil), "authors")
	require.Error(t, err)
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	store := newStore(t, drv, tagsRelation())
	b, err := m2m.Attach(store, []*m2m.Relation{tagsRelation()})
	require.NoError(t, err)
	repo := NewRepository(store, b.Hook("Article"))

	article := m2m.NewRecord("Article", "id", map[string]any{"title": "third"})
	article.SetRelationAttribute("tagIds", []any{5, 9})
	require.NoError(t, repo.Create(ctx, article))
	require.NotNil(t, article.Key())
	id := int(article.Key().(int64))
	assert.Equal(t, 3, id)
	assert.Equal(t, []int64{5, 9}, linked(t, drv, id))

	got, err := repo.Get(ctx, "Article", id)
	require.NoError(t, err)
	keys, ok := got.RelationAttribute("tagIds")
	require.True(t, ok)
	assert.Equal(t, []any{int64(5), int64(9)}, keys)

	got.Set("title", "renamed")
	got.SetRelationAttribute("tagIds", []any{})
	require.NoError(t, repo.Update(ctx, got))
	assert.Empty(t, linked(t, drv, id))
	var title string
	require.NoError(t, drv.DB().QueryRow("SELECT title FROM articles WHERE id = ?", id).Scan(&title))
	assert.Equal(t, "renamed", title)

	_, err = repo.Get(ctx, "Article", 42)
	assert.True(t, m2m.IsNotFound(err))

	missing := m2m.NewRecord("Article", "id", map[string]any{"id": 42, "title": "ghost"})
	assert.True(t, m2m.IsNotFound(repo.Update(ctx, missing)))
}
