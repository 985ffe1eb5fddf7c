package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relationsFile = `
nodes:
  - {type: Article, table: articles}
  - {type: Tag, table: tags}
edges:
  - {from: Article, name: tags, to: Tag, table: article_tags, columns: [article_id, tag_id]}
owners:
  Article:
    tags:
      modelClass: Tag
      attribute: tagIds
      pkColumnName: id
      extraColumns: {type: manual}
`

// setup creates a seeded database and relation file and points the
// environment at them.
func setup(t *testing.T, relations string) string {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "m2m.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		"CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT)",
		"CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE article_tags (article_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, type TEXT, PRIMARY KEY (article_id, tag_id))",
		"INSERT INTO articles (id, title) VALUES (1, 'first'), (2, 'second')",
		"INSERT INTO tags (id, name) VALUES (5, 'db'), (7, 'go'), (9, 'orm')",
		"INSERT INTO article_tags (article_id, tag_id) VALUES (1, 5), (1, 7), (2, 9)",
		"CREATE TABLE categories (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE article_categories (article_id INTEGER NOT NULL, category_id INTEGER NOT NULL, PRIMARY KEY (article_id, category_id))",
		"INSERT INTO categories (id, name) VALUES (3, 'news')",
		"INSERT INTO article_categories (article_id, category_id) VALUES (1, 3)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	rels := filepath.Join(dir, "relations.yaml")
	require.NoError(t, os.WriteFile(rels, []byte(relations), 0o600))

	t.Setenv("M2M_DIALECT", "sqlite")
	t.Setenv("M2M_DSN", dsn)
	t.Setenv("M2M_RELATIONS", rels)
	return dsn
}

func TestRun_Show(t *testing.T) {
	setup(t, relationsFile)
	var out bytes.Buffer
	err := run(context.Background(), []string{"show", "-type", "Article", "-id", "1,2"}, &out, viper.New())
	require.NoError(t, err)
	assert.Equal(t, "Article 1\n  tags: [5 7]\nArticle 2\n  tags: [9]\n", out.String())
}

func TestRun_Set(t *testing.T) {
	dsn := setup(t, relationsFile)
	t.Setenv("M2M_TX", "true")
	metrics := filepath.Join(t.TempDir(), "m2m.prom")
	t.Setenv("M2M_METRICS_FILE", metrics)

	var out bytes.Buffer
	err := run(context.Background(), []string{"set", "-type", "Article", "-id", "1", "-relation", "tags", "-keys", "7,9"}, &out, viper.New())
	require.NoError(t, err)
	assert.Equal(t, "Article 1\n  tags: [7 9]\n", out.String())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM article_tags WHERE article_id = 1 AND type = 'manual'").Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM article_tags WHERE article_id = 2").Scan(&n))
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `m2m_links_created_total{relation="tags"} 2`)
}

func TestRun_SetMissingTarget(t *testing.T) {
	setup(t, relationsFile)
	var out bytes.Buffer
	err := run(context.Background(), []string{"set", "-type", "Article", "-id", "1", "-relation", "tags", "-keys", "42"}, &out, viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRun_Errors(t *testing.T) {
	setup(t, relationsFile)
	for _, args := range [][]string{
		nil,
		{"drop"},
		{"show", "-type", "Tag", "-id", "1"},
		{"show", "-type", "Article"},
		{"set", "-type", "Article", "-id", "1", "-relation", "authors", "-keys", "1"},
		{"set", "-type", "Article", "-id", "1,2", "-relation", "tags"},
	} {
		err := run(context.Background(), args, &bytes.Buffer{}, viper.New())
		assert.Error(t, err, "%v", args)
	}
}

const twoRelationsFile = `
nodes:
  - {type: Article, table: articles}
  - {type: Tag, table: tags}
  - {type: Category, table: categories}
edges:
  - {from: Article, name: tags, to: Tag, table: article_tags, columns: [article_id, tag_id]}
  - {from: Article, name: categories, to: Category, table: article_categories, columns: [article_id, category_id]}
owners:
  Article:
    tags:
      modelClass: Tag
      attribute: tagIds
      pkColumnName: id
    categories:
      modelClass: Category
      attribute: categoryIds
      pkColumnName: id
      deleteAllRelatedEntriesBeforeSave: true
`

func TestRun_SetTouchesNamedRelationOnly(t *testing.T) {
	dsn := setup(t, twoRelationsFile)
	var out bytes.Buffer
	err := run(context.Background(), []string{"set", "-type", "Article", "-id", "1", "-relation", "tags", "-keys", "5"}, &out, viper.New())
	require.NoError(t, err)
	assert.Equal(t, "Article 1\n  tags: [5]\n  categories: [3]\n", out.String())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM categories WHERE id = 3").Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM article_categories WHERE article_id = 1 AND category_id = 3").Scan(&n))
	assert.Equal(t, 1, n)
}
