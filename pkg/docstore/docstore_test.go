package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/yote/pkg/docstore"
)

func seed(t *testing.T, s docstore.Store) {
	t.Helper()
	ctx := context.Background()
	for _, d := range []docstore.Document{
		{"_id": "t1", "name": "one", "_flow": "f1", "complete": false, "created": "2024-01-01T00:00:00Z"},
		{"_id": "t2", "name": "two", "_flow": "f1", "complete": true, "created": "2024-01-02T00:00:00Z"},
		{"_id": "t3", "name": "three", "_flow": nil, "complete": false, "created": "2024-01-03T00:00:00Z"},
	} {
		require.NoError(t, s.Insert(ctx, "tasks", d))
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID())
	}
	return out
}

func TestMemoryStore_Find(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := docstore.NewMemoryStore()
	seed(t, s)

	t.Run("all in creation order", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", nil, docstore.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3"}, ids(got))
	})

	t.Run("equality", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", docstore.Filter{"_flow": "f1"}, docstore.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, ids(got))
	})

	t.Run("query strings match booleans", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", docstore.Filter{"complete": "true"}, docstore.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"t2"}, ids(got))
	})

	t.Run("null", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", docstore.Filter{"_flow": nil}, docstore.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"t3"}, ids(got))
	})

	t.Run("in", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", docstore.Filter{"_id": docstore.In{"t3", "t1", "missing"}}, docstore.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t3"}, ids(got))
	})

	t.Run("page", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "tasks", nil, docstore.Page{Skip: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"t2"}, ids(got))

		got, err = s.Find(ctx, "tasks", nil, docstore.Page{Skip: 5, Limit: 1})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown collection", func(t *testing.T) {
		t.Parallel()
		got, err := s.Find(ctx, "missing", nil, docstore.Page{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := docstore.NewMemoryStore()
	seed(t, s)

	got, err := s.FindByID(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, "one", got["name"])

	require.ErrorIs(t, s.Insert(ctx, "tasks", docstore.Document{"_id": "t1"}), docstore.ErrExists)

	got["name"] = "renamed"
	require.NoError(t, s.Replace(ctx, "tasks", got))
	again, err := s.FindByID(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", again["name"])

	require.ErrorIs(t, s.Replace(ctx, "tasks", docstore.Document{"_id": "nope"}), docstore.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "tasks", "t1"))
	_, err = s.FindByID(ctx, "tasks", "t1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "tasks", "t1"), docstore.ErrNotFound)

	_, err = s.FindByID(ctx, "notes", "x")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAutomergeStore_PersistsSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "yote.sqlite3")

	db, err := docstore.OpenDatabase(path)
	require.NoError(t, err)
	s, err := docstore.OpenAutomergeStore(ctx, db)
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.Delete(ctx, "tasks", "t2"))
	require.NoError(t, s.Close())

	db, err = docstore.OpenDatabase(path)
	require.NoError(t, err)
	reopened, err := docstore.OpenAutomergeStore(ctx, db)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Find(ctx, "tasks", nil, docstore.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t3"}, ids(got))
	assert.Equal(t, []string{"tasks"}, reopened.Collections())

	fork, err := reopened.Fork("tasks")
	require.NoError(t, err)
	require.NotNil(t, fork)
	changes, err := fork.Changes()
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
}
