package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCache_ShouldFetchList(t *testing.T) {
	t.Parallel()

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		c := NewListCache()
		assert.True(t, c.ShouldFetchList(nil, epoch))
		assert.True(t, c.ShouldFetchList(Path("_task", "t1"), epoch))
	})

	t.Run("fetching", func(t *testing.T) {
		t.Parallel()
		c := NewListCache()
		c.request(Path("_task", "t1"))
		assert.False(t, c.ShouldFetchList(Path("_task", "t1"), epoch))
		d, ok := c.Descriptor(Path("_task", "t1"))
		require.True(t, ok)
		assert.Equal(t, []string{}, d.Items)
	})

	t.Run("fresh then stale", func(t *testing.T) {
		t.Parallel()
		c := NewListCache()
		c.request(All)
		c.receive(All, []string{"a"}, epoch)
		assert.False(t, c.ShouldFetchList(nil, epoch.Add(FreshFor)))
		assert.True(t, c.ShouldFetchList(nil, epoch.Add(FreshFor+time.Millisecond)))
	})

	t.Run("invalidated", func(t *testing.T) {
		t.Parallel()
		c := NewListCache()
		c.receive(All, []string{"a"}, epoch)
		c.InvalidateList(All)
		assert.True(t, c.ShouldFetchList(All, epoch))
		d, _ := c.Descriptor(All)
		assert.Equal(t, []string{"a"}, d.Items)
	})

	t.Run("parent without list", func(t *testing.T) {
		t.Parallel()
		c := NewListCache()
		c.receive(Path("_task", "t1"), []string{"n1"}, epoch)
		_, ok := c.Resolve(Path("_task"))
		assert.False(t, ok)
		assert.True(t, c.ShouldFetchList(Path("_task"), epoch))
	})
}

func TestListCache_Failure(t *testing.T) {
	t.Parallel()

	c := NewListCache()
	c.receive(All, []string{"a", "b"}, epoch)
	c.request(All)
	c.fail(All, "boom", epoch.Add(time.Minute))

	d, ok := c.Descriptor(All)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, d.Items)
	assert.Equal(t, "boom", d.Error)
	assert.False(t, d.IsFetching)
	assert.Equal(t, epoch.Add(time.Minute), d.LastUpdated)
	assert.False(t, c.ShouldFetchList(All, epoch.Add(2*time.Minute)))
}

func TestListCache_Membership(t *testing.T) {
	t.Parallel()

	c := NewListCache()
	c.AddToList("a", Path("_task", "t1"))
	c.AddToList("a", Path("_task", "t1"))
	c.AddToList("b", Path("_task", "t1"))
	c.AddToList("a", nil)

	d, _ := c.Descriptor(Path("_task", "t1"))
	assert.Equal(t, []string{"a", "b"}, d.Items)

	c.RemoveFromList("b", Path("_task", "t1"))
	d, _ = c.Descriptor(Path("_task", "t1"))
	assert.Equal(t, []string{"a"}, d.Items)

	c.RemoveEverywhere("a")
	d, _ = c.Descriptor(Path("_task", "t1"))
	assert.Empty(t, d.Items)
	d, _ = c.Descriptor(All)
	assert.Empty(t, d.Items)
}

func TestListCache_FilterAndPagination(t *testing.T) {
	t.Parallel()

	c := NewListCache()
	c.SetFilter(Filter{"query": "foo", "sortBy": "name"}, nil)
	c.SetPagination(Pagination{Page: 2, Per: 10}, nil)

	d, ok := c.Descriptor(All)
	require.True(t, ok)
	assert.Equal(t, "foo", d.Filter["query"])
	assert.Equal(t, Pagination{Page: 2, Per: 10}, d.Pagination)
	assert.Nil(t, d.Items)

	d.Filter["query"] = "changed"
	again, _ := c.Descriptor(All)
	assert.Equal(t, "foo", again.Filter["query"])
}

func TestListCache_InvalidateAll(t *testing.T) {
	t.Parallel()

	c := NewListCache()
	c.receive(All, []string{"a"}, epoch)
	c.receive(Path("_task", "t1"), []string{"b"}, epoch)
	c.InvalidateAll()

	assert.True(t, c.ShouldFetchList(All, epoch))
	assert.True(t, c.ShouldFetchList(Path("_task", "t1"), epoch))
}

func TestListCache_LookalikePathsAreSeparate(t *testing.T) {
	t.Parallel()

	c := NewListCache()
	c.AddToList("z", KeyPath{Val("_id"), Val("a,b")})
	_, ok := c.Descriptor(KeyPath{Val("_id"), Set("a", "b")})
	assert.False(t, ok)

	c.AddToList("y", Path("category", "x/y"))
	_, ok = c.Descriptor(Path("category", "x", "y"))
	assert.False(t, ok)

	d, ok := c.Descriptor(KeyPath{Val("_id"), Val("a,b")})
	require.True(t, ok)
	assert.Equal(t, []string{"z"}, d.Items)
	d, ok = c.Descriptor(Path("category", "x/y"))
	require.True(t, ok)
	assert.Equal(t, []string{"y"}, d.Items)
}

func TestKeyPath_Key(t *testing.T) {
	t.Parallel()

	distinct := []KeyPath{
		Path("category", "x/y"),
		Path("category", "x", "y"),
		{Val("_id"), Val("a,b")},
		{Val("_id"), Set("a", "b")},
		{Val("_id"), Set("a,b")},
		Path("v:a"),
		{Set("a")},
		{Set()},
		{Set("")},
	}
	seen := map[string]KeyPath{}
	for _, p := range distinct {
		prev, dup := seen[p.key()]
		assert.False(t, dup, "%v and %v share key %q", prev, p, p.key())
		seen[p.key()] = p
	}
	assert.Equal(t, Path("_task", "t1").key(), Path("_task", "t1").key())
}
