package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astromechza/yote/pkg/cache"
)

func TestRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path cache.KeyPath
		want string
	}{
		{name: "empty", path: nil, want: "/api/tasks"},
		{name: "all", path: cache.All, want: "/api/tasks"},
		{name: "single key", path: cache.Path("_flow"), want: "/api/tasks/by-_flow"},
		{name: "key and value", path: cache.Path("author", "12345"), want: "/api/tasks/by-author/12345"},
		{name: "value set", path: cache.KeyPath{cache.Val("_id"), cache.Set("a", "b")}, want: "/api/tasks/by-_id-list?_id=a&_id=b&"},
		{name: "extra pairs", path: cache.Path("_flow", "f1", "status", "open"), want: "/api/tasks/by-_flow/f1/status/open"},
		{name: "escaped", path: cache.Path("name", "a b/c"), want: "/api/tasks/by-name/a%20b%2Fc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cache.Route("/api/tasks", tt.path))
		})
	}
}

func TestKeyPath_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "_task/t1", cache.Path("_task", "t1").String())
	assert.Equal(t, "_id/[a,b]", cache.KeyPath{cache.Val("_id"), cache.Set("a", "b")}.String())
	assert.NotEqual(t, cache.Path("_id", "a,b").String(), cache.KeyPath{cache.Val("_id"), cache.Set("a", "b")}.String())
}
