package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/yote/pkg/cache"
)

func TestParsePath(t *testing.T) {
	t.Parallel()

	path, err := parsePath(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/api/tasks", cache.Route("/api/tasks", path))

	path, err = parsePath([]string{"_flow=f1", "status=open"}, "")
	require.NoError(t, err)
	assert.Equal(t, "/api/tasks/by-_flow/f1/status/open", cache.Route("/api/tasks", path))

	path, err = parsePath(nil, "_id=a,b")
	require.NoError(t, err)
	assert.Equal(t, "/api/tasks/by-_id-list?_id=a&_id=b&", cache.Route("/api/tasks", path))

	_, err = parsePath([]string{"novalue"}, "")
	assert.Error(t, err)
	_, err = parsePath([]string{"a=b"}, "_id=a")
	assert.Error(t, err)
}

func TestChangesURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ws://localhost:8080/api/changes", changesURL("http://localhost:8080"))
	assert.Equal(t, "wss://yote.example/api/changes", changesURL("https://yote.example"))
}
