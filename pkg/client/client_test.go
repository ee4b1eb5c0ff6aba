package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/yote/pkg/client"
)

func TestCall(t *testing.T) {
	t.Parallel()

	var gotAuth, gotURI string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotURI = r.RequestURI
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		switch r.URL.Path {
		case "/api/tasks/by-_id-list":
			_, _ = w.Write([]byte(`{"success": true, "tasks": [{"_id": "a"}, {"_id": "b"}]}`))
		case "/api/tasks":
			_, _ = w.Write([]byte(`{"success": false, "message": {"name": "MongoError", "code": 11000}}`))
		default:
			_, _ = w.Write([]byte(`{"success": false, "message": "Task not found."}`))
		}
	}))
	defer srv.Close()

	c, err := client.New(srv.URL+"/", client.WithToken("tok"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL, c.BaseURL())

	t.Run("success", func(t *testing.T) {
		env, err := c.Call(context.Background(), http.MethodGet, "/api/tasks/by-_id-list?_id=a&_id=b&", nil)
		require.NoError(t, err)
		require.NoError(t, env.Err())
		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "/api/tasks/by-_id-list?_id=a&_id=b&", gotURI)

		var tasks []struct {
			ID string `json:"_id"`
		}
		require.NoError(t, env.Decode("tasks", &tasks))
		assert.Len(t, tasks, 2)
		assert.Error(t, env.Decode("notes", &tasks))
	})

	t.Run("api failure", func(t *testing.T) {
		env, err := c.Call(context.Background(), http.MethodGet, "/api/tasks/x", nil)
		require.NoError(t, err)
		var apiErr *client.APIError
		require.True(t, errors.As(env.Err(), &apiErr))
		assert.Equal(t, "Task not found.", apiErr.Message)
	})

	t.Run("object message", func(t *testing.T) {
		env, err := c.Call(context.Background(), http.MethodPost, "/api/tasks", map[string]string{"name": "n"})
		require.NoError(t, err)
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "MongoError")
		assert.Equal(t, "n", gotBody["name"])
	})
}

func TestNew_RejectsRelative(t *testing.T) {
	t.Parallel()
	_, err := client.New("/api")
	require.Error(t, err)
}
