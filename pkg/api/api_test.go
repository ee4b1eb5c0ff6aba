package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/astromechza/yote/pkg/api"
	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/docstore/mocks"
	"github.com/astromechza/yote/pkg/notify"
)

type fixture struct {
	t     *testing.T
	srv   *api.Server
	store docstore.Store
	user  string
	admin string
	clock clockwork.FakeClock
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	auth := api.NewAuthenticator("test-secret", clock)
	user, err := auth.Issue("u1", nil, time.Hour)
	require.NoError(t, err)
	admin, err := auth.Issue("u2", []string{api.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	return &fixture{
		t:     t,
		srv:   api.NewServer(store, notify.NewHub(), auth, clock),
		store: store,
		user:  user,
		admin: admin,
		clock: clock,
	}
}

func (f *fixture) do(method, target, token string, body any) (int, map[string]any) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	out := make(map[string]any)
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func listIDs(t *testing.T, v any) []string {
	t.Helper()
	items, isList := v.([]any)
	require.True(t, isList, "expected a list, got %T", v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.(map[string]any)["_id"].(string))
	}
	return out
}

func seedTasks(t *testing.T, s docstore.Store) {
	t.Helper()
	for _, d := range []docstore.Document{
		{"_id": "t1", "name": "one", "_flow": "f1", "category": "x", "complete": false, "status": "open", "created": "2024-01-01T00:00:00Z"},
		{"_id": "t2", "name": "two", "_flow": "f1", "category": "y", "complete": true, "status": "open", "created": "2024-01-02T00:00:00Z"},
		{"_id": "t3", "name": "three", "category": "x", "complete": false, "status": "active", "created": "2024-01-03T00:00:00Z"},
	} {
		require.NoError(t, s.Insert(context.Background(), "tasks", d))
	}
}

func TestTasks_Read(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	seedTasks(t, store)
	f := newFixture(t, store)

	t.Run("list", func(t *testing.T) {
		code, body := f.do(http.MethodGet, "/api/tasks", "", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, []string{"t1", "t2", "t3"}, listIDs(t, body["tasks"]))
	})

	t.Run("by id", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/t2", "", nil)
		assert.Equal(t, "two", body["task"].(map[string]any)["name"])
	})

	t.Run("by id missing", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/nope", "", nil)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Task not found.", body["message"])
	})

	t.Run("by ref", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-_flow/f1", "", nil)
		assert.Equal(t, []string{"t1", "t2"}, listIDs(t, body["tasks"]))
	})

	t.Run("by ref with pairs", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-category/x/status/active", "", nil)
		assert.Equal(t, []string{"t3"}, listIDs(t, body["tasks"]))
	})

	t.Run("by ref null", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-_flow/null", "", nil)
		assert.Equal(t, []string{"t3"}, listIDs(t, body["tasks"]))
	})

	t.Run("by ref odd length", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-category/x/extra", "", nil)
		assert.Equal(t, map[string]any{"success": false, "message": "Invalid parameter length"}, body)
	})

	t.Run("by value list", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-_id-list?_id=t3&_id=t1&", "", nil)
		assert.Equal(t, []string{"t1", "t3"}, listIDs(t, body["tasks"]))
	})

	t.Run("by value list missing param", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/by-_id-list", "", nil)
		assert.Equal(t, "Missing query param(s) specified by the ref: _id", body["message"])
	})

	t.Run("search", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/search?complete=false", "", nil)
		assert.Equal(t, []string{"t1", "t3"}, listIDs(t, body["tasks"]))
		assert.NotContains(t, body, "pagination")
	})

	t.Run("search paginated", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/search?per=2&page=2", "", nil)
		assert.Equal(t, []string{"t3"}, listIDs(t, body["tasks"]))
		assert.Equal(t, map[string]any{"per": float64(2), "page": float64(2)}, body["pagination"])

		_, body = f.do(http.MethodGet, "/api/tasks/search?per=1", "", nil)
		assert.Equal(t, []string{"t1"}, listIDs(t, body["tasks"]))
		assert.Equal(t, map[string]any{"per": float64(1), "page": float64(1)}, body["pagination"])
	})

	t.Run("default", func(t *testing.T) {
		_, body := f.do(http.MethodGet, "/api/tasks/default", "", nil)
		assert.Equal(t, "open", body["defaultObj"].(map[string]any)["status"])
	})

	t.Run("schema needs admin", func(t *testing.T) {
		code, _ := f.do(http.MethodGet, "/api/tasks/schema", "", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = f.do(http.MethodGet, "/api/tasks/schema", f.user, nil)
		assert.Equal(t, http.StatusForbidden, code)
		code, body := f.do(http.MethodGet, "/api/tasks/schema", f.admin, nil)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, body["schema"])
	})
}

func TestTasks_Write(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	f := newFixture(t, store)

	code, _ := f.do(http.MethodPost, "/api/tasks", "", map[string]any{"name": "anon"})
	assert.Equal(t, http.StatusUnauthorized, code)

	_, body := f.do(http.MethodPost, "/api/tasks", f.user, map[string]any{"name": "write docs", "bogus": 1})
	require.Equal(t, true, body["success"], body)
	created := body["task"].(map[string]any)
	id := created["_id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "u1", created["_user"])
	assert.Equal(t, "open", created["status"])
	assert.NotContains(t, created, "bogus")

	f.clock.Advance(time.Minute)
	_, body = f.do(http.MethodPut, "/api/tasks/"+id, f.user, map[string]any{"description": "all of them", "created": "1999-01-01T00:00:00Z"})
	require.Equal(t, true, body["success"], body)
	updated := body["task"].(map[string]any)
	assert.Equal(t, "write docs", updated["name"])
	assert.Equal(t, "all of them", updated["description"])
	assert.Equal(t, created["created"], updated["created"])
	assert.NotEqual(t, created["updated"], updated["updated"])

	_, body = f.do(http.MethodPut, "/api/tasks/"+id+"/complete", f.user, map[string]any{"complete": true})
	assert.Equal(t, true, body["task"].(map[string]any)["complete"])

	_, body = f.do(http.MethodPut, "/api/tasks/"+id+"/status", f.user, map[string]any{"status": "resolved"})
	assert.Equal(t, "resolved", body["task"].(map[string]any)["status"])

	code, _ = f.do(http.MethodPut, "/api/tasks/"+id+"/status", f.user, map[string]any{"status": 3})
	assert.Equal(t, http.StatusBadRequest, code)

	_, body = f.do(http.MethodPut, "/api/tasks/missing", f.user, map[string]any{"name": "x"})
	assert.Equal(t, "Task not found.", body["message"])

	code, _ = f.do(http.MethodDelete, "/api/tasks/"+id, f.user, nil)
	assert.Equal(t, http.StatusForbidden, code)
	_, body = f.do(http.MethodDelete, "/api/tasks/"+id, f.admin, nil)
	assert.Equal(t, true, body["success"])
	_, body = f.do(http.MethodGet, "/api/tasks/"+id, "", nil)
	assert.Equal(t, "Task not found.", body["message"])
}

func TestNotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedTasks(t, store)
	require.NoError(t, store.Insert(ctx, "users", docstore.Document{"_id": "u1", "firstName": "Ada", "lastName": "Lovelace", "created": "2023-06-01T00:00:00Z"}))
	f := newFixture(t, store)

	code, body := f.do(http.MethodPost, "/api/notes", f.user, map[string]any{"_task": "missing", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT FOUND - INVALID TASK ID", body["message"])

	_, body = f.do(http.MethodPost, "/api/notes", f.user, map[string]any{"_task": "t1", "content": "hi", "commentor": map[string]any{"fullName": "spoof"}})
	require.Equal(t, true, body["success"], body)
	note := body["note"].(map[string]any)
	assert.Equal(t, "f1", note["_flow"])
	assert.Equal(t, "u1", note["_user"])
	assert.NotContains(t, note, "commentor")

	_, body = f.do(http.MethodGet, "/api/notes/by-_task/t1", "", nil)
	notes := body["notes"].([]any)
	require.Len(t, notes, 1)
	commentor := notes[0].(map[string]any)["commentor"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", commentor["fullName"])
}

func TestChangeFeed(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	clock := clockwork.NewFakeClock()
	auth := api.NewAuthenticator("test-secret", clock)
	hub := notify.NewHub()
	srv := httptest.NewServer(api.NewServer(store, hub, auth, clock))
	defer srv.Close()
	token, err := auth.Issue("u1", nil, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan notify.Event, 4)
	go func() {
		_ = notify.Subscribe(ctx, "ws"+srv.URL[len("http"):]+"/api/changes", nil, func(ev notify.Event) { events <- ev })
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/tasks", bytes.NewReader([]byte(`{"name":"n"}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	select {
	case ev := <-events:
		assert.Equal(t, "tasks", ev.Resource)
		assert.Equal(t, notify.OpCreate, ev.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
}

func TestStoreErrorsAreForwarded(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	f := newFixture(t, store)

	store.EXPECT().
		Find(gomock.Any(), "tasks", gomock.Any(), docstore.Page{}).
		Return(nil, errors.New("connection reset by peer"))
	_, body := f.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, map[string]any{"success": false, "message": "connection reset by peer"}, body)

	store.EXPECT().
		FindByID(gomock.Any(), "tasks", "t1").
		Return(nil, docstore.ErrNotFound)
	_, body = f.do(http.MethodGet, "/api/tasks/t1", "", nil)
	assert.Equal(t, "Task not found.", body["message"])

	store.EXPECT().
		FindByID(gomock.Any(), "tasks", "t1").
		Return(docstore.Document{"_id": "t1", "name": "one", "created": "2024-01-01T00:00:00Z"}, nil)
	store.EXPECT().
		Replace(gomock.Any(), "tasks", gomock.Any()).
		Return(errors.New("write conflict"))
	_, body = f.do(http.MethodPut, "/api/tasks/t1", f.user, map[string]any{"name": "two"})
	assert.Equal(t, "write conflict", body["message"])
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	auth := api.NewAuthenticator("secret", clock)

	token, err := auth.Issue("u1", []string{api.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	claims, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.HasRole(api.RoleAdmin))

	_, err = api.NewAuthenticator("other", clock).Parse(token)
	assert.Error(t, err)

	clock.Advance(2 * time.Minute)
	_, err = auth.Parse(token)
	assert.Error(t, err)
}
