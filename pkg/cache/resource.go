package cache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"

	"github.com/astromechza/yote/pkg/client"
	"github.com/astromechza/yote/pkg/model"
	"github.com/astromechza/yote/pkg/notify"
)

// Transport issues api calls. *client.Client implements it.
type Transport interface {
	Call(ctx context.Context, method, target string, body any) (*client.Envelope, error)
}

// SingleResult is what a single-entity operation resolves to, whether or not it went to the
// server. Success is false when the server or transport failed; Item then holds whatever is
// cached for ID.
type SingleResult[T Entity] struct {
	ID      string
	Item    T
	Found   bool
	Fetched bool
	Success bool
	Error   string
}

// ListResult is what a list operation resolves to.
type ListResult[T Entity] struct {
	Path    KeyPath
	Items   []T
	Fetched bool
	Success bool
	Error   string
}

// Names are the api names of a resource: its collection ("tasks") and the response keys
// holding one record ("task") or many ("tasks").
type Names struct {
	Collection string
	Singular   string
	Plural     string
}

// Resource coordinates the caches of one entity type with the api. All cache state sits
// behind one mutex; network calls happen outside of it.
type Resource[T Entity] struct {
	names     Names
	base      string
	transport Transport
	clock     clockwork.Clock

	mu          sync.Mutex
	entities    *EntityCache[T]
	lists       *ListCache
	defaultItem *T
	schema      []model.Field

	// group collapses concurrent fetches of the same id or key path into one call.
	group singleflight.Group
}

func NewResource[T Entity](names Names, transport Transport, clock clockwork.Clock) *Resource[T] {
	return &Resource[T]{
		names:     names,
		base:      "/api/" + names.Collection,
		transport: transport,
		clock:     clock,
		entities:  NewEntityCache[T](),
		lists:     NewListCache(),
	}
}

func (r *Resource[T]) Names() Names { return r.names }

// Get returns a cached entity.
func (r *Resource[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entities.Get(id)
}

// Selected returns the slot and, if cached, the entity it points at.
func (r *Resource[T]) Selected() (SelectedSlot, T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entities.SelectedItem()
	return r.entities.Selected(), item, ok
}

func (r *Resource[T]) InvalidateSelected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.Invalidate()
}

// List maps the ids of the list at path to cached entities, skipping ids not in the map.
func (r *Resource[T]) List(path KeyPath) ([]T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listItems(path)
}

func (r *Resource[T]) listItems(path KeyPath) ([]T, bool) {
	d, ok := r.lists.Resolve(path)
	if !ok || d.Items == nil {
		return nil, false
	}
	out := make([]T, 0, len(d.Items))
	for _, id := range d.Items {
		if item, ok := r.entities.Get(id); ok {
			out = append(out, item)
		}
	}
	return out, true
}

// Descriptor returns a copy of the list state at path.
func (r *Resource[T]) Descriptor(path KeyPath) (ListDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lists.Descriptor(path)
}

func (r *Resource[T]) SetFilter(filter Filter, path KeyPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists.SetFilter(filter, path)
}

func (r *Resource[T]) SetPagination(p Pagination, path KeyPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists.SetPagination(p, path)
}

func (r *Resource[T]) InvalidateList(path KeyPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists.InvalidateList(path)
}

func (r *Resource[T]) AddToList(id string, path KeyPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists.AddToList(id, path)
}

func (r *Resource[T]) RemoveFromList(id string, path KeyPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists.RemoveFromList(id, path)
}

// FetchSingleIfNeeded resolves to the entity id, going to the server only when the cache
// says so. A call made while the same id is already being fetched waits for that fetch
// instead of starting another.
func (r *Resource[T]) FetchSingleIfNeeded(ctx context.Context, id string) (SingleResult[T], error) {
	r.mu.Lock()
	sel := r.entities.Selected()
	joining := sel.ID == id && sel.IsFetching
	if !joining && !r.entities.ShouldFetchSingle(id, r.clock.Now()) {
		item, found := r.entities.Get(id)
		r.mu.Unlock()
		return SingleResult[T]{ID: id, Item: item, Found: found, Success: true}, nil
	}
	if !joining {
		r.entities.request(id)
	}
	// registered under the lock, so a concurrent caller that sees IsFetching finds this call
	ch := r.group.DoChan(singleKey(id), func() (any, error) {
		return r.fetchSingle(context.WithoutCancel(ctx), id)
	})
	r.mu.Unlock()

	select {
	case res := <-ch:
		out, _ := res.Val.(SingleResult[T])
		return out, res.Err
	case <-ctx.Done():
		return r.cachedSingle(id, ctx.Err().Error()), ctx.Err()
	}
}

// FetchSingle skips the staleness check, e.g. to refresh after an edit elsewhere. A fetch of
// id that is already in flight is joined rather than repeated, so its result may predate
// the caller's edit.
func (r *Resource[T]) FetchSingle(ctx context.Context, id string) (SingleResult[T], error) {
	r.mu.Lock()
	r.entities.request(id)
	ch := r.group.DoChan(singleKey(id), func() (any, error) {
		return r.fetchSingle(context.WithoutCancel(ctx), id)
	})
	r.mu.Unlock()

	select {
	case res := <-ch:
		out, _ := res.Val.(SingleResult[T])
		return out, res.Err
	case <-ctx.Done():
		return r.cachedSingle(id, ctx.Err().Error()), ctx.Err()
	}
}

// singleKey and listKey name in-flight fetches. A fetch drops its key under r.mu in the
// same step that clears IsFetching, so a caller that sees IsFetching always joins a call
// that has not applied its result yet, and one that sees it cleared starts a new call.
func singleKey(id string) string { return "single:" + id }

func listKey(path KeyPath) string { return "list:" + path.key() }

func (r *Resource[T]) cachedSingle(id, message string) SingleResult[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, found := r.entities.Get(id)
	return SingleResult[T]{ID: id, Item: item, Found: found, Error: message}
}

func (r *Resource[T]) fetchSingle(ctx context.Context, id string) (SingleResult[T], error) {
	var item T
	env, err := r.transport.Call(ctx, http.MethodGet, r.base+"/"+id, nil)
	if err == nil {
		err = env.Err()
	}
	if err == nil {
		err = env.Decode(r.names.Singular, &item)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.group.Forget(singleKey(id))
	now := r.clock.Now()
	if err != nil {
		r.entities.fail(id, err.Error(), now)
		slog.Error("failed to fetch", "resource", r.names.Collection, "id", id, "err", err)
		cached, found := r.entities.Get(id)
		return SingleResult[T]{ID: id, Item: cached, Found: found, Fetched: true, Error: err.Error()}, err
	}
	r.entities.receive(id, item, now)
	return SingleResult[T]{ID: id, Item: item, Found: true, Fetched: true, Success: true}, nil
}

// FetchListIfNeeded resolves to the entities of the list at path (All when empty), going to
// the server only when the cache says so. Concurrent calls for one path share a fetch.
func (r *Resource[T]) FetchListIfNeeded(ctx context.Context, path KeyPath) (ListResult[T], error) {
	path = path.orAll()

	r.mu.Lock()
	d, exists := r.lists.Resolve(path)
	joining := exists && d.IsFetching
	if !joining && !r.lists.ShouldFetchList(path, r.clock.Now()) {
		items, _ := r.listItems(path)
		r.mu.Unlock()
		return ListResult[T]{Path: path, Items: items, Success: true}, nil
	}
	if !joining {
		r.lists.request(path)
	}
	ch := r.group.DoChan(listKey(path), func() (any, error) {
		return r.fetchList(context.WithoutCancel(ctx), path)
	})
	r.mu.Unlock()

	return r.waitList(ctx, path, ch)
}

// FetchList skips the staleness check. Like FetchSingle it joins a fetch of path that is
// already in flight.
func (r *Resource[T]) FetchList(ctx context.Context, path KeyPath) (ListResult[T], error) {
	path = path.orAll()
	r.mu.Lock()
	r.lists.request(path)
	ch := r.group.DoChan(listKey(path), func() (any, error) {
		return r.fetchList(context.WithoutCancel(ctx), path)
	})
	r.mu.Unlock()
	return r.waitList(ctx, path, ch)
}

func (r *Resource[T]) waitList(ctx context.Context, path KeyPath, ch <-chan singleflight.Result) (ListResult[T], error) {
	select {
	case res := <-ch:
		out, _ := res.Val.(ListResult[T])
		return out, res.Err
	case <-ctx.Done():
		r.mu.Lock()
		items, _ := r.listItems(path)
		r.mu.Unlock()
		return ListResult[T]{Path: path, Items: items, Error: ctx.Err().Error()}, ctx.Err()
	}
}

func (r *Resource[T]) fetchList(ctx context.Context, path KeyPath) (ListResult[T], error) {
	var items []T
	env, err := r.transport.Call(ctx, http.MethodGet, Route(r.base, path), nil)
	if err == nil {
		err = env.Err()
	}
	if err == nil {
		err = env.Decode(r.names.Plural, &items)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.group.Forget(listKey(path))
	now := r.clock.Now()
	if err != nil {
		r.lists.fail(path, err.Error(), now)
		slog.Error("failed to fetch list", "resource", r.names.Collection, "path", path.String(), "err", err)
		stale, _ := r.listItems(path)
		return ListResult[T]{Path: path, Items: stale, Fetched: true, Error: err.Error()}, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		r.entities.Put(item)
		ids = append(ids, item.GetID())
	}
	r.lists.receive(path, ids, now)
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{Path: path, Items: items, Fetched: true, Success: true}, nil
}

// send performs a write and applies the returned record to the cache.
func (r *Resource[T]) send(ctx context.Context, method, target string, body any) (SingleResult[T], error) {
	var item T
	env, err := r.transport.Call(ctx, method, target, body)
	if err == nil {
		err = env.Err()
	}
	if err == nil {
		err = env.Decode(r.names.Singular, &item)
	}
	if err != nil {
		return SingleResult[T]{Error: err.Error()}, zerr.With(zerr.Wrap(err, "failed to send"), "target", target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.Select(item, r.clock.Now())
	return SingleResult[T]{ID: item.GetID(), Item: item, Found: true, Fetched: true, Success: true}, nil
}

// SendCreate posts a new record. The created record becomes the selection; lists are left
// for the caller to invalidate or extend.
func (r *Resource[T]) SendCreate(ctx context.Context, item T) (SingleResult[T], error) {
	return r.send(ctx, http.MethodPost, r.base, item)
}

func (r *Resource[T]) SendUpdate(ctx context.Context, item T) (SingleResult[T], error) {
	return r.send(ctx, http.MethodPut, r.base+"/"+item.GetID(), item)
}

// SendUpdateAction puts body to one of the record's action routes, e.g. "complete".
func (r *Resource[T]) SendUpdateAction(ctx context.Context, id, action string, body any) (SingleResult[T], error) {
	return r.send(ctx, http.MethodPut, r.base+"/"+id+"/"+action, body)
}

// SendDelete removes a record on the server and then from the map and every list.
func (r *Resource[T]) SendDelete(ctx context.Context, id string) error {
	env, err := r.transport.Call(ctx, http.MethodDelete, r.base+"/"+id, nil)
	if err == nil {
		err = env.Err()
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to delete"), "id", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities.forget(id)
	r.lists.RemoveEverywhere(id)
	return nil
}

// FetchDefault returns the blank record used by create forms.
func (r *Resource[T]) FetchDefault(ctx context.Context) (T, error) {
	var item T
	env, err := r.transport.Call(ctx, http.MethodGet, r.base+"/default", nil)
	if err == nil {
		err = env.Err()
	}
	if err == nil {
		err = env.Decode("defaultObj", &item)
	}
	if err != nil {
		return item, zerr.Wrap(err, "failed to fetch default")
	}
	r.mu.Lock()
	r.defaultItem = &item
	r.mu.Unlock()
	return item, nil
}

// Default returns the last fetched default record.
func (r *Resource[T]) Default() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaultItem == nil {
		var zero T
		return zero, false
	}
	return *r.defaultItem, true
}

func (r *Resource[T]) FetchSchema(ctx context.Context) ([]model.Field, error) {
	var schema []model.Field
	env, err := r.transport.Call(ctx, http.MethodGet, r.base+"/schema", nil)
	if err == nil {
		err = env.Err()
	}
	if err == nil {
		err = env.Decode("schema", &schema)
	}
	if err != nil {
		return nil, zerr.Wrap(err, "failed to fetch schema")
	}
	r.mu.Lock()
	r.schema = schema
	r.mu.Unlock()
	return schema, nil
}

// Apply reacts to a change made elsewhere: the selection is invalidated if it is the changed
// record, every list is invalidated, and deleted records are dropped.
func (r *Resource[T]) Apply(ev notify.Event) {
	if ev.Resource != r.names.Collection {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Op == notify.OpDelete {
		r.entities.Remove(ev.ID)
		r.lists.RemoveEverywhere(ev.ID)
	}
	if r.entities.Selected().ID == ev.ID {
		r.entities.Invalidate()
	}
	r.lists.InvalidateAll()
}
