package cache

import "time"

// Entity is anything with a stable id.
type Entity interface {
	GetID() string
}

// SelectedSlot tracks the one entity of a type currently being viewed, and the state of its
// last fetch.
type SelectedSlot struct {
	ID            string
	IsFetching    bool
	DidInvalidate bool
	LastUpdated   time.Time
	Error         string
}

// EntityCache maps ids to entities and owns the selected slot. It is not safe for concurrent
// use; Resource serialises access to it.
type EntityCache[T Entity] struct {
	byID     map[string]T
	selected SelectedSlot
}

func NewEntityCache[T Entity]() *EntityCache[T] {
	return &EntityCache[T]{byID: make(map[string]T)}
}

func (c *EntityCache[T]) Get(id string) (T, bool) {
	v, ok := c.byID[id]
	return v, ok
}

// Put upserts by id.
func (c *EntityCache[T]) Put(item T) {
	c.byID[item.GetID()] = item
}

func (c *EntityCache[T]) Remove(id string) {
	delete(c.byID, id)
}

func (c *EntityCache[T]) Len() int {
	return len(c.byID)
}

func (c *EntityCache[T]) Selected() SelectedSlot {
	return c.selected
}

// SelectedItem resolves the selected slot against the map.
func (c *EntityCache[T]) SelectedItem() (T, bool) {
	return c.Get(c.selected.ID)
}

// Select points the slot at an entity that is already in the map, e.g. after a create.
func (c *EntityCache[T]) Select(item T, now time.Time) {
	c.Put(item)
	c.selected = SelectedSlot{ID: item.GetID(), LastUpdated: now}
}

// ShouldFetchSingle decides whether id has to be fetched from the server:
//   - a different id is selected: yes
//   - the selected id is being fetched: no
//   - the id is not cached and the last fetch did not fail: yes
//   - the last fetch is older than FreshFor: yes
//   - otherwise only if the slot was invalidated.
//
// A failed fetch is not retried until it goes stale or is invalidated, since the server
// would most likely fail again.
func (c *EntityCache[T]) ShouldFetchSingle(id string, now time.Time) bool {
	s := c.selected
	_, cached := c.byID[id]
	switch {
	case s.ID != id:
		return true
	case s.IsFetching:
		return false
	case !cached && s.Error == "":
		return true
	case expired(s.LastUpdated, now):
		return true
	default:
		return s.DidInvalidate
	}
}

// Invalidate forces the next fetch of the selected entity. Cached data is kept.
func (c *EntityCache[T]) Invalidate() {
	c.selected.DidInvalidate = true
}

// request overwrites the slot for a fetch of id that is starting.
func (c *EntityCache[T]) request(id string) {
	if c.selected.ID != id {
		c.selected = SelectedSlot{ID: id}
	}
	c.selected.IsFetching = true
}

// receive records a successful fetch. The slot only follows if id is still the selection.
func (c *EntityCache[T]) receive(id string, item T, now time.Time) {
	c.Put(item)
	if c.selected.ID == id {
		c.selected = SelectedSlot{ID: id, LastUpdated: now}
	}
}

// fail records a failed fetch, leaving any cached entity in place.
func (c *EntityCache[T]) fail(id string, message string, now time.Time) {
	if c.selected.ID == id {
		c.selected.IsFetching = false
		c.selected.DidInvalidate = false
		c.selected.LastUpdated = now
		c.selected.Error = message
	}
}

// forget drops an entity and clears the slot if it pointed at it.
func (c *EntityCache[T]) forget(id string) {
	c.Remove(id)
	if c.selected.ID == id {
		c.selected = SelectedSlot{}
	}
}
