package cache

import (
	"slices"
	"time"
)

// Filter holds the client-side filter state of a list, e.g. {"query": "foo", "sortBy": "name"}.
type Filter map[string]string

type Pagination struct {
	Page int
	Per  int
}

// ListDescriptor is one list of ids with the state of its last fetch. Items is nil until the
// list has been fetched or added to.
type ListDescriptor struct {
	Items         []string
	IsFetching    bool
	DidInvalidate bool
	LastUpdated   time.Time
	Error         string
	Filter        Filter
	Pagination    Pagination
}

func (d *ListDescriptor) clone() ListDescriptor {
	out := *d
	out.Items = slices.Clone(d.Items)
	if d.Filter != nil {
		out.Filter = make(Filter, len(d.Filter))
		for k, v := range d.Filter {
			out.Filter[k] = v
		}
	}
	return out
}

// listNode is one level of the list tree. A node can hold a list and deeper lists at once,
// e.g. "_task" may hold children keyed by task id.
type listNode struct {
	list     *ListDescriptor
	children map[string]*listNode
}

// ListCache is a tree of lists addressed by key paths. It is not safe for concurrent use;
// Resource serialises access to it.
type ListCache struct {
	root *listNode
}

func NewListCache() *ListCache {
	return &ListCache{root: &listNode{}}
}

// Resolve walks path one segment at a time and returns the list at its end, or false if any
// segment is missing or the final node holds no list.
func (c *ListCache) Resolve(path KeyPath) (*ListDescriptor, bool) {
	node := c.root
	for _, seg := range path.orAll() {
		next, ok := node.children[seg.key()]
		if !ok {
			return nil, false
		}
		node = next
	}
	if node.list == nil {
		return nil, false
	}
	return node.list, true
}

// Descriptor returns a copy of the list at path.
func (c *ListCache) Descriptor(path KeyPath) (ListDescriptor, bool) {
	d, ok := c.Resolve(path)
	if !ok {
		return ListDescriptor{}, false
	}
	return d.clone(), true
}

// ensure returns the list at path, creating it and any intermediate nodes.
func (c *ListCache) ensure(path KeyPath) *ListDescriptor {
	node := c.root
	for _, seg := range path.orAll() {
		if node.children == nil {
			node.children = make(map[string]*listNode)
		}
		next, ok := node.children[seg.key()]
		if !ok {
			next = &listNode{}
			node.children[seg.key()] = next
		}
		node = next
	}
	if node.list == nil {
		node.list = &ListDescriptor{}
	}
	return node.list
}

// ShouldFetchList decides whether the list at path has to be fetched:
//   - it does not exist or has no items yet: yes
//   - it is being fetched: no
//   - the last fetch is older than FreshFor: yes
//   - otherwise only if it was invalidated.
func (c *ListCache) ShouldFetchList(path KeyPath, now time.Time) bool {
	d, ok := c.Resolve(path)
	switch {
	case !ok:
		return true
	case d.IsFetching:
		return false
	case d.Items == nil:
		return true
	case expired(d.LastUpdated, now):
		return true
	default:
		return d.DidInvalidate
	}
}

func (c *ListCache) SetFilter(filter Filter, path KeyPath) {
	c.ensure(path).Filter = filter
}

func (c *ListCache) SetPagination(p Pagination, path KeyPath) {
	c.ensure(path).Pagination = p
}

// InvalidateList forces the next fetch of the list at path. Its items are kept.
func (c *ListCache) InvalidateList(path KeyPath) {
	c.ensure(path).DidInvalidate = true
}

// InvalidateAll marks every list in the tree.
func (c *ListCache) InvalidateAll() {
	c.walk(func(d *ListDescriptor) { d.DidInvalidate = true })
}

// AddToList appends id to the list at path unless it is already there.
func (c *ListCache) AddToList(id string, path KeyPath) {
	d := c.ensure(path)
	if !slices.Contains(d.Items, id) {
		d.Items = append(d.Items, id)
	}
}

func (c *ListCache) RemoveFromList(id string, path KeyPath) {
	d, ok := c.Resolve(path)
	if !ok {
		return
	}
	d.Items = slices.DeleteFunc(d.Items, func(v string) bool { return v == id })
}

// RemoveEverywhere drops id from every list, after the entity was deleted.
func (c *ListCache) RemoveEverywhere(id string) {
	c.walk(func(d *ListDescriptor) {
		d.Items = slices.DeleteFunc(d.Items, func(v string) bool { return v == id })
	})
}

func (c *ListCache) walk(fn func(*ListDescriptor)) {
	var visit func(n *listNode)
	visit = func(n *listNode) {
		if n.list != nil {
			fn(n.list)
		}
		for _, child := range n.children {
			visit(child)
		}
	}
	visit(c.root)
}

func (c *ListCache) request(path KeyPath) {
	d := c.ensure(path)
	d.IsFetching = true
	if d.Items == nil {
		d.Items = []string{}
	}
}

// receive replaces the items of the list with a fresh fetch.
func (c *ListCache) receive(path KeyPath, ids []string, now time.Time) {
	d := c.ensure(path)
	d.Items = ids
	d.IsFetching = false
	d.DidInvalidate = false
	d.LastUpdated = now
	d.Error = ""
}

// fail records a failed fetch, leaving the previous items visible.
func (c *ListCache) fail(path KeyPath, message string, now time.Time) {
	d := c.ensure(path)
	d.IsFetching = false
	d.DidInvalidate = false
	d.LastUpdated = now
	d.Error = message
}
