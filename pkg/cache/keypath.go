package cache

import (
	"net/url"
	"strings"
)

// Segment is one step of a list key path: either a single value or a set of values. Sets
// only make sense as the second segment, where they select a membership query.
type Segment struct {
	values []string
	set    bool
}

// Val is a scalar segment.
func Val(v string) Segment {
	return Segment{values: []string{v}}
}

// Set is a value-set segment, e.g. the ids of a by-_id-list query.
func Set(vs ...string) Segment {
	return Segment{values: append([]string(nil), vs...), set: true}
}

func (s Segment) IsSet() bool { return s.set }

func (s Segment) Values() []string { return append([]string(nil), s.values...) }

// String is the display form of the segment. Sets join their values with commas.
func (s Segment) String() string {
	return strings.Join(s.values, ",")
}

// key is the segment's key in the list tree. Values are escaped and sets carry their own
// prefix, so Val("a,b") and Set("a", "b") never share a node. Set values are each followed
// by a comma so Set() and Set("") differ.
func (s Segment) key() string {
	if !s.set {
		return "v:" + url.PathEscape(strings.Join(s.values, ""))
	}
	var b strings.Builder
	b.WriteString("s:")
	for _, v := range s.values {
		b.WriteString(url.PathEscape(v) + ",")
	}
	return b.String()
}

// KeyPath addresses a list in the tree, e.g. Path("_task", taskID).
type KeyPath []Segment

const allKey = "all"

// All is the default list, used when no key path is given.
var All = KeyPath{Val(allKey)}

// Path builds a key path of scalar segments.
func Path(vs ...string) KeyPath {
	out := make(KeyPath, 0, len(vs))
	for _, v := range vs {
		out = append(out, Val(v))
	}
	return out
}

func (p KeyPath) orAll() KeyPath {
	if len(p) == 0 {
		return All
	}
	return p
}

// key is unique per distinct path and is used to key in-flight requests. Segment keys never
// contain an unescaped "/", so Path("k", "x/y") and Path("k", "x", "y") differ.
func (p KeyPath) key() string {
	parts := make([]string, 0, len(p))
	for _, s := range p {
		parts = append(parts, s.key())
	}
	return strings.Join(parts, "/")
}

// String is the display form of the path, used in logs.
func (p KeyPath) String() string {
	parts := make([]string, 0, len(p))
	for _, s := range p {
		if s.set {
			parts = append(parts, "["+s.String()+"]")
		} else {
			parts = append(parts, s.String())
		}
	}
	return strings.Join(parts, "/")
}

// Route derives the api target for fetching the list at path from the resource base, e.g.
// "/api/tasks". The rules match the server's route table:
//
//	()                 -> base
//	("all")            -> base
//	(k)                -> base/by-k
//	(k, Set(v1, v2))   -> base/by-k-list?k=v1&k=v2&
//	(k, v)             -> base/by-k/v
//	(k, v, a, b, ...)  -> base/by-k/v/a/b/...
func Route(base string, path KeyPath) string {
	switch {
	case len(path) == 0:
		return base
	case len(path) == 1 && path[0].String() == allKey && !path[0].set:
		return base
	case len(path) == 1:
		return base + "/by-" + path[0].String()
	case len(path) == 2 && path[1].set:
		key := path[0].String()
		var b strings.Builder
		b.WriteString(base + "/by-" + key + "-list?")
		for _, v := range path[1].values {
			b.WriteString(url.QueryEscape(key) + "=" + url.QueryEscape(v) + "&")
		}
		return b.String()
	default:
		target := base + "/by-" + path[0].String()
		for _, s := range path[1:] {
			target += "/" + url.PathEscape(s.String())
		}
		return target
	}
}
