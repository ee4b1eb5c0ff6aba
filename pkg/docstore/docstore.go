// Package docstore is the document database behind the yote api. Documents are schemaless
// maps keyed by "_id" and grouped into named collections.
package docstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.trai.ch/zerr"
)

// IDKey is the identifier field of every document.
const IDKey = "_id"

// Document is a single stored record.
type Document map[string]any

func (d Document) ID() string {
	id, _ := d[IDKey].(string)
	return id
}

// In matches documents whose field holds any of the values.
type In []any

// Filter is a conjunction of field conditions. A condition value is either a scalar compared
// for equality, nil matching a missing or null field, or an In set.
type Filter map[string]any

// Page restricts a Find to a window. The zero Page returns everything.
type Page struct {
	Skip  int
	Limit int
}

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = zerr.New("document not found")

	// ErrExists is returned by Insert when the id is already taken.
	ErrExists = zerr.New("document already exists")
)

// Store defines the document operations the api needs.
//
//go:generate go run go.uber.org/mock/mockgen -source=docstore.go -destination=mocks/mock_store.go -package=mocks
type Store interface {
	// Find returns the documents of a collection matching filter, oldest first.
	Find(ctx context.Context, collection string, filter Filter, page Page) ([]Document, error)

	// FindByID returns ErrNotFound when the id is unknown.
	FindByID(ctx context.Context, collection, id string) (Document, error)

	Insert(ctx context.Context, collection string, doc Document) error

	// Replace overwrites an existing document, returning ErrNotFound if it does not exist.
	Replace(ctx context.Context, collection string, doc Document) error

	Delete(ctx context.Context, collection, id string) error

	Close() error
}

// Match reports whether doc satisfies every condition of filter.
func (f Filter) Match(doc Document) bool {
	for key, want := range f {
		got, ok := doc[key]
		switch want := want.(type) {
		case nil:
			if ok && got != nil {
				return false
			}
		case In:
			if !slices.ContainsFunc(want, func(v any) bool { return equal(got, v) }) {
				return false
			}
		default:
			if !ok || !equal(got, want) {
				return false
			}
		}
	}
	return true
}

// equal compares loosely so that query string values match stored numbers and booleans.
func equal(got, want any) bool {
	if got == nil || want == nil {
		return got == want
	}
	if got == want {
		return true
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// sortDocuments orders by creation time and then id, so listings are stable across backends.
func sortDocuments(docs []Document) {
	slices.SortFunc(docs, func(a, b Document) int {
		ca, _ := a["created"].(string)
		cb, _ := b["created"].(string)
		if c := cmp.Compare(ca, cb); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
}

func applyPage(docs []Document, page Page) []Document {
	if page.Skip > 0 {
		if page.Skip >= len(docs) {
			return []Document{}
		}
		docs = docs[page.Skip:]
	}
	if page.Limit > 0 && page.Limit < len(docs) {
		docs = docs[:page.Limit]
	}
	return docs
}
