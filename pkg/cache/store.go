// Package cache keeps client-side copies of api records: a map per entity type, a selected
// slot for the record being viewed, and a tree of id lists addressed by key paths. Fetches go
// to the server only when the cached copy is missing, stale or invalidated.
package cache

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/astromechza/yote/pkg/model"
	"github.com/astromechza/yote/pkg/notify"
)

// Store holds the caches of every resource served by the api.
type Store struct {
	Tasks *Resource[model.Task]
	Notes *Resource[model.Note]
}

func New(transport Transport, clock clockwork.Clock) *Store {
	return &Store{
		Tasks: NewResource[model.Task](Names{Collection: "tasks", Singular: "task", Plural: "tasks"}, transport, clock),
		Notes: NewResource[model.Note](Names{Collection: "notes", Singular: "note", Plural: "notes"}, transport, clock),
	}
}

// Apply routes a change event to the resource it concerns.
func (s *Store) Apply(ev notify.Event) {
	s.Tasks.Apply(ev)
	s.Notes.Apply(ev)
}

func (s *Store) CompleteTask(ctx context.Context, id string, complete bool) (SingleResult[model.Task], error) {
	return s.Tasks.SendUpdateAction(ctx, id, "complete", map[string]bool{"complete": complete})
}

func (s *Store) SetTaskStatus(ctx context.Context, id, status string) (SingleResult[model.Task], error) {
	return s.Tasks.SendUpdateAction(ctx, id, "status", map[string]string{"status": status})
}

// CreateNote posts a note and files it under its task's list.
func (s *Store) CreateNote(ctx context.Context, note model.Note) (SingleResult[model.Note], error) {
	res, err := s.Notes.SendCreate(ctx, note)
	if err != nil {
		return res, err
	}
	if res.Item.Task != "" {
		s.Notes.AddToList(res.Item.ID, Path("_task", res.Item.Task))
	}
	s.Notes.AddToList(res.Item.ID, All)
	return res, nil
}

// CreateTask posts a task and appends it to the default list.
func (s *Store) CreateTask(ctx context.Context, task model.Task) (SingleResult[model.Task], error) {
	res, err := s.Tasks.SendCreate(ctx, task)
	if err != nil {
		return res, err
	}
	s.Tasks.AddToList(res.Item.ID, All)
	return res, nil
}
