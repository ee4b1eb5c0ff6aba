package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/model"
)

const usersCollection = "users"

func (s *Server) mountNotes(r *mux.Router) {
	c := &controller[model.Note]{
		Server:     s,
		collection: "notes",
		singular:   "note",
		plural:     "notes",
		title:      "Note",
		schema:     model.NoteSchema,
		defaultObj: model.DefaultNote(),
	}
	c.mount(r, map[string]http.HandlerFunc{
		"create":     s.createNote(c),
		"listByRefs": s.listNotesByRefs(c),
	})
}

// createNote only accepts notes on an existing task, and files them under the task's flow.
func (s *Server) createNote(c *controller[model.Note]) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		body, err := decodeBody(request)
		if err != nil {
			writeReply(writer, http.StatusBadRequest, failure(err.Error()))
			return
		}
		delete(body, "commentor")

		taskID, _ := body["_task"].(string)
		task, err := s.store.FindByID(request.Context(), "tasks", taskID)
		if err != nil {
			writeReply(writer, http.StatusNotFound, failure("NOT FOUND - INVALID TASK ID"))
			return
		}
		body["_flow"] = task["_flow"]
		c.insert(writer, request, body)
	}
}

// listNotesByRefs adds the author's name to every note found.
func (s *Server) listNotesByRefs(c *controller[model.Note]) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		docs, found := c.findByRefs(writer, request)
		if !found {
			return
		}

		userIDs := make(docstore.In, 0, len(docs))
		for _, d := range docs {
			if id, _ := d["_user"].(string); id != "" {
				userIDs = append(userIDs, id)
			}
		}
		commentors := make(map[string]model.Commentor)
		if len(userIDs) > 0 {
			users, err := s.store.Find(request.Context(), usersCollection, docstore.Filter{docstore.IDKey: userIDs}, docstore.Page{})
			if err != nil {
				slog.Error("failed to load commentors", "err", err)
				writeReply(writer, http.StatusOK, failure(err.Error()))
				return
			}
			for _, raw := range users {
				user, err := model.Decode[model.User](raw)
				if err != nil {
					slog.Warn("skipping unreadable user", "id", raw.ID(), "err", err)
					continue
				}
				commentors[user.ID] = model.Commentor{FullName: user.FullName(), Created: user.Created}
			}
		}

		out := make([]docstore.Document, 0, len(docs))
		for _, d := range docs {
			joined := make(docstore.Document, len(d)+1)
			for k, v := range d {
				joined[k] = v
			}
			if id, _ := d["_user"].(string); id != "" {
				if commentor, known := commentors[id]; known {
					joined["commentor"] = commentor
				}
			}
			out = append(out, joined)
		}
		writeReply(writer, http.StatusOK, ok(reply{c.plural: out}))
	}
}
