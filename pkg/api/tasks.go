package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/astromechza/yote/pkg/model"
)

func (s *Server) mountTasks(r *mux.Router) {
	c := &controller[model.Task]{
		Server:     s,
		collection: "tasks",
		singular:   "task",
		plural:     "tasks",
		title:      "Task",
		schema:     model.TaskSchema,
		defaultObj: model.DefaultTask(),
	}
	c.mount(r, map[string]http.HandlerFunc{
		"put:complete": func(writer http.ResponseWriter, request *http.Request) {
			body, err := decodeBody(request)
			if err != nil {
				writeReply(writer, http.StatusBadRequest, failure(err.Error()))
				return
			}
			complete, valid := body["complete"].(bool)
			if !valid {
				writeReply(writer, http.StatusBadRequest, failure("complete must be a boolean"))
				return
			}
			c.patch(writer, request, map[string]any{"complete": complete})
		},
		"put:status": func(writer http.ResponseWriter, request *http.Request) {
			body, err := decodeBody(request)
			if err != nil {
				writeReply(writer, http.StatusBadRequest, failure(err.Error()))
				return
			}
			status, valid := body["status"].(string)
			if !valid || status == "" {
				writeReply(writer, http.StatusBadRequest, failure("status must be a non-empty string"))
				return
			}
			c.patch(writer, request, map[string]any{"status": status})
		},
	})
}
