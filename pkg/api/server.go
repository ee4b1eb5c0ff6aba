// Package api serves the yote REST surface for tasks and notes over a document store, plus
// the websocket change feed.
package api

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/notify"
)

type Server struct {
	store  docstore.Store
	hub    *notify.Hub
	auth   *Authenticator
	clock  clockwork.Clock
	router *mux.Router
}

func NewServer(store docstore.Store, hub *notify.Hub, auth *Authenticator, clock clockwork.Clock) *Server {
	s := &Server{store: store, hub: hub, auth: auth, clock: clock}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Use(auth.Identify)

	r.Methods(http.MethodGet).Path("/api/changes").Handler(hub)
	s.mountTasks(r)
	s.mountNotes(r)
	r.NotFoundHandler = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writeReply(writer, http.StatusNotFound, failure("no route for "+request.Method+" "+request.URL.Path))
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	s.router.ServeHTTP(writer, request)
}
