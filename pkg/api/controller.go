package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/astromechza/yote/pkg/docstore"
	"github.com/astromechza/yote/pkg/model"
	"github.com/astromechza/yote/pkg/notify"
)

// controller serves the generic read and write routes of one collection. The record type T
// decides which fields survive a write.
type controller[T any] struct {
	*Server

	collection string
	singular   string
	plural     string
	title      string
	schema     []model.Field
	defaultObj T
}

const (
	defaultPage = 1
	defaultPer  = 20
)

func (c *controller[T]) notFound() string {
	return c.title + " not found."
}

func (c *controller[T]) list(writer http.ResponseWriter, request *http.Request) {
	docs, err := c.store.Find(request.Context(), c.collection, nil, docstore.Page{})
	if err != nil {
		slog.Error("failed to list", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	writeReply(writer, http.StatusOK, ok(reply{c.plural: docs}))
}

// search filters by equality on every query parameter except page and per. Pagination applies
// only when either of those is given.
func (c *controller[T]) search(writer http.ResponseWriter, request *http.Request) {
	filter := docstore.Filter{}
	var page, per int
	for key, values := range request.URL.Query() {
		switch key {
		case "page":
			page, _ = strconv.Atoi(values[0])
		case "per":
			per, _ = strconv.Atoi(values[0])
		default:
			filter[key] = values[0]
		}
	}

	var window docstore.Page
	paginated := page > 0 || per > 0
	if paginated {
		page = max(page, defaultPage)
		if per <= 0 {
			per = defaultPer
		}
		window = docstore.Page{Skip: (page - 1) * per, Limit: per}
	}

	docs, err := c.store.Find(request.Context(), c.collection, filter, window)
	if err != nil {
		slog.Error("failed to search", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	body := reply{c.plural: docs}
	if paginated {
		body["pagination"] = reply{"per": per, "page": page}
	}
	writeReply(writer, http.StatusOK, ok(body))
}

// refFilter builds the query of a by-ref route: refKey = refId plus any further key/value
// pairs from the rest of the path. "null" matches a missing or null field.
func refFilter(vars map[string]string) (docstore.Filter, bool) {
	nullable := func(v string) any {
		if v == "null" {
			return nil
		}
		return v
	}
	filter := docstore.Filter{vars["refKey"]: nullable(vars["refId"])}
	rest := strings.TrimPrefix(vars["rest"], "/")
	if rest == "" {
		return filter, true
	}
	parts := strings.Split(rest, "/")
	if len(parts)%2 != 0 {
		return nil, false
	}
	for i := 0; i < len(parts); i += 2 {
		filter[parts[i]] = nullable(parts[i+1])
	}
	return filter, true
}

func (c *controller[T]) findByRefs(writer http.ResponseWriter, request *http.Request) ([]docstore.Document, bool) {
	vars := mux.Vars(request)
	filter, valid := refFilter(vars)
	if !valid {
		writeReply(writer, http.StatusOK, failure("Invalid parameter length"))
		return nil, false
	}
	docs, err := c.store.Find(request.Context(), c.collection, filter, docstore.Page{})
	if err != nil {
		slog.Error("failed to list by refs", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(fmt.Sprintf("Error retrieving %s by %s: %s", c.plural, vars["refKey"], vars["refId"])))
		return nil, false
	}
	return docs, true
}

func (c *controller[T]) listByRefs(writer http.ResponseWriter, request *http.Request) {
	docs, found := c.findByRefs(writer, request)
	if !found {
		return
	}
	writeReply(writer, http.StatusOK, ok(reply{c.plural: docs}))
}

// listByValues returns the records whose refKey is any of the repeated refKey query values.
func (c *controller[T]) listByValues(writer http.ResponseWriter, request *http.Request) {
	refKey := mux.Vars(request)["refKey"]
	values := request.URL.Query()[refKey]
	if len(values) == 0 {
		writeReply(writer, http.StatusOK, failure("Missing query param(s) specified by the ref: "+refKey))
		return
	}
	in := make(docstore.In, 0, len(values))
	for _, v := range values {
		in = append(in, v)
	}
	docs, err := c.store.Find(request.Context(), c.collection, docstore.Filter{refKey: in}, docstore.Page{})
	if err != nil {
		slog.Error("failed to list by values", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(fmt.Sprintf("Error querying for %s by %s list", c.plural, refKey)))
		return
	}
	writeReply(writer, http.StatusOK, ok(reply{c.plural: docs}))
}

func (c *controller[T]) getDefault(writer http.ResponseWriter, _ *http.Request) {
	writeReply(writer, http.StatusOK, ok(reply{"defaultObj": c.defaultObj}))
}

func (c *controller[T]) getSchema(writer http.ResponseWriter, _ *http.Request) {
	writeReply(writer, http.StatusOK, ok(reply{"schema": c.schema}))
}

func (c *controller[T]) getByID(writer http.ResponseWriter, request *http.Request) {
	doc, err := c.store.FindByID(request.Context(), c.collection, mux.Vars(request)["id"])
	if errors.Is(err, docstore.ErrNotFound) {
		writeReply(writer, http.StatusOK, failure(c.notFound()))
		return
	} else if err != nil {
		slog.Error("failed to get", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	writeReply(writer, http.StatusOK, ok(reply{c.singular: doc}))
}

// prepareNew lays body over the default record and stamps the id, owner and times.
func (c *controller[T]) prepareNew(request *http.Request, body map[string]any) (docstore.Document, error) {
	doc, err := model.Encode(c.defaultObj)
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		doc[k] = v
	}
	now := c.clock.Now().UTC().Format(time.RFC3339Nano)
	doc[docstore.IDKey] = model.NewID()
	doc["created"] = now
	doc["updated"] = now
	if owner, _ := doc["_user"].(string); owner == "" {
		if claims, found := ClaimsFrom(request.Context()); found {
			doc["_user"] = claims.Subject
		}
	}
	return model.Sanitize[T](doc)
}

func (c *controller[T]) create(writer http.ResponseWriter, request *http.Request) {
	body, err := decodeBody(request)
	if err != nil {
		writeReply(writer, http.StatusBadRequest, failure(err.Error()))
		return
	}
	delete(body, "commentor")
	c.insert(writer, request, body)
}

func (c *controller[T]) insert(writer http.ResponseWriter, request *http.Request, body map[string]any) {
	doc, err := c.prepareNew(request, body)
	if err != nil {
		writeReply(writer, http.StatusBadRequest, failure(err.Error()))
		return
	}
	if err := c.store.Insert(request.Context(), c.collection, doc); err != nil {
		slog.Error("failed to create", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	c.publish(doc, notify.OpCreate)
	writeReply(writer, http.StatusOK, ok(reply{"message": "Created " + c.singular, c.singular: doc}))
}

// patch merges changes into the stored record, keeping its id and creation time.
func (c *controller[T]) patch(writer http.ResponseWriter, request *http.Request, changes map[string]any) {
	id := mux.Vars(request)["id"]
	existing, err := c.store.FindByID(request.Context(), c.collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		writeReply(writer, http.StatusOK, failure(c.notFound()))
		return
	} else if err != nil {
		slog.Error("failed to get", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}

	merged := make(map[string]any, len(existing)+len(changes))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}
	merged[docstore.IDKey] = id
	merged["created"] = existing["created"]
	merged["updated"] = c.clock.Now().UTC().Format(time.RFC3339Nano)

	doc, err := model.Sanitize[T](merged)
	if err != nil {
		writeReply(writer, http.StatusBadRequest, failure(err.Error()))
		return
	}
	if err := c.store.Replace(request.Context(), c.collection, doc); errors.Is(err, docstore.ErrNotFound) {
		writeReply(writer, http.StatusOK, failure(c.notFound()))
		return
	} else if err != nil {
		slog.Error("failed to update", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	c.publish(doc, notify.OpUpdate)
	writeReply(writer, http.StatusOK, ok(reply{c.singular: doc}))
}

func (c *controller[T]) update(writer http.ResponseWriter, request *http.Request) {
	body, err := decodeBody(request)
	if err != nil {
		writeReply(writer, http.StatusBadRequest, failure(err.Error()))
		return
	}
	// joined on read, never stored
	delete(body, "commentor")
	c.patch(writer, request, body)
}

func (c *controller[T]) delete(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	slog.Warn("deleting", "collection", c.collection, "id", id)
	if err := c.store.Delete(request.Context(), c.collection, id); errors.Is(err, docstore.ErrNotFound) {
		writeReply(writer, http.StatusOK, failure(c.notFound()))
		return
	} else if err != nil {
		slog.Error("failed to delete", "collection", c.collection, "err", err)
		writeReply(writer, http.StatusOK, failure(err.Error()))
		return
	}
	c.hub.Publish(notify.Event{Resource: c.collection, ID: id, Op: notify.OpDelete})
	writeReply(writer, http.StatusOK, ok(reply{"message": "Deleted " + c.singular}))
}

func (c *controller[T]) publish(doc docstore.Document, op notify.Op) {
	c.hub.Publish(notify.Event{Resource: c.collection, ID: doc.ID(), Op: op})
}

// mount registers the shared routes of the collection. Routes whose last segment could be
// mistaken for an id go before the id route. Handlers in custom replace the generic ones by
// name.
func (c *controller[T]) mount(r *mux.Router, custom map[string]http.HandlerFunc) {
	pick := func(name string, fallback http.HandlerFunc) http.HandlerFunc {
		if h, found := custom[name]; found {
			return h
		}
		return fallback
	}
	base := "/api/" + c.collection
	r.Methods(http.MethodPost).Path(base).HandlerFunc(RequireLogin(pick("create", c.create)))
	r.Methods(http.MethodGet).Path(base).HandlerFunc(c.list)
	r.Methods(http.MethodGet).Path(base + "/search").HandlerFunc(c.search)
	r.Methods(http.MethodGet).Path(base + "/by-{refKey}-list").HandlerFunc(c.listByValues)
	r.Methods(http.MethodGet).Path(base + "/by-{refKey}/{refId}{rest:(?:/.*)?}").HandlerFunc(pick("listByRefs", c.listByRefs))
	r.Methods(http.MethodGet).Path(base + "/default").HandlerFunc(c.getDefault)
	r.Methods(http.MethodGet).Path(base + "/schema").HandlerFunc(RequireRole(RoleAdmin, c.getSchema))
	for action, h := range custom {
		if name, found := strings.CutPrefix(action, "put:"); found {
			r.Methods(http.MethodPut).Path(base + "/{id}/" + name).HandlerFunc(RequireLogin(h))
		}
	}
	r.Methods(http.MethodGet).Path(base + "/{id}").HandlerFunc(c.getByID)
	r.Methods(http.MethodPut).Path(base + "/{id}").HandlerFunc(RequireLogin(c.update))
	r.Methods(http.MethodDelete).Path(base + "/{id}").HandlerFunc(RequireRole(RoleAdmin, c.delete))
}
