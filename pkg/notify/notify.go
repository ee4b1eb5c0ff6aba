// Package notify streams record changes from the api to connected clients over websockets,
// so that their caches can drop stale entries without waiting out the freshness window.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.trai.ch/zerr"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event says that record ID of Resource changed.
type Event struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Op       Op     `json:"op"`
}

const (
	subscriberBuffer = 64
	pingInterval     = 30 * time.Second
	writeWait        = 10 * time.Second
)

// Hub fans published events out to every connected subscriber. A subscriber that cannot keep
// up loses events rather than blocking the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	upgrader    websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping change event for slow subscriber", "resource", ev.Resource, "id", ev.ID)
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and streams events until either side goes away.
func (h *Hub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	events := h.subscribe()
	defer h.unsubscribe(events)
	slog.Info("change feed connected", "remote", request.RemoteAddr)

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// clients never send anything; reading only notices the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case ev := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					slog.Error("failed to write event", "err", err)
					return
				}
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					slog.Error("failed to ping", "err", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	slog.Info("change feed disconnected", "remote", request.RemoteAddr)
}

// Subscribe dials the change feed at url (ws:// or wss://) and calls fn for every event until
// ctx is done or the connection drops.
func Subscribe(ctx context.Context, url string, header http.Header, fn func(Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return zerr.Wrap(err, "failed to dial")
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return zerr.Wrap(err, "failed to read event")
		}
		fn(ev)
	}
}
