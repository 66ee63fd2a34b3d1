package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tradearena/internal/position"
	"tradearena/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventsWSHandler streams position close events to the owning user.
// Each connection registers as a distinct subscriber, so the store's
// per-subscriber delivery tracking makes sure an event is pushed to a
// given connection at most once while it is still fresh.
type EventsWSHandler struct {
	positions *position.Service
	store     store.Store
	secret    string
	origin    string
	upgrader  websocket.Upgrader
}

func NewEventsWSHandler(positions *position.Service, st store.Store, secret, origin string) *EventsWSHandler {
	return &EventsWSHandler{
		positions: positions,
		store:     st,
		secret:    secret,
		origin:    origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := ParseToken(h.secret, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subscriberID := "ws:" + uuid.New().String()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := h.push(r.Context(), conn, userID, subscriberID); err != nil {
				return
			}
		}
	}
}

func (h *EventsWSHandler) push(ctx context.Context, conn *websocket.Conn, userID, subscriberID string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	accounts, err := h.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil // transient store error, keep the connection
	}
	for _, a := range accounts {
		events, err := h.positions.Events(ctx, a.ID, subscriberID)
		if err != nil {
			continue
		}
		for i := range events {
			if err := conn.WriteJSON(map[string]any{
				"type": "position_event",
				"data": events[i],
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
