package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetroute/internal/events"
)

// WebSocket stream of optimization events. Server frames:
//   {"type":"connection_ack"}, {"type":"next","payload":<event>}, {"type":"ping"}, {"type":"pong"}
// Clients may send {"type":"ping"} or {"type":"complete"} to end the stream.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	sseHeartbeat   = 15 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RouteEventsWSHandler handles GET /v1/routes/{id}/events/ws
func (s *Server) RouteEventsWSHandler(w http.ResponseWriter, r *http.Request, routeID string) {
	ctx, tenant := s.withTenant(r)
	if _, err := s.Store.GetRoute(ctx, tenant, routeID); err != nil {
		writeError(w, r, "Get route failed", err)
		return
	}
	s.serveWS(w, r, events.RouteTopic(tenant, routeID))
}

// BatchEventsWSHandler handles GET /v1/optimize-all/events/ws for the caller's tenant.
func (s *Server) BatchEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	_, tenant := s.withTenant(r)
	s.serveWS(w, r, events.BatchTopic(tenant))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); return nil })

	// the reader forwards client frames; all writes stay on this goroutine
	incoming := make(chan wsMessage)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(incoming)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			select {
			case incoming <- msg:
			case <-done:
				return
			}
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "connection_ack"}); err != nil {
		return
	}
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			switch msg.Type {
			case "ping":
				if err := conn.WriteJSON(wsMessage{Type: "pong", ID: msg.ID}); err != nil {
					return
				}
			case "complete":
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, _ := json.Marshal(evt)
			if err := conn.WriteJSON(wsMessage{Type: "next", Payload: payload}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(wsMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

// routeEventsSSE streams route events as server-sent events with periodic heartbeats.
func (s *Server) routeEventsSSE(w http.ResponseWriter, r *http.Request, routeID string) {
	ctx, tenant := s.withTenant(r)
	if _, err := s.Store.GetRoute(ctx, tenant, routeID); err != nil {
		writeError(w, r, "Get route failed", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := events.RouteTopic(tenant, routeID)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"routeId\":%q,\"ts\":%q}\n\n", routeID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}
