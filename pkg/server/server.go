package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rampwatch/pkg/models"
	"rampwatch/pkg/watcher"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server mirrors the watcher's derived state over HTTP and WebSocket for
// headless use.
type Server struct {
	log       zerolog.Logger
	watcher   *watcher.Watcher
	recipient models.Recipient
	clients   map[*websocket.Conn]bool
	mu        sync.Mutex
	mux       *http.ServeMux
}

func NewServer(w *watcher.Watcher, recipient models.Recipient, log zerolog.Logger) *Server {
	s := &Server{
		log:       log.With().Str("component", "server").Logger(),
		watcher:   w,
		recipient: recipient,
		clients:   make(map[*websocket.Conn]bool),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(port int) error {
	go s.listenToWatcher()

	s.log.Info().Int("port", port).Msg("API server listening")
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.mux)
}

func (s *Server) snapshot() map[string]interface{} {
	_, display := s.watcher.Donations()
	record, known := s.watcher.Record()
	return map[string]interface{}{
		"recipient":  s.recipient,
		"donations":  display,
		"account":    s.watcher.Account(),
		"record":     record,
		"registered": known && record.Present,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	// Send initial state
	initialData := map[string]interface{}{
		"type": "initial",
		"data": s.snapshot(),
	}
	_ = conn.WriteJSON(initialData)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
