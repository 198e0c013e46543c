package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stephens/tubpanel/internal/device"
	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/protocol"
	"github.com/stephens/tubpanel/internal/storage"
)

// Controller is the device side the server exposes
type Controller interface {
	Greeting() []interface{}
	HandleMessage(clientID string, data []byte) ([]interface{}, error)
	Status() device.Status
}

// EventStore reads and writes the event log
type EventStore interface {
	GetEventLogs(filter storage.EventLogFilter) ([]storage.EventLog, error)
	LogEvent(source storage.EventSource, eventType storage.EventType, message string, details interface{}) error
}

// Options configures the HTTP server
type Options struct {
	Port      int
	StaticDir string
	// Inbound socket messages per second allowed per client, and the burst on top
	ClientRateLimit float64
	ClientBurst     int
}

// Server is the HTTP server
type Server struct {
	opts       Options
	controller Controller
	store      EventStore
	router     *mux.Router
	hub        *Hub
}

// NewServer creates a new HTTP server
func NewServer(opts Options, hub *Hub, controller Controller, store EventStore) *Server {
	s := &Server{
		opts:       opts,
		controller: controller,
		store:      store,
		router:     mux.NewRouter(),
		hub:        hub,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc(protocol.SocketPath, s.handleWebSocket)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/setpoint", s.handleSetSetpoint).Methods("POST")
	api.HandleFunc("/light", s.handleSetLight).Methods("POST")
	api.HandleFunc("/logs", s.handleGetLogs).Methods("GET")
	api.HandleFunc("/version", s.handleVersion).Methods("GET")

	if s.opts.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir)))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("Web server listening on port %d", s.opts.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *Hub {
	return s.hub
}
