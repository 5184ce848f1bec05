// Package web serves the hub over HTTP: a JSON REST API for the companion
// screen and phone clients, a WebSocket event stream and Prometheus metrics.
package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"home-hub/internal/assistant"
	"home-hub/internal/automation"
	"home-hub/internal/home"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes limits every JSON request body.
const maxBodyBytes = 1 << 20

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed CORS and WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithAssistant enables POST /api/chat.
func WithAssistant(c *assistant.Client) ServerOption {
	return func(s *Server) {
		s.assistant = c
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP front end of the hub.
type Server struct {
	hub            *home.Hub
	assistant      *assistant.Client
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	unsubEvents    func()
}

// NewServer creates a new web server over hub.
func NewServer(hub *home.Hub, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		hub:    hub,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.unsubEvents = hub.Events().Subscribe(s.wsHub.Broadcast)

	s.routes()
	return s
}

// Stop detaches from the event bus and closes WebSocket clients.
func (s *Server) Stop() {
	s.unsubEvents()
	s.wsHub.Stop()
}

func (s *Server) routes() {
	// Rooms and devices
	s.mux.HandleFunc("GET /api/appliances", s.handleAPIRooms)
	s.mux.HandleFunc("POST /api/appliances/leave-home", s.handleAPILeaveHome)
	s.mux.HandleFunc("POST /api/appliances/arrive-home", s.handleAPIArriveHome)
	s.mux.HandleFunc("POST /api/appliances/goout", s.handleAPILeaveHome)
	s.mux.HandleFunc("POST /api/appliances/comehome", s.handleAPIArriveHome)
	s.mux.HandleFunc("POST /api/appliances/{room}/{device}", s.handleAPIDeviceAction)
	s.mux.HandleFunc("POST /api/appliances/{device}", s.handleAPILegacyDeviceAction)
	s.mux.HandleFunc("POST /api/scenes/{name}", s.handleAPIRunScene)
	s.mux.HandleFunc("GET /api/cycles", s.handleAPICycles)

	// Fridge
	s.mux.HandleFunc("GET /api/fridge", s.handleAPIFridge)
	s.mux.HandleFunc("POST /api/fridge/add", s.handleAPIFridgeAdd)
	s.mux.HandleFunc("POST /api/fridge/remove", s.handleAPIFridgeRemove)

	// Notifications and the TV message slot
	s.mux.HandleFunc("POST /api/notify", s.handleAPINotify)
	s.mux.HandleFunc("GET /api/notifications", s.handleAPINotifications)
	s.mux.HandleFunc("POST /api/tv/message", s.handleAPISetDisplay)
	s.mux.HandleFunc("GET /api/tv/message", s.handleAPIGetDisplay)

	s.mux.HandleFunc("POST /api/chat", s.handleAPIChat)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP applies the origin policy and API key check, then routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(w, r) {
		return
	}
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// checkOrigin enforces allowed_origins for cross-origin requests: preflights
// are answered here, and mutating requests from other origins are refused.
// Same-origin requests and non-browser clients carry no Origin and pass.
// It reports false once it has written a response.
func (s *Server) checkOrigin(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.allowedOrigins) == 0 || origin == "" {
		return true
	}
	allowed := s.isOriginAllowed(origin)
	if allowed {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}

	switch {
	case r.Method == http.MethodOptions && allowed:
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		h.Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
		return false
	case !allowed && r.Method != http.MethodGet:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// authorized checks X-API-Key on /api/ routes. /ws and /metrics stay open:
// browsers cannot set headers on a WebSocket upgrade and scrapers read
// /metrics unauthenticated.
func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	key := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

// isOriginAllowed matches origin against allowed_origins; "*" allows any.
func (s *Server) isOriginAllowed(origin string) bool {
	return slices.ContainsFunc(s.allowedOrigins, func(allowed string) bool {
		return allowed == "*" || allowed == origin
	})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
