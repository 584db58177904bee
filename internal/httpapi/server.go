// Package httpapi serves the token endpoint and the operational routes
// (health, readiness, metrics) for the receptionist service.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pawsandsuds/frontdesk/internal/config"
	"github.com/pawsandsuds/frontdesk/internal/observability"
	"github.com/pawsandsuds/frontdesk/internal/token"
)

type Server struct {
	cfg     config.Config
	tokens  *token.Builder
	metrics *observability.Metrics

	// workerReady reports agent worker connectivity for /readyz. Optional.
	workerReady func() bool
}

func New(cfg config.Config, metrics *observability.Metrics, workerReady func() bool) *Server {
	s := &Server{
		cfg:         cfg,
		metrics:     metrics,
		workerReady: workerReady,
	}
	if cfg.HasLiveKitCredentials() {
		s.tokens = token.NewBuilder(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/token", s.handleToken)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	return r
}

// corsMiddleware stamps permissive CORS headers on every response and
// short-circuits preflight requests on any path.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenResponse struct {
	Token     string `json:"token"`
	ServerURL string `json:"serverUrl"`
	Room      string `json:"room"`
	User      string `json:"user"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	user := strings.TrimSpace(r.URL.Query().Get("user"))

	var missing []string
	if room == "" {
		missing = append(missing, "room")
	}
	if user == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		s.countToken("bad_request")
		respondError(w, http.StatusBadRequest, "missing_parameter",
			"missing required query parameters: "+strings.Join(missing, ", "))
		return
	}

	if unset := s.cfg.MissingLiveKitCredentials(); len(unset) > 0 || s.tokens == nil {
		s.countToken("misconfigured")
		respondError(w, http.StatusInternalServerError, "server_misconfigured",
			"LiveKit credentials not configured: "+strings.Join(unset, ", "))
		return
	}

	signed, err := s.tokens.Join(room, user)
	if err != nil {
		log.Printf("token: signing failed for room %q user %q: %v", room, user, err)
		s.countToken("error")
		respondError(w, http.StatusInternalServerError, "token_error",
			"could not sign access token: "+err.Error())
		return
	}

	s.countToken("ok")
	respondJSON(w, http.StatusOK, tokenResponse{
		Token:     signed,
		ServerURL: s.cfg.LiveKitURL,
		Room:      room,
		User:      user,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	agentConnected := s.workerReady != nil && s.workerReady()
	status := http.StatusOK
	state := "ready"
	if !agentConnected {
		status = http.StatusServiceUnavailable
		state = "agent_disconnected"
	}
	respondJSON(w, status, map[string]any{
		"status":          state,
		"agent_connected": agentConnected,
	})
}

func (s *Server) countToken(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenRequests.WithLabelValues(outcome).Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
