package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"libraria/internal/domain"
	"libraria/internal/infra/config"
	"libraria/internal/usecase"
)

// ProviderFactory constructs an LLM provider around a caller's API key.
// Providers are per request; connection pooling and circuit breaking
// live behind the factory.
type ProviderFactory func(apiKey, model string) domain.LLMProvider

// CredentialSource resolves and stores a caller's credential bundle.
type CredentialSource interface {
	Credentials(ctx context.Context, userID string) (domain.CredentialBundle, error)
	Store(ctx context.Context, userID string, bundle domain.CredentialBundle) error
}

// Deps holds everything the gateway's handlers need.
type Deps struct {
	Agent         *usecase.Agent
	Tools         domain.ToolExecutor
	Conversations domain.ConversationStore
	Profiles      domain.ProfileStore
	Credentials   CredentialSource
	Provider      ProviderFactory
	DefaultModel  string
	Logger        *slog.Logger
}

// Server is the HTTP/WebSocket gateway.
type Server struct {
	deps      Deps
	auth      *StaticTokenAuth
	cfg       config.ServerConfig
	metrics   *Metrics
	startTime time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	return &Server{
		deps:      deps,
		auth:      NewStaticTokenAuth(cfg.AuthTokens),
		cfg:       cfg,
		metrics:   &Metrics{},
		startTime: time.Now(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Handler returns the gateway's routing mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("GET /ws/chat", s.requireAuth(s.handleWebSocket))

	mux.HandleFunc("GET /api/conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("POST /api/conversations", s.requireAuth(s.handleCreateConversation))
	mux.HandleFunc("GET /api/conversations/{id}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("GET /api/conversations/{id}/turns", s.requireAuth(s.handleListTurns))
	mux.HandleFunc("DELETE /api/conversations/{id}", s.requireAuth(s.handleDeleteConversation))

	mux.HandleFunc("GET /api/settings/credentials", s.requireAuth(s.handleGetCredentials))
	mux.HandleFunc("PUT /api/settings/credentials", s.requireAuth(s.handlePutCredentials))
	mux.HandleFunc("GET /api/profile", s.requireAuth(s.handleGetProfile))
	mux.HandleFunc("PUT /api/profile", s.requireAuth(s.handlePutProfile))

	mux.HandleFunc("GET /api/status", s.handleStatus)

	return s.logRequests(mux)
}

// logRequests logs method, path and duration for every request. Bodies
// and query strings are never logged; WebSocket tokens ride the query.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.deps.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// Start begins serving. Blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	s.deps.Logger.Info("gateway started", "addr", s.boundAddr)

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway, letting in-flight turns drain
// within the configured grace period.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	grace := s.cfg.ShutdownTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// allowRequest applies the per-user token bucket.
func (s *Server) allowRequest(userID string) bool {
	if s.cfg.RatePerMinute <= 0 {
		return true
	}
	s.limitersMu.Lock()
	lim, ok := s.limiters[userID]
	if !ok {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.cfg.RatePerMinute)), burst)
		s.limiters[userID] = lim
	}
	s.limitersMu.Unlock()
	return lim.Allow()
}

// errorBody is the JSON error envelope all non-2xx responses share.
type errorBody struct {
	Error struct {
		Code    domain.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
