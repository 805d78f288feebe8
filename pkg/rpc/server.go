package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/fortiblox/x1-staker/pkg/bank"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	// EnableRateLimit enables per-client rate limiting.
	EnableRateLimit bool

	// RateLimitRPS is the requests per second limit per IP.
	RateLimitRPS float64

	// RateLimitBurst is the burst capacity for rate limiting.
	RateLimitBurst int

	// TrustProxy takes the client address from X-Forwarded-For or
	// X-Real-IP. Only set it when a proxy you control rewrites those headers.
	TrustProxy bool

	// Logger for request logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8899",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxRequestSize:  1 << 20,
		AllowedOrigins:  []string{"*"},
		EnableRateLimit: false,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// Server is a JSON-RPC 2.0 server over a bank.
type Server struct {
	config   *ServerConfig
	handlers *Handlers
	log      *slog.Logger
	router   chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new RPC server. A nil config uses DefaultServerConfig.
func NewServer(config *ServerConfig, b *bank.Bank) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc")

	s := &Server{
		config:   config,
		handlers: NewHandlers(b, logger),
		log:      logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RecoveryMiddleware(s.log))
	r.Use(LoggingMiddleware(s.log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400,
	}).Handler)
	if s.config.EnableRateLimit {
		r.Use(RateLimitMiddleware(s.config.RateLimitRPS, s.config.RateLimitBurst))
	}

	r.Post("/", s.handleRequest)
	r.Get("/health", s.handleHealth)
	return r
}

// Handler returns the HTTP handler serving the RPC routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Handlers returns the method table.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("rpc server listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully stops the RPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("rpc server stopping")
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "ok")
}

// handleRequest processes incoming JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "failed to read request body")})
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(r.Context(), w, body)
		return
	}
	s.writeResponse(w, s.processRequest(r.Context(), body))
}

// handleBatchRequest processes a batch of JSON-RPC requests in order.
func (s *Server) handleBatchRequest(ctx context.Context, w http.ResponseWriter, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "invalid JSON")})
		return
	}
	if len(requests) == 0 {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(InvalidRequest, "empty batch")})
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(ctx, reqBody)
		// Notifications get no response.
		if response.ID != nil {
			responses = append(responses, response)
		}
	}
	s.writeResponse(w, responses)
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "invalid JSON")}
	}
	if request.JSONRPC != JSONRPCVersion {
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(InvalidRequest, "invalid jsonrpc version"), ID: request.ID}
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)),
			ID:      request.ID,
		}
	}

	result, rpcErr := handler(ctx, request.Params)
	if rpcErr != nil {
		s.log.Debug("rpc error", "method", request.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: rpcErr, ID: request.ID}
	}
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: resultOrNull(result), ID: request.ID}
}

// resultOrNull keeps an explicit null result from being dropped by
// omitempty.
func resultOrNull(v any) any {
	if v == nil {
		return json.RawMessage("null")
	}
	return v
}

func (s *Server) writeResponse(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Warn("failed to write response", "error", err)
	}
}
