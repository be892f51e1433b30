package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"fcgsales/core"
	"fcgsales/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	// AuthToken guards operator methods such as fcg_advanceEpoch. Empty
	// disables them.
	AuthToken          string
	RequestSkew        time.Duration
	RateLimitPerMinute float64
	RateLimitBurst     int
	MetricsEnabled     bool
	Logger             *slog.Logger
	// TracerProvider receives the HTTP server spans; nil uses the global
	// provider.
	TracerProvider trace.TracerProvider
}

type Server struct {
	node    *core.Node
	cfg     ServerConfig
	skew    time.Duration
	replays *replayCache
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(node *core.Node, cfg ServerConfig) *Server {
	skew := cfg.RequestSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:     node,
		cfg:      cfg,
		skew:     skew,
		replays:  newReplayCache(2 * skew),
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP routes served by the node.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Post("/rpc", s.handle)

	opts := []otelhttp.Option{}
	if s.cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.cfg.TracerProvider))
	}
	return otelhttp.NewHandler(r, "fcgsalesd", opts...)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
	Auth    *RequestAuth      `json:"auth,omitempty"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the JSON-RPC error code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module := moduleOf(req.Method)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.String("rpc.module", module),
	)
	if !s.allowSource(clientSource(r)) {
		observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	s.dispatch(rec, r, req)
	observability.ModuleMetrics().Observe(module, req.Method, rec.code, time.Since(start))
}

func (s *Server) dispatch(w *statusRecorder, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "fcg_createAccount":
		s.handleCreateAccount(w, r, req)
	case "fcg_balances":
		s.handleBalances(w, r, req)
	case "fcg_createFungible":
		s.handleCreateFungible(w, r, req)
	case "fcg_createNonFungible":
		s.handleCreateNonFungible(w, r, req)
	case "fcg_genesisResources":
		s.handleGenesisResources(w, r, req)
	case "fcg_instantiateRegistry":
		s.handleInstantiateRegistry(w, r, req)
	case "fcg_getRegistry":
		s.handleGetRegistry(w, r, req)
	case "fcg_issueManagerBadge":
		s.handleIssueManagerBadge(w, r, req)
	case "fcg_issueCustomerBadge":
		s.handleIssueCustomerBadge(w, r, req)
	case "fcg_sendOffer":
		s.handleSendOffer(w, r, req)
	case "fcg_cancelOffer":
		s.handleCancelOffer(w, r, req)
	case "fcg_acceptOffer":
		s.handleAcceptOffer(w, r, req)
	case "fcg_refuseOffer":
		s.handleRefuseOffer(w, r, req)
	case "fcg_getOffer":
		s.handleGetOffer(w, r, req)
	case "fcg_instantiateEscrow":
		s.handleInstantiateEscrow(w, r, req)
	case "fcg_exchange":
		s.handleExchange(w, r, req)
	case "fcg_withdrawResource":
		s.handleWithdrawResource(w, r, req)
	case "fcg_cancelEscrow":
		s.handleCancelEscrow(w, r, req)
	case "fcg_getEscrow":
		s.handleGetEscrow(w, r, req)
	case "fcg_epoch":
		s.handleEpoch(w, r, req)
	case "fcg_advanceEpoch":
		if authErr := s.requireAuth(r); authErr != nil {
			w.writeError(http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAdvanceEpoch(w, r, req)
	case "fcg_getReceipt":
		s.handleGetReceipt(w, r, req)
	case "fcg_getEvents":
		s.handleGetEvents(w, r, req)
	default:
		w.writeError(http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (w *statusRecorder) writeError(status int, id interface{}, code int, message string, data interface{}) {
	w.code = code
	writeError(w.ResponseWriter, status, id, code, message, data)
}

func moduleOf(method string) string {
	name := strings.ToLower(strings.TrimPrefix(method, "fcg_"))
	switch {
	case strings.Contains(name, "offer"), strings.Contains(name, "registry"), strings.Contains(name, "badge"):
		return "offers"
	case strings.Contains(name, "escrow"), name == "exchange", name == "withdrawresource":
		return "escrow"
	default:
		return "node"
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if s.cfg.RateLimitPerMinute <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerMinute/60.0), burst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.AllowN(s.now(), 1)
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
