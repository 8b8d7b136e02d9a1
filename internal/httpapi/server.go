package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/you/sanctum-chat/internal/core"
)

// Cache is the session store surface the API serves. *cache.Store
// satisfies it.
type Cache interface {
	Load(sessionID string) []core.Message
	Save(sessionID string, msgs []core.Message)
	Add(sessionID string, msg core.Message)
	Clear(sessionID string)
	SetParticipantState(sessionID, participantID string, patch core.ParticipantStatePatch)
	GetParticipantState(sessionID, participantID string) core.ParticipantState
}

type streamClient struct {
	session string
	filters Filters
	ch      chan core.Message
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	cache      Cache
	logger     *slog.Logger
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy
	opts       Options

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type Options struct {
	Addr        string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
	Metrics     bool
	AccessLog   bool
	Pprof       bool
	Build       BuildInfo
	Logger      *slog.Logger
}

func New(cache Cache, opts Options) *Server {
	srv := &Server{
		cache:   cache,
		logger:  opts.Logger,
		limiter: newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		cors:    newCORSPolicy(opts.CORSOrigins),
		opts:    opts,
		clients: make(map[*streamClient]struct{}),
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	if opts.Metrics {
		srv.metrics = newMetrics()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", srv.wrap("healthz", srv.handleHealthz))
	mux.Handle("GET /info", srv.wrap("info", srv.handleInfo))
	mux.Handle("GET /sessions/{session}/messages", srv.wrap("messages_list", srv.handleListMessages))
	mux.Handle("POST /sessions/{session}/messages", srv.wrap("messages_add", srv.handleAddMessage))
	mux.Handle("DELETE /sessions/{session}/messages", srv.wrap("messages_clear", srv.handleClearMessages))
	mux.Handle("POST /sessions/{session}/enrich", srv.wrap("enrich", srv.handleEnrich))
	mux.Handle("GET /sessions/{session}/participants/{participant}/state", srv.wrap("participant_get", srv.handleGetParticipantState))
	mux.Handle("PUT /sessions/{session}/participants/{participant}/state", srv.wrap("participant_put", srv.handleSetParticipantState))
	mux.Handle("GET /stream", srv.wrap("stream", srv.handleStream))
	mux.Handle("GET /ws", srv.wrap("ws", srv.handleWS))
	mux.Handle("OPTIONS /", srv.wrap("preflight", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	if srv.metrics != nil {
		mux.Handle("GET /metrics", srv.metrics.Handler())
	}
	if opts.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv.mux = mux
	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Mux exposes the router so callers can attach extra surfaces (admin).
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// wrap applies rate limiting, CORS, gzip, the access-log recorder, and
// request metrics around a handler.
func (s *Server) wrap(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			s.metrics.ObserveRequest(route, r.Method, http.StatusTooManyRequests, time.Since(start))
			return
		}

		if handled, status := s.cors.handlePreflight(w, r); handled {
			s.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			s.metrics.ObserveRequest(route, r.Method, http.StatusForbidden, time.Since(start))
			return
		}

		rec := newResponseRecorder(w)
		if gz, ok := maybeGzip(rec, r); ok {
			defer gz.Close()
		}
		h(rec, r)

		dur := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, rec.Status(), dur)
		if s.opts.AccessLog {
			s.logger.Info("http access",
				"route", route,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.Bytes(),
				"dur_ms", dur.Milliseconds(),
				"ip", remoteIP(r),
			)
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		http.Error(w, "session query parameter required", http.StatusBadRequest)
		return
	}
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &streamClient{
		session: session,
		filters: filters.CloneForStream(),
		ch:      make(chan core.Message, 256),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	s.metrics.IncSSEClients(1)

	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		s.metrics.IncSSEClients(-1)
	}()

	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Broadcast fans a newly cached message out to every stream client
// subscribed to its session. Slow clients drop rather than block.
func (s *Server) Broadcast(session string, msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Client channels are closed during shutdown; sending would panic.
	if s.closed {
		return
	}

	for client := range s.clients {
		if client.session != session {
			continue
		}
		if !client.filters.Matches(msg) {
			continue
		}
		select {
		case client.ch <- msg:
		default:
			s.metrics.IncBroadcastDrops("sse")
		}
	}
}

func (s *Server) Start() error {
	log.Printf("http api listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for client := range s.clients {
		close(client.ch)
		delete(s.clients, client)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
