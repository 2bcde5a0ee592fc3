// Package api serves run sessions, snapshots and Monte-Carlo batches over
// HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/ratelimit"
	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/store"
)

// ErrTooManySessions is returned when the live session cap is reached.
var ErrTooManySessions = errors.New("too many live sessions")

const (
	// maxBatchRuns caps the runs a single HTTP request may ask for.
	maxBatchRuns = 10_000

	// maxNodes caps the network size of a single HTTP request.
	maxNodes = 20_000
)

// Options configures a Server.
type Options struct {
	// Defaults fill any parameter a request leaves out.
	Defaults simulation.Params
	Batch    montecarlo.Options

	// Store keeps batch reports. Nil means an in-memory store.
	Store store.ResultStore

	// RequestsPerSecond limits POST requests per client IP. Zero disables
	// limiting.
	RequestsPerSecond float64
	Burst             int

	MaxSessions int

	Logger *slog.Logger
}

// Server holds the live run sessions and the batch history.
type Server struct {
	defaults simulation.Params
	batch    montecarlo.Options
	store    store.ResultStore
	harness  *montecarlo.Harness
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*session
	maxSessions int

	router *gin.Engine

	srvMu      sync.Mutex
	httpServer *http.Server
	addr       string
}

// session is one step-by-step run. Its mutex serializes steps.
type session struct {
	mu      sync.Mutex
	engine  *simulation.Engine
	created time.Time
}

// New creates a server and wires its routes.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = store.NewInMemoryResultStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 64
	}

	s := &Server{
		defaults:    opts.Defaults,
		batch:       opts.Batch,
		store:       opts.Store,
		harness:     montecarlo.New(),
		logger:      opts.Logger,
		sessions:    make(map[string]*session),
		maxSessions: opts.MaxSessions,
	}
	s.harness.SetLogger(opts.Logger, nil)
	if opts.RequestsPerSecond > 0 {
		s.limiter = ratelimit.NewLimiter(opts.RequestsPerSecond, max(opts.Burst, 1))
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	SetupRoutes(router, s)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on.
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	return s.addr
}

// ListenAndServe serves on addr and blocks until the context is cancelled.
// Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.srvMu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.srvMu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", "addr", s.Addr())
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) addSession(id string, e *simulation.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.maxSessions {
		return fmt.Errorf("%w (max %d)", ErrTooManySessions, s.maxSessions)
	}
	s.sessions[id] = &session{engine: e, created: time.Now()}
	return nil
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// rateLimit rejects clients that exceed their token bucket.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": ratelimit.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}
