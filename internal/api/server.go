package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gopkg.in/validator.v2"

	"github.com/leonardotrapani/livescribe/internal/dispatch"
	"github.com/leonardotrapani/livescribe/internal/logging"
	"github.com/leonardotrapani/livescribe/internal/store"
)

// Health is the live pipeline state reported by GET /health.
type Health struct {
	Connected bool   `json:"connected"`
	Armed     bool   `json:"armed"`
	Paused    bool   `json:"paused"`
	Session   string `json:"session,omitempty"`
	dispatch.Stats
}

// HealthFunc samples the current pipeline state.
type HealthFunc func() Health

type Config struct {
	Address      string        `validate:"nonzero"`
	ReadTimeout  time.Duration `validate:"min=1"`
	WriteTimeout time.Duration `validate:"min=1"`
}

func DefaultConfig(address string) Config {
	return Config{
		Address:      address,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type Deps struct {
	Store  store.Store `validate:"nonnil"`
	Health HealthFunc  `validate:"nonnil"`
}

// Server is the observer-facing HTTP surface. Apart from session deletion it
// only reads.
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
	log    zerolog.Logger
}

func New(cfg Config, deps Deps) (*Server, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid api config: %w", err)
	}
	if err := validator.Validate(deps); err != nil {
		return nil, fmt.Errorf("invalid api deps: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: gin.New(),
		log:    logging.Component("api"),
	}
	s.setup()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("api shutdown")
		}
	}()

	s.log.Info().Str("address", ln.Addr().String()).Msg("api listening")
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("api server: %w", err)
}

func (s *Server) setup() {
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.router.GET("/health", s.health)
	s.router.GET("/sessions", s.listSessions)
	s.router.GET("/sessions/:id", s.getSession)
	s.router.GET("/sessions/:id/segments", s.sessionSegments)
	s.router.DELETE("/sessions/:id", s.deleteSession)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := s.log.Debug()
		switch {
		case status >= 500:
			ev = s.log.Error()
		case status >= 400:
			ev = s.log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request completed")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(s.deps.Health()))
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.deps.Store.ListSessions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	c.JSON(http.StatusOK, successResponse(sessions))
}

func (s *Server) getSession(c *gin.Context) {
	session, err := s.deps.Store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(session))
}

func (s *Server) sessionSegments(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.deps.Store.GetSession(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	segments, err := s.deps.Store.SessionSegments(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if segments == nil {
		segments = []store.Segment{}
	}
	c.JSON(http.StatusOK, successResponse(segments))
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := store.PurgeSession(c.Request.Context(), s.deps.Store, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"deleted": c.Param("id")}))
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("store error")
	c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
}
