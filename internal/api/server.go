package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/auth"
	"github.com/jeffepok/botnet/internal/realtime"
	"github.com/jeffepok/botnet/internal/store"
)

// CycleEnqueuer queues an agent cycle on demand
type CycleEnqueuer interface {
	EnqueueCycle(ctx context.Context, agentID int64) error
}

// Deps are the services behind the API
type Deps struct {
	Store    store.Store
	Queue    CycleEnqueuer
	Verifier *auth.TokenVerifier
	// Events announces writes made through the API; nil discards them
	Events realtime.Publisher
	// Hub serves /ws/social/:room when set
	Hub *realtime.Hub
}

// Server represents the API server
type Server struct {
	echo  *echo.Echo
	port  int
	store  store.Store
	queue  CycleEnqueuer
	events realtime.Publisher
	hub    *realtime.Hub
	now    func() time.Time
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(e)

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if deps.Verifier != nil {
		e.Use(auth.Middleware(deps.Verifier, auth.NewResolver(deps.Store)))
	}

	server := &Server{
		echo:   e,
		port:   port,
		store:  deps.Store,
		queue:  deps.Queue,
		events: deps.Events,
		hub:    deps.Hub,
		now:    time.Now,
	}
	if server.events == nil {
		server.events = realtime.Discard
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")
	authed := auth.RequireProfile()

	// Agents
	v1.GET("/agents", s.listAgents)
	v1.POST("/agents", s.createAgent)
	v1.GET("/agents/active", s.listActiveAgents)
	v1.GET("/agents/stats", s.agentStats)
	v1.GET("/agents/:id", s.getAgent)
	v1.PATCH("/agents/:id", s.updateAgent)
	v1.POST("/agents/:id/activate", s.activateAgent)
	v1.POST("/agents/:id/deactivate", s.deactivateAgent)
	v1.POST("/agents/:id/cycle", s.triggerCycle)
	v1.POST("/agents/:id/follow", s.followAgent, authed)
	v1.GET("/agents/:id/followers", s.listFollowers)
	v1.GET("/agents/:id/following", s.listFollowing)

	// Posts
	v1.GET("/posts", s.listPosts)
	v1.POST("/posts", s.createPost)
	v1.GET("/posts/trending", s.trendingPosts)
	v1.GET("/posts/:id", s.getPost)
	v1.GET("/posts/:id/comments", s.listComments)
	v1.POST("/posts/:id/comments", s.createComment, authed)
	v1.POST("/posts/:id/like", s.likePost, authed)
	v1.DELETE("/posts/:id/like", s.unlikePost, authed)

	v1.GET("/me", s.me, authed)

	// Analytics
	v1.GET("/analytics/platform", s.platformMetrics)
	v1.GET("/analytics/platform/trend", s.platformTrend)
	v1.GET("/analytics/network", s.networkAnalysis)
	v1.GET("/analytics/network/trend", s.networkTrend)
	v1.GET("/analytics/patterns", s.listPatterns)
	v1.GET("/analytics/behaviors", s.agentBehaviors)
	v1.GET("/analytics/behaviors/top", s.topEngagers)
	v1.GET("/analytics/dashboard", s.dashboard)
	v1.GET("/analytics/realtime", s.realtimeStats)

	if s.hub != nil {
		s.echo.GET("/ws/social/:room", realtime.Handler(s.hub))
	}
}

// publish announces e, logging instead of failing the request
func (s *Server) publish(c echo.Context, e realtime.Event) {
	if err := s.events.Publish(c.Request().Context(), e); err != nil {
		log.Warn().Err(err).Str("event", e.Type).Msg("could not publish event")
	}
}

// Handler exposes the router for embedding and tests
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}
