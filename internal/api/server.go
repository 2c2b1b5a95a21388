// Package api exposes the tutor over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/progress"
	"github.com/abhisek/microtutor/internal/session"
	"github.com/abhisek/microtutor/internal/store"
)

// Config holds HTTP settings.
type Config struct {
	RateLimit   float64
	RateBurst   int
	CORSOrigins []string
	JWTSecret   string
}

// Deps are the services behind the API.
type Deps struct {
	Store      *store.Store
	Engine     *session.Engine
	Tracker    *progress.Tracker
	Aggregator *metrics.Aggregator
	Logger     *zap.Logger
}

// Server routes API requests to the tutor services.
type Server struct {
	store      *store.Store
	engine     *session.Engine
	tracker    *progress.Tracker
	aggregator *metrics.Aggregator
	logger     *zap.Logger
	router     *gin.Engine
}

// NewServer builds the router. Nil tracker and aggregator default to ones
// over deps.Store.
func NewServer(deps Deps, cfg Config) *Server {
	s := &Server{
		store:      deps.Store,
		engine:     deps.Engine,
		tracker:    deps.Tracker,
		aggregator: deps.Aggregator,
		logger:     deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracker == nil {
		s.tracker = progress.NewTracker(deps.Store, s.logger)
	}
	if s.aggregator == nil {
		s.aggregator = metrics.NewAggregator(deps.Store.Repos, metrics.DefaultConfig())
	}
	s.router = s.routes(cfg)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger))
	r.Use(CORS(cfg.CORSOrigins))

	v1 := r.Group("/api/v1")
	v1.GET("/healthz", s.healthz)

	learner := v1.Group("/learners/:learnerID")
	learner.Use(Auth(cfg.JWTSecret), RateLimit(cfg.RateLimit, cfg.RateBurst))
	{
		learner.PUT("", s.upsertLearner)
		learner.GET("", s.getLearner)

		learner.POST("/subjects", s.createSubject)
		learner.GET("/subjects", s.listSubjects)
		learner.GET("/subjects/:subjectID", s.getSubject)

		learner.POST("/topics/:topicID/messages", s.postMessage)
		learner.GET("/topics/:topicID/messages", s.listMessages)
		learner.GET("/topics/:topicID/progress", s.getProgress)
		learner.GET("/topics/:topicID/report", s.getReport)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", errRouteNotFound)
	})
	return r
}
