// Package api exposes an Engine over HTTP. It is the one place in this
// repository that serializes access to a single-threaded Engine: every
// route handler holds one mutex for the duration of its call, since the
// engine itself performs no internal locking.
package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kanon-lab/stratadb/internal/engine"
)

// Server wraps an *engine.Engine with a gin router and JWT auth.
type Server struct {
	mu     sync.Mutex
	store  *engine.Engine
	port   string
	router *gin.Engine
	auth   *AuthManager
	log    *zap.SugaredLogger
}

// NewServer builds a Server around an already-open Engine, listening on
// port once Start is called.
func NewServer(store *engine.Engine, port string, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	auth := NewAuthManager()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		store:  store,
		port:   port,
		router: router,
		auth:   auth,
		log:    log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.POST("/login", s.login)

		protected := v1.Group("/")
		protected.Use(s.AuthMiddleware())
		{
			protected.GET("/stats", s.getStats)

			kv := protected.Group("/kv")
			{
				kv.PUT("/:key", s.putKey)
				kv.GET("/:key", s.getKey)
				kv.DELETE("/:key", s.deleteKey)
			}
		}
	}
}

// Start blocks serving HTTP on s.port.
func (s *Server) Start() error {
	s.log.Infow("starting stratadb-server", "port", s.port)
	return http.ListenAndServe(":"+s.port, s.router)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "stratadb-server",
	})
}

func (s *Server) getStats(c *gin.Context) {
	s.mu.Lock()
	stats := s.store.Stats()
	s.mu.Unlock()

	s.successResponse(c, http.StatusOK, stats, 0)
}
