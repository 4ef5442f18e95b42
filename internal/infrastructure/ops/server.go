// Package ops serves the client's local status surface: liveness, session
// connectivity and prometheus metrics.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-hivechat/internal/infrastructure/logging"
)

// StatusFunc reports the current session view rendered at /session.
type StatusFunc func() map[string]any

// Server is the local HTTP status endpoint.
type Server struct {
	srv *http.Server
}

// NewServer builds the gin engine and binds it to addr. status may be nil.
func NewServer(addr string, status StatusFunc, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/session", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, status())
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return &Server{srv: &http.Server{Addr: addr, Handler: r}}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.Error("ops server", "err", err)
		}
	}()
}

// Shutdown drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.srv.Shutdown(sctx)
}
