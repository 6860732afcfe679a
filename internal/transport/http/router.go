package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"proctor-session-service/internal/app"
	"proctor-session-service/internal/metrics"
)

// NewRouter wires the HTTP surface: health, metrics, attempt state and the
// websocket endpoint.
func NewRouter(service *app.ProctorService, ws *WSHandler, m *metrics.Metrics, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.GET("/ws", gin.WrapF(ws.ServeWS))

	api := r.Group("/api")
	api.GET("/attempts/:assessmentId/state", attemptState(service))
	return r
}

// attemptState returns the live snapshot of an attempt without attaching to it.
func attemptState(service *app.ProctorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, errorPayload{Message: "missing userId"})
			return
		}
		attempt, ok := service.Get(userID, c.Param("assessmentId"))
		if !ok {
			c.JSON(http.StatusNotFound, errorPayload{Message: "attempt not found"})
			return
		}
		c.JSON(http.StatusOK, attempt.Snapshot())
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
