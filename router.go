package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(h *Handlers, eventAuth gin.HandlerFunc) *gin.Engine {
	router := gin.New()

	// Logger middleware will write the logs to gin.DefaultWriter even if you set with GIN_MODE=release.
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, gin.H{
			"version":     Version,
			"buildCommit": BuildCommit,
			"buildTime":   BuildTime,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	events := router.Group("/events")
	if eventAuth != nil {
		events.Use(eventAuth)
	}
	{
		events.POST("/"+triggerMessageCreated, h.eventEndpoint(triggerMessageCreated))
		events.POST("/"+triggerMessageUpdated, h.eventEndpoint(triggerMessageUpdated))
		events.POST("/"+triggerCallCreated, h.eventEndpoint(triggerCallCreated))
	}

	router.POST("/callable/generateRtcToken", h.generateRtcToken)

	return router
}

// eventEndpoint accepts a pushed document change. Any delivery that decodes
// is acknowledged, whatever the handler decided.
func (h *Handlers) eventEndpoint(trigger string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev FirestoreEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			countEvent(trigger, "malformed")
			respondWithError(c, http.StatusBadRequest, "invalid event body")
			return
		}

		err := h.dispatchEvent(c.Request.Context(), trigger, c.GetHeader("ce-id"), ev)
		if errors.Is(err, ErrMalformedEvent) {
			h.logger.Warn().Err(err).Str("trigger", trigger).Msg("rejected event")
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		c.Status(http.StatusNoContent)
	}
}
