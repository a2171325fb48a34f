package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/api/v1/health", s.health)

	s.router.POST("/api/v1/sync", s.syncAll)
	s.router.POST("/api/v1/sync/:store", s.syncOne)
	s.router.POST("/api/v1/tokens/refresh", s.refreshTokens)

	s.router.GET("/api/v1/runs", s.listRuns)
	s.router.GET("/api/v1/stores/:store/snapshot", s.latestSnapshot)
	s.router.GET("/api/v1/stores/:store/videos", s.listVideos)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
