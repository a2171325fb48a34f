package http_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shoplens/tiksync/internal/jobs"
	"github.com/shoplens/tiksync/internal/models"
)

// SyncRequest selects which metric type a sync trigger covers.
type SyncRequest struct {
	Type string `form:"type" binding:"omitempty,oneof=user video all"`
}

// RunsQuery filters the run-log listing.
type RunsQuery struct {
	Store  string `form:"store"`
	Job    string `form:"job" binding:"omitempty,oneof=refresh-tokens sync-user-stats sync-video-stats full-sync"`
	Status string `form:"status" binding:"omitempty,oneof=SUCCESS FAILED SKIPPED RUNNING"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// health is a handler for the /health endpoint.
func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// syncOne triggers a synchronous single-store sync and returns its
// classified result. A contended lock surfaces as 409, a failure as 502.
func (s *HTTPServer) syncOne(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.logger.Debug("Invalid sync request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = jobs.SyncTypeAll
	}

	result, err := s.runner.SyncOne(c.Request.Context(), c.Param("store"), req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Skipped {
		status = http.StatusConflict
	} else if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// syncAll triggers a bulk sync over every connected store. The response is
// always the aggregate plus the per-store detail list, never an
// all-or-nothing error.
func (s *HTTPServer) syncAll(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.logger.Debug("Invalid sync request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = jobs.SyncTypeAll
	}

	result, err := s.runner.SyncAll(c.Request.Context(), req.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// refreshTokens triggers a refresh pass over expiring credentials.
func (s *HTTPServer) refreshTokens(c *gin.Context) {
	result, err := s.runner.RefreshExpiringTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// listRuns serves the read-only run log for the admin UI.
func (s *HTTPServer) listRuns(c *gin.Context) {
	var q RunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request: " + err.Error()})
		return
	}

	runs, err := s.repo.ListSyncRuns(c.Request.Context(), models.RunFilter{
		StoreCode: q.Store,
		JobName:   q.Job,
		Status:    q.Status,
		Limit:     q.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// latestSnapshot returns the newest account snapshot for a store.
func (s *HTTPServer) latestSnapshot(c *gin.Context) {
	snap, err := s.repo.LatestAccountSnapshot(c.Request.Context(), c.Param("store"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no snapshot for store"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// listVideos returns the store's video snapshots for a day, defaulting to
// today.
func (s *HTTPServer) listVideos(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	snaps, err := s.repo.ListVideoSnapshots(c.Request.Context(), c.Param("store"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": snaps, "date": date})
}
