package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/repository"
	"github.com/Houeta/listing-monitor/internal/services/monitor"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 20
	defaultChangesLimit = 100
	maxLimit            = 1000
)

// StartScanRequest is the body of POST /api/v1/scans. Both fields are optional.
type StartScanRequest struct {
	Target     string `json:"target"`
	PageBudget int    `json:"page_budget"`
}

// BaselineSummary is the response of GET /api/v1/baseline.
type BaselineSummary struct {
	Version  int64                 `json:"version"`
	AsOf     time.Time             `json:"as_of"`
	Listings int                   `json:"listings"`
	ByStatus map[models.Status]int `json:"by_status"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// startScan handles POST /api/v1/scans.
func (s *Server) startScan(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	scanID, err := s.monitor.StartScan(c.Request.Context(), req.Target, req.PageBudget)
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "A scan is already running")
		return
	case errors.Is(err, monitor.ErrInvalidPageBudget):
		respondBadRequest(c, err.Error())
		return
	case err != nil:
		s.log.ErrorContext(c.Request.Context(), "failed to start scan", "error", err)
		respondInternalError(c, "Failed to start scan")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"scan_id": scanID})
}

// cancelScan handles DELETE /api/v1/scans/current.
func (s *Server) cancelScan(c *gin.Context) {
	if !s.monitor.Cancel() {
		respondNotFound(c, "Running scan")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// scanStatus handles GET /api/v1/scans/status.
func (s *Server) scanStatus(c *gin.Context) {
	run, err := s.monitor.Status(c.Request.Context())
	switch {
	case errors.Is(err, repository.ErrScanNotFound):
		respondNotFound(c, "Scan")
		return
	case err != nil:
		s.log.ErrorContext(c.Request.Context(), "failed to get scan status", "error", err)
		respondInternalError(c, "Failed to retrieve scan status")
		return
	}

	c.JSON(http.StatusOK, run)
}

// listScans handles GET /api/v1/scans.
func (s *Server) listScans(c *gin.Context) {
	limit, ok := parseLimit(c, defaultHistoryLimit)
	if !ok {
		return
	}

	runs, err := s.monitor.History(c.Request.Context(), limit)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "failed to list scans", "error", err)
		respondInternalError(c, "Failed to retrieve scans")
		return
	}
	if runs == nil {
		runs = []models.ScanRun{}
	}

	c.JSON(http.StatusOK, gin.H{"scans": runs, "total": len(runs)})
}

// listChanges handles GET /api/v1/changes. Responses are cached briefly per query.
func (s *Server) listChanges(c *gin.Context) {
	limit, ok := parseLimit(c, defaultChangesLimit)
	if !ok {
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed.UTC()
	}

	key := since.Format(time.RFC3339Nano) + "|" + strconv.Itoa(limit)
	changes, hit := s.changes.Get(key)
	if !hit {
		var err error
		changes, err = s.monitor.ChangeLog(c.Request.Context(), since, limit)
		if err != nil {
			s.log.ErrorContext(c.Request.Context(), "failed to get change log", "error", err)
			respondInternalError(c, "Failed to retrieve changes")
			return
		}
		if changes == nil {
			changes = []models.ChangeRecord{}
		}
		s.changes.Set(key, changes)
	}

	c.JSON(http.StatusOK, gin.H{"changes": changes, "total": len(changes)})
}

// baseline handles GET /api/v1/baseline.
func (s *Server) baseline(c *gin.Context) {
	snapshot, err := s.monitor.Baseline(c.Request.Context())
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "failed to get baseline", "error", err)
		respondInternalError(c, "Failed to retrieve baseline")
		return
	}

	summary := BaselineSummary{
		Version:  snapshot.Version,
		AsOf:     snapshot.AsOf,
		Listings: len(snapshot.Listings),
		ByStatus: make(map[models.Status]int),
	}
	for _, l := range snapshot.Listings {
		summary.ByStatus[l.Status]++
	}

	c.JSON(http.StatusOK, summary)
}

// parseLimit reads the limit query parameter. It writes a 400 and reports false when invalid.
func parseLimit(c *gin.Context, defaultLimit int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		respondBadRequest(c, "limit must be between 1 and "+strconv.Itoa(maxLimit))
		return 0, false
	}
	return limit, true
}

// respondError sends a JSON error response.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondNotFound sends a 404 with resource not found message.
func respondNotFound(c *gin.Context, resource string) {
	respondError(c, http.StatusNotFound, resource+" not found")
}

// respondBadRequest sends a 400 with message.
func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

// respondInternalError sends a 500 with message.
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}
