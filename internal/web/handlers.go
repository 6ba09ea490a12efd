// internal/web/handlers.go - Query and control endpoints
package web

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"camwatch/internal/database"
	"camwatch/internal/history"
	"camwatch/internal/logfetch"
	"camwatch/internal/monitoring"
)

const defaultHistoryLimit = 100

type HostResponse struct {
	database.Host
	LastRecord *database.CheckRecord `json:"last_record,omitempty"`
	Run        *database.HostCheck   `json:"run,omitempty"`
}

// SettingsRequest is a partial update; omitted fields keep their value.
type SettingsRequest struct {
	CheckInterval     *database.Duration `json:"check_interval"`
	ConfirmationDelay *database.Duration `json:"confirmation_delay"`
	Timezone          *string            `json:"timezone"`
	MentionName       *string            `json:"mention_name"`
	MentionUserIDs    []string           `json:"mention_user_ids"`
}

// GET /api/hosts
func (s *Server) getHosts(c *gin.Context) {
	ctx := c.Request.Context()

	filters := database.HostFilters{}
	if enabledStr := c.Query("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filters.Enabled = &enabled
	}

	hosts, err := s.store.GetHosts(ctx, filters)
	if err != nil {
		logrus.WithError(err).Error("Failed to get hosts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get hosts"})
		return
	}

	latest, err := s.store.LatestRecords(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get latest records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get latest records"})
		return
	}

	response := make([]HostResponse, 0, len(hosts))
	for _, host := range hosts {
		resp := HostResponse{Host: host}
		if rec, ok := latest[host.ID]; ok {
			rec := rec
			resp.LastRecord = &rec
		}
		if run, err := s.store.LatestRun(ctx, host.ID); err == nil {
			resp.Run = run
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  response,
		"count": len(response),
	})
}

// POST /api/hosts/:id/trigger
func (s *Server) triggerHost(c *gin.Context) {
	id := c.Param("id")

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		run, err := s.orchestrator.TriggerAsync(c.Request.Context(), id)
		if err != nil {
			s.writeError(c, err, "Failed to queue check")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"data": run})
		return
	}

	record, err := s.orchestrator.Trigger(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "Check failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

// GET /api/hosts/:id/run
func (s *Server) getRunState(c *gin.Context) {
	run, err := s.orchestrator.CurrentRunState(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No check has run for this host yet"})
			return
		}
		s.writeError(c, err, "Failed to get run state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

// GET /api/history
func (s *Server) getHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}

	filters := database.RecordFilters{
		HostID: c.Query("host_id"),
		Status: c.Query("status"),
		Limit:  limit,
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		filters.Since = &since
	}

	records, err := s.store.ListRecords(c.Request.Context(), filters)
	if err != nil {
		logrus.WithError(err).Error("Failed to list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"count": len(records),
	})
}

// GET /api/history/summary
func (s *Server) getHistorySummary(c *gin.Context) {
	ctx := c.Request.Context()
	recent, ok := queryInt(c, "recent", history.DefaultRecentLimit)
	if !ok {
		return
	}

	records, err := s.store.ListRecords(ctx, database.RecordFilters{})
	if err != nil {
		logrus.WithError(err).Error("Failed to list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list history"})
		return
	}
	hosts, err := s.store.GetHosts(ctx, database.HostFilters{})
	if err != nil {
		logrus.WithError(err).Error("Failed to get hosts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get hosts"})
		return
	}

	settings := s.orchestrator.Settings(ctx)
	summary := history.Summarize(records, hosts, recent, settings.Location(), time.Now())
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GET /api/history/host/:id
func (s *Server) getHostHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	records, err := s.store.ListRecords(ctx, database.RecordFilters{HostID: id})
	if err != nil {
		logrus.WithError(err).Error("Failed to list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list history"})
		return
	}
	if len(records) == 0 {
		if _, err := s.store.GetHost(ctx, id); errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
			return
		}
	}

	settings := s.orchestrator.Settings(ctx)
	c.JSON(http.StatusOK, gin.H{"data": history.Aggregate(id, records, settings.Location())})
}

// GET /api/status
func (s *Server) getStatus(c *gin.Context) {
	latest, err := s.store.LatestRecords(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get latest records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}

	records := make([]database.CheckRecord, 0, len(latest))
	for _, rec := range latest {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].HostName < records[j].HostName
	})

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"count": len(records),
	})
}

// GET /api/logs/:id
func (s *Server) getLogs(c *gin.Context) {
	host, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get host"})
		return
	}
	rows, ok := queryInt(c, "rows", logfetch.DefaultMaxRows)
	if !ok {
		return
	}

	logs, err := logfetch.ReadSnapshots(s.logDir, host.Name, rows)
	if err != nil {
		logrus.WithError(err).WithField("host", host.Name).Error("Failed to read log snapshots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GET /api/settings
func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.orchestrator.Settings(c.Request.Context())})
}

// PUT /api/settings
func (s *Server) updateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	settings := s.orchestrator.Settings(ctx)
	if req.CheckInterval != nil {
		settings.CheckInterval = *req.CheckInterval
	}
	if req.ConfirmationDelay != nil {
		settings.ConfirmationDelay = *req.ConfirmationDelay
	}
	if req.Timezone != nil {
		settings.Timezone = *req.Timezone
	}
	if req.MentionName != nil {
		settings.MentionName = *req.MentionName
	}
	if req.MentionUserIDs != nil {
		settings.MentionUserIDs = req.MentionUserIDs
	}

	if err := settings.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveSettings(ctx, &settings); err != nil {
		logrus.WithError(err).Error("Failed to save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	if err := s.orchestrator.Reload(ctx); err != nil && !errors.Is(err, monitoring.ErrStopped) {
		logrus.WithError(err).Error("Failed to reload scheduler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settings saved but scheduler reload failed"})
		return
	}

	logrus.WithFields(logrus.Fields{
		"check_interval":     settings.CheckInterval.Duration(),
		"confirmation_delay": settings.ConfirmationDelay.Duration(),
		"timezone":           settings.Timezone,
	}).Info("Settings updated")
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// GET /api/stats
func (s *Server) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	dbStats, err := s.store.GetDatabaseStats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get database stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	latest, err := s.store.LatestRecords(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	statuses := map[string]int{
		database.StatusOK:      0,
		database.StatusFailure: 0,
		database.StatusError:   0,
		database.StatusSkipped: 0,
	}
	for _, rec := range latest {
		statuses[rec.Status]++
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"database":          dbStats,
		"latest_status":     statuses,
		"alerted_hosts":     len(s.orchestrator.Memory().Snapshot()),
		"websocket_clients": s.hub.Len(),
	}})
}

// writeError maps orchestrator errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, monitoring.ErrHostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
	case errors.Is(err, monitoring.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler is shutting down"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request ended before the check finished; it will still be recorded"})
	default:
		logrus.WithError(err).Error(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg + ": " + err.Error()})
	}
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	str := c.Query(key)
	if str == "" {
		return def, true
	}
	v, err := strconv.Atoi(str)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}
