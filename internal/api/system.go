package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/auth"
	"github.com/nerrad567/vigilant-core/internal/broker"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/influxdb"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Realtime      RealtimeMetrics  `json:"realtime"`
	Broker        broker.Status    `json:"broker"`
	Devices       DeviceMetrics    `json:"devices"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
	History       influxdb.Status  `json:"history"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// RealtimeMetrics contains realtime hub statistics.
type RealtimeMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	BySensorKind map[string]int `json:"by_sensor_kind"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	SchemaVersion   string `json:"schema_version"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// handleHealth reports liveness plus the broker and history state. It stays
// 200 while the broker or InfluxDB is down: ingestion keeps running and both
// are retried or skipped. Only a failing database answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":           "ok",
		"version":          s.version,
		"broker_connected": s.broker.Status().Connected,
		"influxdb":         "disabled",
	}

	if s.history != nil {
		if err := s.history.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("influxdb health check failed", "error", err)
			resp["influxdb"] = "unreachable"
			resp["status"] = "degraded"
		} else {
			resp["influxdb"] = "ok"
		}
	}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMe returns the caller's identity and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":     id.Subject,
		"role":        id.Role,
		"permissions": auth.PermissionsForRole(id.Role),
	})
}

// handleSystemMetrics returns runtime, broker, realtime and registry figures.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	regStats := s.registry.GetStats()
	metrics := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Realtime: RealtimeMetrics{ConnectedClients: s.hub.ClientCount()},
		Broker:   s.broker.Status(),
		Devices: DeviceMetrics{
			Total:        regStats.TotalDevices,
			ByStatus:     regStats.ByStatus,
			BySensorKind: regStats.BySensorKind,
		},
	}

	if s.history != nil {
		metrics.History = s.history.Status()
	}

	if s.db != nil {
		version, err := s.db.SchemaVersion(r.Context())
		if err != nil {
			s.logger.Warn("reading schema version", "error", err)
		}
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			SchemaVersion:   version,
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleListAudit pages through the audit trail.
//
// Query parameters: action, entity_type, entity_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	res, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
