package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"tradearena/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
	httpAddr  string
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time, httpAddr string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:      pool,
		startedAt: start,
		httpAddr:  strings.TrimSpace(httpAddr),
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	UptimeSec int64           `json:"uptime_sec"`
	Uptime    string          `json:"uptime"`
	Database  readinessDBStat `json:"database"`
	Process   processStats    `json:"process"`
}

type readinessDBStat struct {
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
	CheckedAt  string `json:"checked_at"`
	TimeoutSec int    `json:"timeout_sec"`
}

type processStats struct {
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HTTPAddr   string `json:"http_addr"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) pingDB(ctx context.Context) readinessDBStat {
	const timeoutSec = 1
	stat := readinessDBStat{TimeoutSec: timeoutSec}
	if h.pool == nil {
		stat.Error = "pool is not configured"
		stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
		return stat
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, timeoutSec*time.Second)
	err := h.pool.Ping(pingCtx)
	cancel()
	stat.PingMs = time.Since(start).Milliseconds()
	stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		stat.Error = err.Error()
	} else {
		stat.Reachable = true
	}
	return stat
}

// Live is a lightweight liveness endpoint and does not check database reachability.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Health checks the primary dependency (database) and returns 503 when it's not reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.pingDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	host := ""
	if hn, err := os.Hostname(); err == nil {
		host = hn
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Database:  db,
		Process: processStats{
			PID:        os.Getpid(),
			Hostname:   host,
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			HTTPAddr:   h.httpAddr,
		},
	})
}
