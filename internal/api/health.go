package api

import (
	"net/http"
	"time"

	"github.com/snarg/voicescribe/internal/transcribe"
)

// ToolChecker reports whether an external tool can be executed.
type ToolChecker interface {
	Available() bool
}

// ConnChecker reports whether a broker connection is up.
type ConnChecker interface {
	IsConnected() bool
}

// QueueStatter reports the MQTT job queue counters.
type QueueStatter interface {
	Stats() transcribe.QueueStats
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]string      `json:"checks"`
	Queue         *transcribe.QueueStats `json:"queue,omitempty"`
}

type HealthHandler struct {
	ffmpeg    ToolChecker
	mqtt      ConnChecker  // nil when MQTT intake is disabled
	queue     QueueStatter // nil when MQTT intake is disabled
	archive   string       // archive backend type, "" when disabled
	version   string
	startTime time.Time
}

func NewHealthHandler(ffmpeg ToolChecker, mqtt ConnChecker, queue QueueStatter, archive, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		ffmpeg:    ffmpeg,
		mqtt:      mqtt,
		queue:     queue,
		archive:   archive,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Without ffmpeg no job can reach the recognizer.
	if h.ffmpeg != nil && h.ffmpeg.Available() {
		checks["ffmpeg"] = "ok"
	} else {
		checks["ffmpeg"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.archive != "" {
		checks["archive"] = h.archive
	} else {
		checks["archive"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.queue != nil {
		stats := h.queue.Stats()
		resp.Queue = &stats
	}
	WriteJSON(w, httpStatus, resp)
}
