package server

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/jittakal/kafcoldstore/internal/processor"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Checks     map[string]string `json:"checks,omitempty"`
	Partitions []PartitionHealth `json:"partitions,omitempty"`
}

// PartitionHealth is the readiness view of one owned partition.
type PartitionHealth struct {
	Topic          string `json:"topic"`
	Partition      int32  `json:"partition"`
	State          string `json:"state"`
	Breaker        string `json:"breaker"`
	PendingFrames  int    `json:"pending_frames"`
	LastCheckpoint int64  `json:"last_checkpoint"`
}

// StatusSource reports the processors currently holding a lease.
type StatusSource interface {
	Statuses() []processor.Status
}

// ReadySource reports whether the consumer has joined its group.
type ReadySource interface {
	Ready() bool
}

// EngineChecker derives health from the processor factory and the partition host.
type EngineChecker struct {
	statuses StatusSource
	host     ReadySource
	alive    atomic.Bool
}

// NewEngineChecker creates a checker that reports alive until MarkStopping.
func NewEngineChecker(statuses StatusSource, host ReadySource) *EngineChecker {
	c := &EngineChecker{statuses: statuses, host: host}
	c.alive.Store(true)
	return c
}

// MarkStopping flips liveness so orchestrators stop routing during shutdown.
func (c *EngineChecker) MarkStopping() { c.alive.Store(false) }

// Liveness reports whether the process should keep running.
func (c *EngineChecker) Liveness() bool { return c.alive.Load() }

// Readiness reports whether the consumer is in a group session.
func (c *EngineChecker) Readiness(ctx context.Context) bool {
	if ctx.Err() != nil || !c.alive.Load() {
		return false
	}
	return c.host == nil || c.host.Ready()
}

// GetStatus summarizes component states.
func (c *EngineChecker) GetStatus() map[string]string {
	consumerState := "ready"
	if c.host != nil && !c.host.Ready() {
		consumerState = "not ready"
	}

	var owned, stalling, pending int
	if c.statuses != nil {
		for _, s := range c.statuses.Statuses() {
			owned++
			pending += s.PendingFrames
			if s.State == processor.StateStalling {
				stalling++
			}
		}
	}

	return map[string]string{
		"consumer":       consumerState,
		"partitions":     strconv.Itoa(owned),
		"stalling":       strconv.Itoa(stalling),
		"pending_frames": strconv.Itoa(pending),
	}
}

// Partitions lists owned partitions ordered by topic and partition.
func (c *EngineChecker) Partitions() []PartitionHealth {
	if c.statuses == nil {
		return nil
	}
	statuses := c.statuses.Statuses()
	out := make([]PartitionHealth, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, PartitionHealth{
			Topic:          s.Partition.Topic,
			Partition:      s.Partition.Partition,
			State:          s.State.String(),
			Breaker:        s.Breaker.String(),
			PendingFrames:  s.PendingFrames,
			LastCheckpoint: s.LastCheckpoint,
		})
	}
	slices.SortFunc(out, func(a, b PartitionHealth) int {
		if c := strings.Compare(a.Topic, b.Topic); c != 0 {
			return c
		}
		return cmp.Compare(a.Partition, b.Partition)
	})
	return out
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// The body lists every owned partition with its queue depth.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:     status,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Checks:     checker.GetStatus(),
			Partitions: checker.Partitions(),
		}, logger)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}
