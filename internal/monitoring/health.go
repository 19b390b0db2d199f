package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"ixperf/internal/pipeline"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration_ns"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Critical  bool                   `json:"critical"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Uptime    time.Duration          `json:"uptime_ns"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheck
	IsCritical() bool
}

// HealthManager runs the registered checkers and folds their results into
// one status. Any failing critical check makes the whole harness unhealthy.
type HealthManager struct {
	mu        sync.Mutex
	checkers  []HealthChecker
	startTime time.Time
	last      HealthStatus
}

func NewHealthManager() *HealthManager {
	return &HealthManager{
		startTime: time.Now(),
		last:      HealthStatusHealthy,
	}
}

func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers = append(hm.checkers, checker)
}

// CheckHealth performs all health checks
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthResponse {
	hm.mu.Lock()
	checkers := append([]HealthChecker(nil), hm.checkers...)
	hm.mu.Unlock()

	checks := make(map[string]HealthCheck, len(checkers))
	overall := HealthStatusHealthy

	for _, checker := range checkers {
		start := time.Now()
		check := checker.Check(ctx)
		check.Name = checker.Name()
		check.Duration = time.Since(start)
		check.Timestamp = time.Now()
		check.Critical = checker.IsCritical()
		checks[check.Name] = check

		switch check.Status {
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusUnhealthy:
			if check.Critical {
				overall = HealthStatusUnhealthy
			} else if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	hm.mu.Lock()
	hm.last = overall
	hm.mu.Unlock()

	return HealthResponse{
		Status:    overall,
		Uptime:    time.Since(hm.startTime),
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// LastStatus returns the overall status of the most recent CheckHealth
func (hm *HealthManager) LastStatus() HealthStatus {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.last
}

// PipelineChecker reports the state of the benchmark run. A failed run is
// unhealthy.
type PipelineChecker struct {
	source Source
}

func NewPipelineChecker(source Source) *PipelineChecker {
	return &PipelineChecker{source: source}
}

func (p *PipelineChecker) Name() string     { return "pipeline" }
func (p *PipelineChecker) IsCritical() bool { return true }

func (p *PipelineChecker) Check(ctx context.Context) HealthCheck {
	status := p.source.Status()
	details := map[string]interface{}{
		"state":  status.State.String(),
		"index":  status.Index,
		"phases": len(status.Phases),
	}
	if status.Phase != "" {
		details["phase"] = status.Phase
	}

	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Pipeline is " + status.State.String(),
		Details: details,
	}
	switch status.State {
	case pipeline.StateDone:
		check.Message = "Run completed"
	case pipeline.StateFailed:
		check.Status = HealthStatusUnhealthy
		check.Message = "Run failed: " + status.Error
	}
	return check
}

// RuntimeChecker watches heap and goroutine counts of the harness itself.
// Zero limits disable the corresponding check.
type RuntimeChecker struct {
	maxMemoryMB   uint64
	maxGoroutines int
}

func NewRuntimeChecker(maxMemoryMB uint64, maxGoroutines int) *RuntimeChecker {
	return &RuntimeChecker{maxMemoryMB: maxMemoryMB, maxGoroutines: maxGoroutines}
}

func (r *RuntimeChecker) Name() string     { return "runtime" }
func (r *RuntimeChecker) IsCritical() bool { return false }

func (r *RuntimeChecker) Check(ctx context.Context) HealthCheck {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	allocMB := mem.Alloc / 1024 / 1024
	goroutines := runtime.NumGoroutine()

	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Runtime usage is normal",
		Details: map[string]interface{}{
			"alloc_mb":   allocMB,
			"sys_mb":     mem.Sys / 1024 / 1024,
			"num_gc":     mem.NumGC,
			"goroutines": goroutines,
		},
	}

	switch {
	case r.maxMemoryMB > 0 && allocMB > r.maxMemoryMB:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Memory usage exceeds limit (%dMB > %dMB)", allocMB, r.maxMemoryMB)
	case r.maxGoroutines > 0 && goroutines > r.maxGoroutines:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Too many goroutines (%d > %d)", goroutines, r.maxGoroutines)
	case r.maxMemoryMB > 0 && allocMB > r.maxMemoryMB*80/100:
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("Memory usage is high (%dMB)", allocMB)
	}
	return check
}
