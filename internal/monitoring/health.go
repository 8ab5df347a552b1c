package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-npubench/internal/logger"
	"github.com/23skdu/longbow-npubench/internal/report"
)

// Version is reported by the status endpoint.
var Version = "dev"

// HealthStatus represents the health status of the benchmark process
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	System    SystemInfo    `json:"system"`
	Bench     BenchInfo     `json:"bench"`
	Alerts    []Alert       `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemoryMB     int    `json:"memory_mb"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// BenchInfo describes the current benchmark session
type BenchInfo struct {
	Session   string          `json:"session"`
	Device    string          `json:"device"`
	Harness   string          `json:"harness"`
	Phase     string          `json:"phase"`
	StartedAt time.Time       `json:"started_at"`
	Results   []report.Result `json:"results"`
}

// Alert represents a benchmark alert
type Alert struct {
	Level      string     `json:"level"`     // info, warning, error, critical
	Component  string     `json:"component"` // harness name or subsystem
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

const (
	PhaseIdle    = "idle"
	PhaseRunning = "running"
	PhasePassed  = "passed"
	PhaseFailed  = "failed"

	maxAlerts = 100
)

// HealthMonitor serves liveness, Prometheus metrics and session status
type HealthMonitor struct {
	startTime time.Time
	server    *http.Server
	mu        sync.RWMutex
	alerts    []Alert
	bench     BenchInfo
}

func NewHealthMonitor(session, device string) *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		alerts:    make([]Alert, 0),
		bench:     BenchInfo{Session: session, Device: device, Phase: PhaseIdle},
	}
}

// Handler routes every monitoring endpoint.
func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.HandleFunc("/admin/clear-alerts", hm.handleClearAlerts)
	return mux
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (hm *HealthMonitor) Start(addr string) (string, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	hm.server = &http.Server{
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Log.Info("Health monitor starting", "addr", l.Addr().String())
	go func() {
		if err := hm.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Health monitor stopped", err)
		}
	}()
	return l.Addr().String(), nil
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// BeginHarness marks harness as running.
func (hm *HealthMonitor) BeginHarness(harness string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.bench.Harness = harness
	hm.bench.Phase = PhaseRunning
	hm.bench.StartedAt = time.Now()
	hm.bench.Results = nil
}

// FinishHarness records the outcome of the running harness. A failure
// raises an error alert.
func (hm *HealthMonitor) FinishHarness(results []report.Result, err error) {
	hm.mu.Lock()
	hm.bench.Results = append([]report.Result(nil), results...)
	hm.bench.Phase = PhasePassed
	if err != nil {
		hm.bench.Phase = PhaseFailed
	}
	harness := hm.bench.Harness
	hm.mu.Unlock()

	if err != nil {
		hm.AddAlert("error", harness, err.Error())
	}
}

func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}

	logger.Log.Warn("Alert raised", "level", level, "component", component, "message", message)
}

func (hm *HealthMonitor) ResolveAlert(index int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if index >= 0 && index < len(hm.alerts) {
		now := time.Now()
		hm.alerts[index].Resolved = true
		hm.alerts[index].ResolvedAt = &now
	}
}

// HTTP Handlers

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hm.Status())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)
	hm.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alerts)
}

func (hm *HealthMonitor) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hm.mu.Lock()
	hm.alerts = hm.alerts[:0]
	hm.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "alerts cleared"})
}

// Status computes the current health. Unresolved critical alerts make the
// process critical, unresolved errors make it degraded.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, alert := range hm.alerts {
		if alert.Resolved {
			continue
		}
		if alert.Level == "critical" {
			status = "critical"
			break
		}
		if alert.Level == "error" {
			status = "degraded"
		}
	}

	bench := hm.bench
	bench.Results = append([]report.Result(nil), hm.bench.Results...)
	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(hm.startTime),
		System:    systemInfo(),
		Bench:     bench,
		Alerts:    append([]Alert(nil), hm.alerts...),
	}
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		MemoryMB:     int(m.Sys / 1024 / 1024),
		MemoryUsedMB: int(m.Alloc / 1024 / 1024),
	}
}
