// Package health runs the startup and runtime checks of the service's dependencies.
package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Checker is a single dependency check
type Checker interface {
	HealthCheck(ctx context.Context) error
	IsCritical() bool // Critical services block startup if unhealthy
	Name() string
}

// Statuses reported by Report
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Manager aggregates checkers
type Manager struct {
	checkers []Checker
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make([]Checker, 0),
		logger:   logger,
	}
}

// AddChecker adds a health checker to the manager
func (h *Manager) AddChecker(checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checker)
}

// StartupHealthCheck performs critical health checks that must pass for startup
func (h *Manager) StartupHealthCheck(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var criticalFailures []error
	for _, checker := range h.checkers {
		err := checker.HealthCheck(ctx)
		switch {
		case err == nil:
			h.logger.Info("Service health check passed",
				zap.String("service", checker.Name()),
				zap.Bool("critical", checker.IsCritical()))
		case checker.IsCritical():
			criticalFailures = append(criticalFailures, fmt.Errorf("%s: %w", checker.Name(), err))
			h.logger.Error("Critical service health check failed",
				zap.String("service", checker.Name()),
				zap.Error(err))
		default:
			h.logger.Warn("Non-critical service health check failed",
				zap.String("service", checker.Name()),
				zap.Error(err))
		}
	}

	if len(criticalFailures) > 0 {
		return fmt.Errorf("critical services failed health check: %v", criticalFailures)
	}

	h.logger.Info("All critical services healthy", zap.Int("total_checks", len(h.checkers)))
	return nil
}

// Report is the result of a runtime health check
type Report struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// RuntimeHealthCheck checks every dependency. The status is unhealthy when a
// critical check fails and degraded when only non-critical ones do.
func (h *Manager) RuntimeHealthCheck(ctx context.Context) Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	report := Report{
		Status:   StatusHealthy,
		Services: make(map[string]string, len(h.checkers)),
	}
	for _, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			report.Services[checker.Name()] = err.Error()
			if checker.IsCritical() {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
			continue
		}
		report.Services[checker.Name()] = StatusHealthy
	}
	return report
}

// DatabaseHealthChecker checks database connectivity
type DatabaseHealthChecker struct {
	db *bun.DB
}

// NewDatabaseHealthChecker creates a database health checker
func NewDatabaseHealthChecker(db *bun.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

func (d *DatabaseHealthChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseHealthChecker) IsCritical() bool {
	return true
}

func (d *DatabaseHealthChecker) Name() string {
	return "database"
}

// Pinger is anything that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheHealthChecker checks the cache backend. Reads fall back to the
// store when the cache is down, so it is never critical.
type CacheHealthChecker struct {
	cache Pinger
}

// NewCacheHealthChecker creates a cache health checker
func NewCacheHealthChecker(cache Pinger) *CacheHealthChecker {
	return &CacheHealthChecker{cache: cache}
}

func (c *CacheHealthChecker) HealthCheck(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

func (c *CacheHealthChecker) IsCritical() bool {
	return false
}

func (c *CacheHealthChecker) Name() string {
	return "cache"
}
