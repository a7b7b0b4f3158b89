package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckInterval is how long a report is reused before checking again.
const DefaultCheckInterval = 10 * time.Second

// CheckFunc pings one dependency.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Monitor aggregates health status from registered dependency checks.
type Monitor struct {
	checks     []check
	interval   time.Duration
	timeout    time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. interval <= 0 uses DefaultCheckInterval.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Monitor{
		interval: interval,
		timeout:  2 * time.Second,
	}
}

// Register adds a check. A failing critical check makes the system critical,
// any other failure only degrades it.
func (m *Monitor) Register(name string, critical bool, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check{name: name, critical: critical, fn: fn})
	m.lastReport = nil
}

// CheckHealth runs every check, reusing the previous report within interval.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering dependencies
	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
	}

	for _, c := range m.checks {
		component := ComponentHealth{Name: c.name, Status: StatusHealthy, Critical: c.critical}

		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.fn(checkCtx)
		cancel()

		if err != nil {
			component.Error = err.Error()
			component.Status = StatusDegraded
			if c.critical {
				component.Status = StatusCritical
			}
		}
		report.Components[c.name] = component

		// Aggregate status (worst case wins)
		switch {
		case component.Status == StatusCritical:
			report.SystemStatus = StatusCritical
		case component.Status == StatusDegraded && report.SystemStatus == StatusHealthy:
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
