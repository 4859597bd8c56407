// Package health provides passive health status values for streams and
// a thread-safe monitor that aggregates them. Nothing here serves HTTP;
// the embedding process decides how to surface statuses.
package health

import (
	"fmt"
	"sync"
	"time"
)

// Well-known status strings.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the health of one component or of an aggregate.
type Status struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// NewHealthy builds a healthy status.
func NewHealthy(component, message string) Status {
	return Status{Component: component, Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// NewDegraded builds a degraded status.
func NewDegraded(component, message string) Status {
	return Status{Component: component, Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// NewUnhealthy builds an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{Component: component, Status: StatusUnhealthy, Message: message, Timestamp: time.Now()}
}

// Aggregate folds sub-statuses into one: unhealthy if all subs are
// unhealthy, healthy if all are healthy, degraded otherwise.
func Aggregate(component string, subs []Status) Status {
	agg := Status{
		Component:   component,
		Timestamp:   time.Now(),
		SubStatuses: subs,
	}

	if len(subs) == 0 {
		agg.Status = StatusHealthy
		return agg
	}

	healthy := 0
	for _, s := range subs {
		if s.IsHealthy() {
			healthy++
		}
	}
	switch healthy {
	case len(subs):
		agg.Status = StatusHealthy
	case 0:
		agg.Status = StatusUnhealthy
	default:
		agg.Status = StatusDegraded
	}
	agg.Message = fmt.Sprintf("%d/%d healthy", healthy, len(subs))
	return agg
}

// Monitor tracks statuses of named components in a thread-safe manner.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records the status for a named component, stamping the name
// and a timestamp if missing.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the status for a named component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[name]
	return status, ok
}

// Remove forgets a component.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// Count returns the number of tracked components.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}

// Aggregate returns the folded status of all tracked components under
// the given name.
func (m *Monitor) Aggregate(name string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses))
	for _, s := range m.statuses {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	return Aggregate(name, subs)
}
