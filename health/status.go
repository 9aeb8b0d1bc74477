package health

import (
	"time"

	"github.com/c360/streamkit/component"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a component or of the whole process
type Status struct {
	Component   string    `json:"component"`
	Type        string    `json:"type,omitempty"`
	Healthy     bool      `json:"healthy"`
	Ready       bool      `json:"ready"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	ErrorRate         float64       `json:"error_rate"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// FromComponent builds the status of one component. A component that is
// healthy but not ready yet is degraded.
func FromComponent(c component.Discoverable) Status {
	meta := c.Meta()
	h := c.Health()
	flow := c.DataFlow()

	s := Status{
		Component: meta.Name,
		Type:      meta.Type,
		Healthy:   h.Healthy,
		Ready:     h.Ready,
		Timestamp: time.Now(),
		Metrics: &Metrics{
			Uptime:            h.Uptime,
			ErrorCount:        h.ErrorCount,
			MessagesPerSecond: flow.MessagesPerSecond,
			ErrorRate:         flow.ErrorRate,
			LastActivity:      flow.LastActivity,
		},
	}

	switch {
	case !h.Healthy:
		s.Status = StatusUnhealthy
		s.Message = "Component unhealthy"
	case component.IsSuspended(c):
		s.Status = StatusDegraded
		s.Message = "Component suspended"
	case !h.Ready:
		s.Status = StatusDegraded
		s.Message = "Component not ready"
	default:
		s.Status = StatusHealthy
		s.Message = "Component healthy"
	}
	if h.LastError != "" {
		s.Message = sanitizeErrorMessage(h.LastError)
	}
	return s
}
