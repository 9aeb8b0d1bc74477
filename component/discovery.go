package component

import (
	"time"
)

// Discoverable describes a component that can report what it is and how it is doing.
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus

	// DataFlow returns current data flow metrics
	DataFlow() FlowMetrics
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "consumer", "timer"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Ready      bool          `json:"ready"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}

// ComputeFlow derives flow metrics from running totals.
func ComputeFlow(messages, errors int64, since time.Time, lastActivity time.Time) FlowMetrics {
	var fm FlowMetrics
	if uptime := time.Since(since).Seconds(); uptime > 0 && !since.IsZero() {
		fm.MessagesPerSecond = float64(messages) / uptime
	}
	if messages > 0 {
		fm.ErrorRate = float64(errors) / float64(messages)
	}
	fm.LastActivity = lastActivity
	return fm
}
