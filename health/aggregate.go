package health

import "time"

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Ready:     status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status. Degraded components are alive
// but not ready.
func NewDegraded(component, message string) Status {
	s := newStatus(component, StatusDegraded, message)
	s.Healthy = true
	return s
}

// Aggregate folds sub-statuses into one. The input slice is copied.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No components running")
	}

	var unhealthy, degraded int
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var s Status
	switch {
	case unhealthy > 0:
		s = NewUnhealthy(component, "One or more components are unhealthy")
	case degraded > 0:
		s = NewDegraded(component, "One or more components are not ready")
	default:
		s = NewHealthy(component, "All components are healthy")
	}

	s.SubStatuses = make([]Status, len(subs))
	copy(s.SubStatuses, subs)
	return s
}
