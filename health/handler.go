package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the status returned by check as JSON. It answers 503 when
// the status is unhealthy.
func Handler(check func() Status) http.Handler {
	return serve(check, func(s Status) bool { return !s.IsUnhealthy() })
}

// ReadyHandler is like Handler but also answers 503 while degraded
func ReadyHandler(check func() Status) http.Handler {
	return serve(check, Status.IsHealthy)
}

func serve(check func() Status, ok func(Status) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := check()
		code := http.StatusOK
		if !ok(status) {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
