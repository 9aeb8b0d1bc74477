// Package health turns component health into a JSON report.
//
// Each running component contributes one Status derived from its Meta,
// Health and DataFlow. Aggregate folds them into a single status:
//
//   - any unhealthy component makes the whole report unhealthy
//   - otherwise any degraded component (started, first poll not done yet)
//     makes it degraded
//   - otherwise it is healthy
//
// Handler and ReadyHandler serve the report over HTTP. Liveness answers 503
// only when unhealthy; readiness also answers 503 while degraded.
//
// Error messages are sanitized before they leave the process: URLs, paths,
// addresses and credentials are replaced by placeholders.
package health
