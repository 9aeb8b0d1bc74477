// Package metric provides Prometheus-based metrics for StreamKit.
//
// A MetricsRegistry wraps a dedicated Prometheus registry. It registers the
// core metrics every deployment has (exchanges completed and failed, polls,
// spool files) and lets components register their own collectors under a
// service name, so two consumers cannot clash on a metric key.
//
// Components follow the "nil registry, no metrics" convention: every
// constructor accepts a *MetricsRegistry that may be nil, in which case no
// collectors are created and the hot path skips metric updates entirely.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = server.Start() }()
//	defer server.Stop()
package metric
