package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/config"
	"github.com/c360/streamkit/connector/jetstream"
	"github.com/c360/streamkit/connector/memtable"
	"github.com/c360/streamkit/connector/pebble"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/health"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/pkg/tlsutil"
	"github.com/c360/streamkit/poll"
	"github.com/c360/streamkit/streamcache"
	"github.com/c360/streamkit/timer"
)

// app owns everything a run command starts and stops
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	processor exchange.Processor

	metrics     *metric.MetricsRegistry
	server      *metric.Server
	serverDone  chan error
	streamCache *streamcache.Strategy
	natsClient  *natsclient.Client

	catalog  *memtable.Catalog
	stores   *pebble.Stores
	registry *poll.Registry
	timers   *timer.Registry

	mu         sync.RWMutex
	components []component.LifecycleComponent
}

func newApp(cfg *config.Config, logger *slog.Logger, processor exchange.Processor) (*app, error) {
	if cfg == nil || processor == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "app", "newApp", "dependency check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		processor: processor,
		catalog:   memtable.NewCatalog(),
		stores:    pebble.NewStores(),
		registry:  poll.NewRegistry(),
		timers:    timer.NewRegistry(),
	}

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewMetricsRegistry()
		a.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics)
		a.server.Handle("/health", health.Handler(a.status))
		a.server.Handle("/ready", health.ReadyHandler(a.status))
	}

	cache, err := streamcache.NewStrategy(streamcache.StrategyDeps{
		Config:          cfg.StreamCache,
		MetricsRegistry: a.metrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "app", "newApp", "create stream cache")
	}
	a.streamCache = cache

	if err := memtable.Register(a.registry, a.catalog); err != nil {
		return nil, err
	}
	if err := pebble.Register(a.registry, a.stores); err != nil {
		return nil, err
	}
	if err := jetstream.Register(a.registry); err != nil {
		return nil, err
	}
	logger.Debug("Consumer types registered", "types", a.registry.Names())

	return a, nil
}

// Catalog returns the in-memory tables used by memtable consumers
func (a *app) Catalog() *memtable.Catalog { return a.catalog }

// start brings up infrastructure first and consumers last. On failure
// whatever was started is stopped again.
func (a *app) start(ctx context.Context) error {
	if err := a.startInfrastructure(ctx); err != nil {
		_ = a.stop(5 * time.Second)
		return err
	}
	if err := a.startConsumers(ctx); err != nil {
		_ = a.stop(5 * time.Second)
		return err
	}
	a.logger.Info("StreamKit started",
		"consumers", len(a.cfg.Consumers),
		"timers", len(a.cfg.Timers))
	return nil
}

func (a *app) startInfrastructure(ctx context.Context) error {
	if a.server != nil {
		a.serverDone = make(chan error, 1)
		go func() {
			a.serverDone <- a.server.Start()
		}()
		a.logger.Info("Metrics server starting", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
	}

	if err := a.streamCache.Start(); err != nil {
		return errors.Wrap(err, "app", "start", "start stream cache")
	}

	if !a.cfg.NATS.Enabled() {
		return nil
	}
	client, err := newNATSClient(a.cfg.NATS, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("Connecting to NATS", "urls", a.cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return errors.Wrap(err, "app", "start", "connect to NATS")
	}
	a.natsClient = client
	return nil
}

func (a *app) startConsumers(ctx context.Context) error {
	deps := poll.FactoryDeps{
		Dependencies: component.Dependencies{
			NATSClient:      a.natsClient,
			MetricsRegistry: a.metrics,
			Logger:          a.logger,
		},
		Processor:        a.processor,
		ExceptionHandler: exchange.LoggingExceptionHandler{Logger: a.logger},
		StreamCache:      a.streamCache,
	}

	for _, consumerCfg := range a.cfg.Consumers {
		consumer, err := a.registry.Create(consumerCfg, deps)
		if err != nil {
			return err
		}
		if err := a.launch(ctx, consumer); err != nil {
			return err
		}
	}

	for _, timerCfg := range a.cfg.Timers {
		cfg, err := timerCfg.Timer()
		if err != nil {
			return err
		}
		consumer, err := timer.NewConsumer(cfg, a.timers, timer.Deps{
			Processor:        a.processor,
			ExceptionHandler: deps.ExceptionHandler,
			MetricsRegistry:  a.metrics,
			Logger:           a.logger,
		})
		if err != nil {
			return err
		}
		if err := a.launch(ctx, consumer); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) launch(ctx context.Context, c component.LifecycleComponent) error {
	name := c.Meta().Name
	if err := c.Initialize(); err != nil {
		return errors.Wrap(err, "app", "launch", fmt.Sprintf("initialize %s", name))
	}
	if err := c.Start(ctx); err != nil {
		return errors.Wrap(err, "app", "launch", fmt.Sprintf("start %s", name))
	}
	a.mu.Lock()
	a.components = append(a.components, c)
	a.mu.Unlock()
	a.logger.Info("Consumer started", "name", name, "type", c.Meta().Type)
	return nil
}

// stop shuts everything down in reverse start order. It keeps going after a
// failure and returns the first error.
func (a *app) stop(timeout time.Duration) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	a.mu.Lock()
	components := a.components
	a.components = nil
	a.mu.Unlock()

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(timeout); err != nil {
			a.logger.Warn("Consumer did not stop cleanly", "name", c.Meta().Name, "error", err)
			keep(err)
		}
	}
	a.timers.Close()

	if a.natsClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		keep(a.natsClient.Close(ctx))
		cancel()
		a.natsClient = nil
	}
	keep(a.stores.Close())
	keep(a.streamCache.Stop())

	if a.server != nil && a.serverDone != nil {
		keep(a.server.Stop())
		select {
		case err := <-a.serverDone:
			keep(err)
		case <-time.After(timeout):
		}
		a.serverDone = nil
	}
	return first
}

// status aggregates the health of every running component
func (a *app) status() health.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	subs := make([]health.Status, 0, len(a.components))
	for _, c := range a.components {
		subs = append(subs, health.FromComponent(c))
	}
	return health.Aggregate(appName, subs)
}

func newNATSClient(cfg config.NATSConfig, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithLogger(logger),
	}
	if cfg.ReconnectWait != "" {
		d, err := time.ParseDuration(cfg.ReconnectWait)
		if err != nil {
			return nil, errors.WrapInvalid(err, "app", "newNATSClient", "parse reconnect_wait")
		}
		opts = append(opts, natsclient.WithReconnectWait(d))
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, errors.WrapInvalid(err, "app", "newNATSClient", "parse timeout")
		}
		opts = append(opts, natsclient.WithTimeout(d))
	}
	if cfg.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.Name))
	} else {
		opts = append(opts, natsclient.WithName(appName))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, errors.Wrap(err, "app", "newNATSClient", "load TLS config")
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	return natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
}

// logProcessor is the default route: it logs each exchange it receives
func logProcessor(logger *slog.Logger) exchange.Processor {
	return exchange.ProcessorFunc(func(_ context.Context, ex *exchange.Exchange) error {
		attrs := []any{
			"exchange_id", ex.ID(),
			"consumer", ex.Property(exchange.PropertyConsumer),
			"body_size", bodySize(ex.Body()),
		}
		if id := ex.Header(exchange.HeaderItemID); id != nil {
			attrs = append(attrs, "item_id", id)
		}
		if idx := ex.Property(exchange.PropertyBatchIndex); idx != nil {
			attrs = append(attrs, "batch_index", idx, "batch_size", ex.Property(exchange.PropertyBatchSize))
		}
		logger.Info("Exchange received", attrs...)
		return nil
	})
}

func bodySize(body any) int64 {
	switch v := body.(type) {
	case nil:
		return 0
	case []byte:
		return int64(len(v))
	case string:
		return int64(len(v))
	case streamcache.StreamCache:
		return v.Length()
	default:
		return -1
	}
}
