package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/config"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/pkg/security"
	"github.com/c360/streamkit/poll"
	"github.com/c360/streamkit/streamcache"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, size int) string {
	t.Helper()
	data := bytes.Repeat([]byte("streamkit-"), size/10+1)[:size]
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		blocked slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := setupLogger(io.Discard, tt.level, "json")
			assert.True(t, logger.Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Enabled(context.Background(), tt.blocked))
		})
	}
}

func TestSetupLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "service=streamkit")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "streamkit version "+Version)
}

func TestSpoolCommand(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		threshold string
		cipher    string
		inMemory  bool
	}{
		{"small file stays in memory", 512, "1024", "", true},
		{"large file spools", 64 * 1024, "1024", "", false},
		{"large file spools encrypted ctr", 64*1024 + 3, "1024", "AES/CTR/NoPadding", false},
		{"large file spools encrypted cbc", 64*1024 + 7, "1024", "AES/CBC/PKCS5Padding", false},
		{"spooling disabled", 64 * 1024, "-1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeInput(t, tt.size)
			dir := filepath.Join(t.TempDir(), "spool")
			args := []string{"spool", "--threshold", tt.threshold, "--dir", dir, input}
			if tt.cipher != "" {
				args = append(args, "--cipher", tt.cipher)
			}

			out, err := execute(t, args...)
			require.NoError(t, err)
			assert.Contains(t, out, "verified:       true")
			if tt.inMemory {
				assert.Contains(t, out, "in_memory:      true")
			} else {
				assert.Contains(t, out, "in_memory:      false")
				assert.Contains(t, out, "spool_caches:   1")
			}

			leftovers, err := filepath.Glob(filepath.Join(dir, "cos*.tmp"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestSpoolCommand_Output(t *testing.T) {
	input := writeInput(t, 10*1024)
	output := filepath.Join(t.TempDir(), "copy.bin")

	_, err := execute(t, "spool", "--threshold", "100", "--dir", filepath.Join(t.TempDir(), "spool"), "-o", output, input)
	require.NoError(t, err)

	want, err := os.ReadFile(input)
	require.NoError(t, err)
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSpoolCommand_Errors(t *testing.T) {
	_, err := execute(t, "spool", filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)

	_, err = execute(t, "spool", "--cipher", "DES", writeInput(t, 10))
	assert.Error(t, err)

	_, err = execute(t, "spool")
	assert.Error(t, err)
}

const runConfig = `
log:
  level: warn
  format: text
stream_cache:
  spool_threshold: 1024
consumers:
  - name: orders
    type: memtable
    initial_delay: 10ms
    delay: 20ms
    options:
      table: orders
timers:
  - name: heartbeat
    period: 50ms
`

func TestRunCommand_Validate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runConfig), 0o600))

	out, err := execute(t, "run", "--config", path, "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestRunCommand_ValidateShippedConfig(t *testing.T) {
	out, err := execute(t, "run", "--config", filepath.Join("..", "..", "configs", "streamkit.yaml"), "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	bad := strings.Replace(runConfig, "delay: 20ms", "delay: soon", 1)
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	_, err := execute(t, "run", "--config", path, "--validate")
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--validate")
	assert.Error(t, err)
}

// recorder counts exchanges per consumer
type recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recorder) Process(_ context.Context, ex *exchange.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, _ := ex.Property(exchange.PropertyConsumer).(string)
	r.counts[name]++
	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.StreamCache = streamcache.DefaultConfig()
	cfg.StreamCache.SpoolDirectory = filepath.Join(t.TempDir(), "spool")
	cfg.Consumers = []poll.ConsumerConfig{{
		Name:         "orders",
		Type:         "memtable",
		InitialDelay: "10ms",
		Delay:        "10ms",
		Options:      json.RawMessage(`{"table":"orders"}`),
	}}
	cfg.Timers = []config.TimerConfig{{Name: "heartbeat", Period: "10ms", RepeatCount: 3}}
	return cfg
}

func TestApp_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{counts: make(map[string]int)}

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), rec)
	require.NoError(t, err)
	seedTable(a, "orders", 5)

	require.NoError(t, a.start(context.Background()))
	assert.Eventually(t, func() bool {
		return rec.count("orders") == 5 && rec.count("heartbeat") == 3
	}, 5*time.Second, 10*time.Millisecond)

	status := a.status()
	assert.Len(t, status.SubStatuses, 2)
	assert.True(t, status.IsHealthy(), status.Message)

	require.NoError(t, a.stop(time.Second))
	assert.Equal(t, 5, a.Catalog().Table("orders").Len())
	assert.Empty(t, a.Catalog().Table("orders").Unconsumed(0))
	assert.Empty(t, a.timers.Names())

	_, err = os.Stat(cfg.StreamCache.SpoolDirectory)
	assert.True(t, os.IsNotExist(err))
}

func TestApp_HealthEndpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics = config.MetricsConfig{Enabled: true, Port: 19090, Path: "/metrics"}

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &recorder{counts: make(map[string]int)})
	require.NoError(t, err)
	handler, err := a.server.Handler()
	require.NoError(t, err)

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"component":"streamkit"`, path)
	}
}

func TestApp_UnknownConsumerType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Consumers[0].Type = "kafka"

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &recorder{counts: make(map[string]int)})
	require.NoError(t, err)
	assert.Error(t, a.start(context.Background()))
	assert.Empty(t, a.components)
}

func TestApp_JetStreamWithoutNATS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Consumers[0].Type = "jetstream"
	cfg.Consumers[0].Options = json.RawMessage(`{"stream":"ORDERS"}`)

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &recorder{counts: make(map[string]int)})
	require.NoError(t, err)
	assert.Error(t, a.start(context.Background()))
}

func TestNewNATSClient(t *testing.T) {
	cfg := config.Defaults().NATS
	cfg.URLs = []string{"nats://a:4222", "nats://b:4222"}

	client, err := newNATSClient(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "nats://a:4222,nats://b:4222", client.URL())

	bad := cfg
	bad.Timeout = "soon"
	_, err = newNATSClient(bad, slog.Default())
	assert.Error(t, err)

	bad = cfg
	bad.TLS = security.ClientTLSConfig{Enabled: true, CAFiles: []string{filepath.Join(t.TempDir(), "ca.pem")}}
	_, err = newNATSClient(bad, slog.Default())
	assert.Error(t, err)
}

func TestBodySize(t *testing.T) {
	assert.Equal(t, int64(0), bodySize(nil))
	assert.Equal(t, int64(3), bodySize([]byte("abc")))
	assert.Equal(t, int64(4), bodySize("abcd"))
	assert.Equal(t, int64(5), bodySize(streamcache.NewByteArrayInputStreamCache([]byte("abcde"))))
	assert.Equal(t, int64(-1), bodySize(42))
}
