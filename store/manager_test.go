package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled needs nothing", Config{}, false},
		{"enabled standalone", Config{Enabled: true, Mode: "standalone", Addrs: []string{"127.0.0.1:6379"}}, false},
		{"enabled without addrs", Config{Enabled: true, Mode: "standalone"}, true},
		{"bad mode", Config{Enabled: true, Mode: "sentinel", Addrs: []string{"a:1"}}, true},
		{"bad db", Config{Enabled: true, Mode: "standalone", Addrs: []string{"a:1"}, DB: 16}, true},
		{"empty addr", Config{Enabled: true, Mode: "cluster", Addrs: []string{""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "standalone", cfg.Mode)
	assert.Equal(t, "admission:", cfg.KeyPrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.HealthInterval)
}

func TestNewManager_Disabled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m, err := NewManager(context.Background(), Config{Enabled: false}, logger.NewCtxZapLogger(zap.New(core), "store"))
	require.NoError(t, err)

	assert.False(t, m.Store().Available())
	assert.IsType(t, &UnavailableStore{}, m.Store())
	assert.Equal(t, 1, logs.FilterMessageSnippet("disabled").Len())
	assert.NoError(t, m.Close())
}

func TestNewManager_Live(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewManager(context.Background(), Config{
		Enabled:   true,
		Addrs:     []string{mr.Addr()},
		KeyPrefix: "live:",
	}, logger.NewNop())
	require.NoError(t, err)
	defer m.Close()

	s := m.Store()
	require.True(t, s.Available())
	ok, err := s.SetNX(context.Background(), "k", "v", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("live:k"))
	assert.Equal(t, "live:", m.Config().KeyPrefix)
}

func TestNewManager_UnreachableAtStart(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := Config{Enabled: true, Addrs: []string{addr}, DialTimeout: 100 * time.Millisecond}

	m, err := NewManager(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err, "live client kept without RequireOnStart")
	assert.True(t, m.Store().Available())
	_ = m.Close()

	cfg.RequireOnStart = true
	cfg.StartupAttempts = 2
	_, err = NewManager(context.Background(), cfg, logger.NewNop())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestNewManager_InvalidConfig(t *testing.T) {
	_, err := NewManager(context.Background(), Config{Enabled: true}, logger.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestNewManager_Metrics(t *testing.T) {
	mr := miniredis.RunT(t)
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	metrics := NewMetrics()
	require.NoError(t, metrics.RegisterMetrics(provider.Meter("test")))
	require.NoError(t, metrics.RegisterMetrics(provider.Meter("test")))
	assert.Equal(t, "store", metrics.MetricsName())

	m, err := NewManager(context.Background(), Config{Enabled: true, Addrs: []string{mr.Addr()}},
		logger.NewNop(), WithMetrics(metrics))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Store().Eval(context.Background(), incrScript, []string{"c"}, 1000)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["store_commands_total"])
	assert.True(t, names["store_command_duration_seconds"])
}

func TestHealthChecker(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewHealthChecker(NewUnavailableStore("off")).Check(ctx))
	assert.Error(t, NewHealthChecker(nil).Check(ctx))

	s, mr := newTestRedisStore(t, "")
	hc := NewHealthChecker(s)
	assert.Equal(t, "store", hc.Name())
	assert.NoError(t, hc.Check(ctx))

	mr.Close()
	assert.Error(t, hc.Check(ctx))
}
