package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/retry"
	"github.com/chrlshc/Huntaze-sub010/store"
	"go.uber.org/zap"
)

// Manager owns the producer and the ordered queue built on it
type Manager struct {
	config       Config
	saramaConfig *sarama.Config
	logger       *logger.CtxZapLogger
	metrics      *Metrics
	dedup        store.Store

	injected sarama.SyncProducer
	producer *SyncProducer
	queue    *OrderedQueue

	mu     sync.RWMutex
	closed bool
}

// ManagerOption customises NewManager
type ManagerOption func(*Manager)

// WithSaramaProducer skips dialing and uses p, e.g. a sarama/mocks producer
func WithSaramaProducer(p sarama.SyncProducer) ManagerOption {
	return func(m *Manager) { m.injected = p }
}

func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithDedup claims dedup keys in s
func WithDedup(s store.Store) ManagerOption {
	return func(m *Manager) { m.dedup = s }
}

func NewManager(cfg Config, log *logger.CtxZapLogger, opts ...ManagerOption) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	saramaCfg, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}

	m := &Manager{config: cfg, saramaConfig: saramaCfg, logger: log}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// buildSaramaConfig keeps per-key order: keys hash to one partition and a
// single in-flight request per broker stops retries from reordering
func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("parse kafka version failed: %w", err)
	}
	saramaCfg.Version = version
	saramaCfg.ClientID = cfg.ClientID

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner
	saramaCfg.Net.MaxOpenRequests = 1

	switch cfg.Producer.RequiredAcks {
	case 0:
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case 1:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	}

	saramaCfg.Producer.Timeout = cfg.Producer.Timeout
	saramaCfg.Producer.Retry.Max = cfg.Producer.RetryMax
	saramaCfg.Producer.Retry.Backoff = cfg.Producer.RetryBackoff
	saramaCfg.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaCfg.Producer.Idempotent = cfg.Producer.Idempotent

	switch cfg.Producer.Compression {
	case "gzip":
		saramaCfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaCfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaCfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaCfg.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaCfg.Producer.Compression = sarama.CompressionNone
	}

	if cfg.SASL != nil && cfg.SASL.Enabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASL.Username
		saramaCfg.Net.SASL.Password = cfg.SASL.Password

		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return newSCRAMClient(SHA256) }
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return newSCRAMClient(SHA512) }
		default:
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = tlsCfg
	}

	if err := saramaCfg.Validate(); err != nil {
		return nil, err
	}
	return saramaCfg, nil
}

func buildTLSConfig(c *TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify} //nolint:gosec // opt-in
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate failed: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file failed: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %s has no certificates", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// Connect creates the producer and the queue
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrProducerClosed
	}
	if m.producer != nil {
		return nil
	}

	if m.injected != nil {
		m.producer = WrapSyncProducer(m.injected, m.logger, m.metrics)
	} else {
		err := retry.Do(ctx, func(context.Context) error {
			producer, err := NewSyncProducer(m.config.Brokers, m.saramaConfig, m.logger, m.metrics)
			if err != nil {
				return err
			}
			m.producer = producer
			return nil
		},
			retry.MaxAttempts(m.config.ConnectAttempts),
			retry.WithBackoff(retry.Exponential(500*time.Millisecond)),
			retry.OnRetry(func(attempt int, err error, wait time.Duration) {
				m.logger.WarnCtx(ctx, "Kafka producer dial failed, retrying",
					zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			}),
		)
		if err != nil {
			return err
		}
	}

	opts := []QueueOption{WithQueueLogger(m.logger), WithQueueMetrics(m.metrics)}
	if m.dedup != nil {
		opts = append(opts, WithDedupStore(m.dedup, m.config.DedupWindow))
	}
	m.queue = NewOrderedQueue(m.producer, m.config.Topic, opts...)

	m.logger.InfoCtx(ctx, "Kafka queue connected",
		zap.Strings("brokers", m.config.Brokers),
		zap.String("topic", m.config.Topic))
	return nil
}

// Queue returns nil before Connect
func (m *Manager) Queue() *OrderedQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue
}

// Ping refreshes topic metadata through a short-lived client
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	closed, injected := m.closed, m.injected != nil
	m.mu.RUnlock()
	if closed {
		return ErrProducerClosed
	}
	if injected {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		client, err := sarama.NewClient(m.config.Brokers, m.saramaConfig)
		if err != nil {
			done <- fmt.Errorf("create client failed: %w", err)
			return
		}
		defer client.Close()
		done <- client.RefreshMetadata(m.config.Topic)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (m *Manager) Config() Config {
	return m.config
}

// Close manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			m.logger.Error("Close producer failed", zap.Error(err))
			return err
		}
	}
	m.logger.Info("Kafka queue closed")
	return nil
}

// Shutdown implements do.Shutdowner
func (m *Manager) Shutdown() error {
	return m.Close()
}
