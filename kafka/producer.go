package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"go.uber.org/zap"
)

// Message is one record bound for a topic
type Message struct {
	Topic string

	// Key selects the partition; equal keys land on the same partition
	Key []byte

	Value   []byte
	Headers map[string]string

	// Timestamp defaults to the broker's clock when zero
	Timestamp time.Time
}

// ProducerResult send result
type ProducerResult struct {
	Topic     string
	Partition int32
	Offset    int64
}

// SyncProducer sends one message at a time and waits for the broker ack
type SyncProducer struct {
	producer sarama.SyncProducer
	metrics  *Metrics
	logger   *logger.CtxZapLogger

	mu     sync.RWMutex
	closed bool
}

// NewSyncProducer dials brokers with saramaCfg
func NewSyncProducer(brokers []string, saramaCfg *sarama.Config, log *logger.CtxZapLogger, metrics *Metrics) (*SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, saramaCfg)
	if err != nil {
		return nil, ErrProducerUnavailable.Wrap(err)
	}
	return WrapSyncProducer(producer, log, metrics), nil
}

// WrapSyncProducer adapts an existing sarama producer, such as sarama/mocks
func WrapSyncProducer(producer sarama.SyncProducer, log *logger.CtxZapLogger, metrics *Metrics) *SyncProducer {
	if log == nil {
		log = logger.NewNop()
	}
	return &SyncProducer{producer: producer, metrics: metrics, logger: log}
}

// Send blocks until the broker acknowledges msg. ctx is honoured only
// before the send starts; sarama has no cancellable send.
func (p *SyncProducer) Send(ctx context.Context, msg *Message) (*ProducerResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProducerClosed
	}
	if msg == nil || msg.Topic == "" {
		return nil, ErrSendFailed.WithMsgf("message must name a topic")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saramaMsg := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if len(msg.Key) > 0 {
		saramaMsg.Key = sarama.ByteEncoder(msg.Key)
	}
	if !msg.Timestamp.IsZero() {
		saramaMsg.Timestamp = msg.Timestamp
	}
	if len(msg.Headers) > 0 {
		headers := make([]sarama.RecordHeader, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
		}
		saramaMsg.Headers = headers
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(saramaMsg)
	p.metrics.recordProduce(ctx, msg.Topic, time.Since(start), err)
	if err != nil {
		p.logger.ErrorCtx(ctx, "Send message failed", zap.String("topic", msg.Topic), zap.Error(err))
		return nil, ErrSendFailed.Wrap(err)
	}

	p.logger.DebugCtx(ctx, "Message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return &ProducerResult{Topic: msg.Topic, Partition: partition, Offset: offset}, nil
}

// Close is idempotent
func (p *SyncProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
