// Package kafka is the ordered external queue behind the forwarder.
//
// Messages are keyed by ordering key, so the hash partitioner keeps every
// entity on one partition and the producer keeps one request in flight per
// broker. Duplicate suppression runs before the send: the dedup key is claimed
// in the shared store for DedupWindow and released again if the send fails.
package kafka

import (
	"context"
	"net/http"
	"time"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/forwarder"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/store"
	"go.uber.org/zap"
)

// ModuleCode for kafka errors: 26xxxx
const ModuleCode = 26

var (
	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errcode.Register(errcode.New(
		ModuleCode, 1, "kafka", "KAFKA_CONFIG_INVALID", "invalid kafka configuration",
		http.StatusInternalServerError,
	))

	// ErrProducerUnavailable means the producer could not be created
	ErrProducerUnavailable = errcode.Register(errcode.New(
		ModuleCode, 2, "kafka", "KAFKA_PRODUCER_UNAVAILABLE", "kafka producer unavailable",
		http.StatusServiceUnavailable,
	))

	// ErrProducerClosed is returned after Close
	ErrProducerClosed = errcode.Register(errcode.New(
		ModuleCode, 3, "kafka", "KAFKA_PRODUCER_CLOSED", "kafka producer closed",
		http.StatusServiceUnavailable,
	))

	// ErrSendFailed means the broker did not acknowledge the message
	ErrSendFailed = errcode.Register(errcode.New(
		ModuleCode, 4, "kafka", "KAFKA_SEND_FAILED", "kafka send failed",
		http.StatusBadGateway,
	))
)

const (
	HeaderDedupKey    = "dedup_key"
	HeaderOrderingKey = "ordering_key"
)

// Sender is the part of SyncProducer the queue needs
type Sender interface {
	Send(ctx context.Context, msg *Message) (*ProducerResult, error)
}

// OrderedQueue implements forwarder.Queue on a Kafka topic
type OrderedQueue struct {
	sender  Sender
	topic   string
	dedup   store.Store
	window  time.Duration
	metrics *Metrics
	logger  *logger.CtxZapLogger
}

var _ forwarder.Queue = (*OrderedQueue)(nil)

// QueueOption customises an OrderedQueue
type QueueOption func(*OrderedQueue)

// WithDedupStore claims dedup keys in s for window
func WithDedupStore(s store.Store, window time.Duration) QueueOption {
	return func(q *OrderedQueue) {
		q.dedup = s
		q.window = window
	}
}

func WithQueueLogger(l *logger.CtxZapLogger) QueueOption {
	return func(q *OrderedQueue) { q.logger = l }
}

func WithQueueMetrics(m *Metrics) QueueOption {
	return func(q *OrderedQueue) { q.metrics = m }
}

func NewOrderedQueue(sender Sender, topic string, opts ...QueueOption) *OrderedQueue {
	q := &OrderedQueue{sender: sender, topic: topic, logger: logger.NewNop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func dedupStoreKey(key string) string {
	return "dedup:" + key
}

// Submit claims the dedup key, then sends. A claimed key reports Duplicate
// without sending. When the dedup store itself fails the message is sent
// anyway; the consumer sees at-least-once delivery in that case.
func (q *OrderedQueue) Submit(ctx context.Context, msg forwarder.QueueMessage) (forwarder.Receipt, error) {
	claimed := false
	if q.dedup != nil && q.dedup.Available() && msg.DedupKey != "" {
		ok, err := q.dedup.SetNX(ctx, dedupStoreKey(msg.DedupKey), msg.Attributes["message_id"], q.window)
		switch {
		case err != nil:
			q.logger.WarnCtx(ctx, "Dedup claim failed, sending without suppression",
				zap.String("dedup_key", msg.DedupKey), zap.Error(err))
		case !ok:
			q.metrics.recordDuplicate(ctx, q.topic)
			q.logger.InfoCtx(ctx, "Duplicate suppressed",
				zap.String("dedup_key", msg.DedupKey),
				zap.String("ordering_key", msg.OrderingKey))
			return forwarder.Receipt{Duplicate: true}, nil
		default:
			claimed = true
		}
	}

	headers := make(map[string]string, len(msg.Attributes)+2)
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	headers[HeaderDedupKey] = msg.DedupKey
	headers[HeaderOrderingKey] = msg.OrderingKey

	res, err := q.sender.Send(ctx, &Message{
		Topic:   q.topic,
		Key:     []byte(msg.OrderingKey),
		Value:   msg.Payload,
		Headers: headers,
	})
	if err != nil {
		if claimed {
			// context.Background so a cancelled request still frees the key
			if delErr := q.dedup.Del(context.Background(), dedupStoreKey(msg.DedupKey)); delErr != nil {
				q.logger.WarnCtx(ctx, "Dedup release failed",
					zap.String("dedup_key", msg.DedupKey), zap.Error(delErr))
			}
		}
		return forwarder.Receipt{}, forwarder.ErrQueueSendFailure.Wrap(err)
	}
	return forwarder.Receipt{Partition: res.Partition, Offset: res.Offset}, nil
}
