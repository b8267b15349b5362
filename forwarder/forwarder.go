// Package forwarder hands admitted platform actions to an ordered external queue.
//
// Every payload passes a dedicated token bucket first. That bucket fails
// closed: when the store cannot be reached the payload is not forwarded,
// because the rate being protected belongs to a third-party account.
// Delivery order per ordering key and duplicate suppression per dedup key are
// the queue's job; this package only derives the two keys.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chrlshc/Huntaze-sub010/breaker"
	"github.com/chrlshc/Huntaze-sub010/errcode"
	"github.com/chrlshc/Huntaze-sub010/limiter"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ModuleCode for forwarder errors: 25xxxx
const ModuleCode = 25

var (
	// ErrQueueSendFailure means the queue refused or lost the message
	ErrQueueSendFailure = errcode.Register(errcode.New(
		ModuleCode, 1, "forwarder", "QUEUE_SEND_FAILURE", "queue send failure",
		http.StatusBadGateway,
	))

	// ErrInvalidPayload rejects a payload without an action
	ErrInvalidPayload = errcode.Register(errcode.New(
		ModuleCode, 2, "forwarder", "FORWARD_PAYLOAD_INVALID", "invalid forward payload",
		http.StatusBadRequest,
	))

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errcode.Register(errcode.New(
		ModuleCode, 3, "forwarder", "FORWARDER_CONFIG_INVALID", "invalid forwarder configuration",
		http.StatusInternalServerError,
	))
)

// Payload is an inbound action addressed to an entity
type Payload struct {
	Action    string    `json:"action"`
	CreatorID string    `json:"creator_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Content is free text; it is forwarded but never part of the dedup key
	Content string `json:"content,omitempty"`

	Data map[string]interface{} `json:"data,omitempty"`
}

// QueueMessage is what the queue receives
type QueueMessage struct {
	Payload     []byte
	OrderingKey string
	DedupKey    string
	Attributes  map[string]string
}

// Receipt describes an accepted message
type Receipt struct {
	// Duplicate is set when the queue suppressed the message inside its dedup window
	Duplicate bool
	Partition int32
	Offset    int64
}

// Queue is the external ordered queue
type Queue interface {
	Submit(ctx context.Context, msg QueueMessage) (Receipt, error)
}

// Disposition of one payload
type Disposition string

const (
	Forwarded Disposition = "forwarded"
	Delayed   Disposition = "delayed"
	Failed    Disposition = "failed"
)

// Outcome of Process. The caller retries Delayed after RetryAfter seconds and
// retries Failed as a whole inbound request; nothing is retried here.
type Outcome struct {
	Disposition Disposition
	RetryAfter  int64

	OrderingKey string
	DedupKey    string
	Receipt     Receipt

	// Err explains a Failed disposition
	Err error
}

// QueueForwarder admits and forwards payloads
type QueueForwarder struct {
	cfg     Config
	bucket  *limiter.TokenBucketLimiter
	queue   Queue
	clock   clockwork.Clock
	logger  *logger.CtxZapLogger
	metrics *Metrics
	pool    *ants.Pool
}

// Option customises a QueueForwarder
type Option func(*forwarderOptions)

type forwarderOptions struct {
	clock   clockwork.Clock
	breaker *breaker.CircuitBreaker
	logger  *logger.CtxZapLogger
	metrics *Metrics
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *forwarderOptions) { o.clock = clock }
}

// WithBreaker routes the admission bucket's store calls through cb
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(o *forwarderOptions) { o.breaker = cb }
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *forwarderOptions) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *forwarderOptions) { o.metrics = m }
}

// New builds a forwarder whose admission bucket lives in s and always fails closed
func New(cfg Config, s store.Store, queue Queue, opts ...Option) (*QueueForwarder, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := forwarderOptions{clock: clockwork.NewRealClock(), logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	limiterOpts := []limiter.Option{
		limiter.WithClock(o.clock),
		limiter.WithLogger(o.logger),
		limiter.WithFailurePolicy(limiter.FailClosed),
	}
	if o.breaker != nil {
		limiterOpts = append(limiterOpts, limiter.WithBreaker(o.breaker))
	}

	pool, err := ants.NewPool(cfg.BatchWorkers)
	if err != nil {
		return nil, err
	}

	return &QueueForwarder{
		cfg:     cfg,
		bucket:  limiter.NewTokenBucketLimiter(s, limiterOpts...),
		queue:   queue,
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		pool:    pool,
	}, nil
}

func (f *QueueForwarder) rateKey(orderingKey string) string {
	if f.cfg.RateKeyMode == RateKeyGlobal {
		return "forwarder:" + f.cfg.RateKeyName
	}
	return "forwarder:" + orderingKey
}

// Process admits p against the forwarder bucket and, when admitted, submits it
// to the queue with its ordering and dedup keys
func (f *QueueForwarder) Process(ctx context.Context, p Payload) Outcome {
	out := f.process(ctx, p)
	f.metrics.recordOutcome(ctx, out.Disposition)
	return out
}

func (f *QueueForwarder) process(ctx context.Context, p Payload) Outcome {
	if p.Action == "" {
		return Outcome{Disposition: Failed, Err: ErrInvalidPayload.WithMsgf("payload has no action")}
	}

	orderingKey := OrderingKey(p, f.cfg.DefaultOrderingKey)
	res, err := f.bucket.Check(ctx, f.rateKey(orderingKey), f.cfg.Capacity, f.cfg.RefillPerSecond)
	if err != nil {
		f.logger.WarnCtx(ctx, "Forward admission could not be evaluated",
			zap.String("action", p.Action),
			zap.String("ordering_key", orderingKey),
			zap.Error(err))
		return Outcome{Disposition: Failed, OrderingKey: orderingKey, Err: err}
	}
	if !res.Allowed {
		return Outcome{Disposition: Delayed, RetryAfter: res.RetryAfterSeconds(), OrderingKey: orderingKey}
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = f.clock.Now()
		p.Timestamp = ts
	}
	dedupKey := DedupKey(p.Action, orderingKey, CoarseTimestamp(ts, f.cfg.CoarseWindow))

	body, err := json.Marshal(p)
	if err != nil {
		return Outcome{Disposition: Failed, OrderingKey: orderingKey, DedupKey: dedupKey,
			Err: ErrInvalidPayload.Wrap(err)}
	}

	msg := QueueMessage{
		Payload:     body,
		OrderingKey: orderingKey,
		DedupKey:    dedupKey,
		Attributes: map[string]string{
			"message_id":        uuid.NewString(),
			"action":            p.Action,
			"remaining_tokens":  strconv.FormatFloat(res.Remaining, 'f', 3, 64),
			"forwarder_version": f.cfg.Version,
		},
	}

	receipt, err := f.queue.Submit(ctx, msg)
	if err != nil {
		f.logger.ErrorCtx(ctx, "Queue submit failed",
			zap.String("action", p.Action),
			zap.String("ordering_key", orderingKey),
			zap.String("dedup_key", dedupKey),
			zap.Error(err))
		if !errors.Is(err, ErrQueueSendFailure) {
			err = ErrQueueSendFailure.Wrap(err)
		}
		return Outcome{Disposition: Failed, OrderingKey: orderingKey, DedupKey: dedupKey, Err: err}
	}

	f.logger.DebugCtx(ctx, "Payload forwarded",
		zap.String("action", p.Action),
		zap.String("ordering_key", orderingKey),
		zap.String("dedup_key", dedupKey),
		zap.Bool("duplicate", receipt.Duplicate))
	return Outcome{Disposition: Forwarded, OrderingKey: orderingKey, DedupKey: dedupKey, Receipt: receipt}
}

// ProcessBatch processes payloads concurrently across ordering keys. Payloads
// sharing an ordering key are processed one at a time in input order.
// Outcomes line up with payloads.
func (f *QueueForwarder) ProcessBatch(ctx context.Context, payloads []Payload) []Outcome {
	outcomes := make([]Outcome, len(payloads))

	groups := make(map[string][]int)
	var order []string
	for i, p := range payloads {
		key := OrderingKey(p, f.cfg.DefaultOrderingKey)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		indexes := groups[key]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			for _, i := range indexes {
				outcomes[i] = f.Process(ctx, payloads[i])
			}
		}
		if err := f.pool.Submit(task); err != nil {
			f.logger.ErrorCtx(ctx, "Batch worker pool rejected task", zap.Error(err))
			for _, i := range indexes {
				outcomes[i] = Outcome{Disposition: Failed, Err: ErrQueueSendFailure.Wrap(err)}
			}
			wg.Done()
		}
	}
	wg.Wait()
	return outcomes
}

// Close releases the batch worker pool
func (f *QueueForwarder) Close() {
	f.pool.Release()
}

// Shutdown implements do.Shutdowner
func (f *QueueForwarder) Shutdown() {
	f.Close()
}
