package breaker

import (
	"context"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"go.uber.org/zap"
)

// LogListener writes rejections and fallbacks to log. State changes are
// already logged by the breaker itself.
type LogListener struct {
	logger *logger.CtxZapLogger
}

func NewLogListener(log *logger.CtxZapLogger) *LogListener {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogListener{logger: log}
}

// Subscribe attaches the listener to bus for rejections and fallbacks
func (l *LogListener) Subscribe(bus EventBus) SubscriptionID {
	return bus.Subscribe(l, EventCallRejected, EventFallback)
}

func (l *LogListener) OnEvent(event Event) {
	switch e := event.(type) {
	case *RejectedEvent:
		l.logger.DebugCtx(context.Background(), "Circuit breaker rejected call",
			zap.String("breaker", e.Breaker()),
			zap.String("state", e.State.String()))
	case *FallbackEvent:
		fields := []zap.Field{zap.String("breaker", e.Breaker()), zap.Error(e.Cause)}
		if e.Err != nil {
			fields = append(fields, zap.NamedError("fallback_error", e.Err))
		}
		l.logger.Warn("Circuit breaker fallback used", fields...)
	}
}
