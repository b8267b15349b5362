package logger

import (
	"strings"
)

// GinLogWriter adapts gin's text output (route registration, recovery) into
// structured entries. Assign it to gin.DefaultWriter / gin.DefaultErrorWriter.
type GinLogWriter struct {
	log *CtxZapLogger
}

// NewGinLogWriter creates a writer logging through log
func NewGinLogWriter(log *CtxZapLogger) *GinLogWriter {
	return &GinLogWriter{log: log}
}

// Write implements io.Writer
func (w *GinLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	switch {
	case strings.Contains(msg, "[Recovery]") || strings.Contains(msg, "panic recovered"):
		w.log.Error(msg)
	case strings.Contains(msg, "[WARNING]"):
		w.log.Warn(msg)
	case strings.Contains(msg, "[GIN-debug]"):
		w.log.base.Debug(msg)
	default:
		w.log.Info(msg)
	}
	return len(p), nil
}
