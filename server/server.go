// Package server exposes the admission gate and the queue forwarder over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/chrlshc/Huntaze-sub010/httpx"
	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/chrlshc/Huntaze-sub010/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	PathHealth  = "/healthz"
	PathLive    = "/livez"
	PathForward = "/v1/forward"
	PathCheck   = "/v1/admission/check"
)

// Server is the HTTP front of an Application
type Server struct {
	app        *di.Application
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.CtxZapLogger
}

// New builds the engine for a started Application
func New(app *di.Application) (*Server, error) {
	cfg := app.Config()
	log := app.Logger()
	httpLog := logger.NewGinLogWriter(log)
	gin.DefaultWriter = httpLog
	gin.DefaultErrorWriter = httpLog
	gin.SetMode(cfg.HTTP.Mode)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	skip := append([]string{PathHealth, PathLive}, cfg.Admission.SkipPaths...)
	engine.Use(
		otelgin.Middleware(cfg.App.Name),
		middleware.TraceID(),
		middleware.Recovery(log),
		middleware.RequestLog(log, PathHealth, PathLive),
		app.HTTPMetrics().Handler(),
	)

	admissionCfg := middleware.AdmissionConfig{
		Gate:      app.Gate(),
		KeyFunc:   middleware.KeyByIP,
		SkipPaths: skip,
		Logger:    log,
	}
	if cfg.Admission.KeyHeader != "" {
		admissionCfg.KeyFunc = middleware.KeyByHeader(cfg.Admission.KeyHeader)
	}
	if cfg.Admission.TierHeader != "" {
		admissionCfg.TierFunc = middleware.TierFromHeader(cfg.Admission.TierHeader)
	}
	if v, err := app.Verifier(); err == nil {
		engine.Use(middleware.IdentifyCaller(v, log))
		admissionCfg.KeyFunc = middleware.KeyByUser(middleware.UserIDKey)
		admissionCfg.TierFunc = middleware.TierFromContext(middleware.TierKey)
	} else if !errors.Is(err, di.ErrAuthDisabled) {
		return nil, err
	}
	engine.Use(middleware.AdmissionWithConfig(admissionCfg))

	s := &Server{app: app, engine: engine, logger: log}
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	engine.NoRoute(httpx.NoRouteHandler())

	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return s, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is done, then drains in-flight requests within the
// configured shutdown timeout
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.app.Config().HTTP.ShutdownTimeout)
	defer cancel()
	s.logger.InfoCtx(shutdownCtx, "HTTP server draining")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
