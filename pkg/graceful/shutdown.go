package graceful

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownHandler manages graceful shutdown of services
type ShutdownHandler struct {
	logger   *zap.Logger
	services []namedService
	timeout  time.Duration
}

// Shutdownable is an interface for services that can be gracefully shut down
type Shutdownable interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function to Shutdownable
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

type namedService struct {
	name    string
	service Shutdownable
}

// NewShutdownHandler creates a new shutdown handler
func NewShutdownHandler(logger *zap.Logger, timeout time.Duration) *ShutdownHandler {
	return &ShutdownHandler{
		logger:  logger,
		timeout: timeout,
	}
}

// Register registers a service for graceful shutdown. Services stop in
// reverse registration order.
func (h *ShutdownHandler) Register(name string, service Shutdownable) {
	h.services = append(h.services, namedService{name: name, service: service})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation, then
// shuts down all services
func (h *ShutdownHandler) WaitForShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	h.logger.Info("Shutdown signal received, starting graceful shutdown...")
	return h.Shutdown()
}

// Shutdown stops all registered services within the handler's timeout
func (h *ShutdownHandler) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for i := len(h.services) - 1; i >= 0; i-- {
		s := h.services[i]
		if err := s.service.Shutdown(ctx); err != nil {
			h.logger.Error("Service shutdown error", zap.String("service", s.name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		h.logger.Info("Service stopped", zap.String("service", s.name))
	}

	h.logger.Info("Graceful shutdown completed")
	return errors.Join(errs...)
}
