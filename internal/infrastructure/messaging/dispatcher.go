// Package messaging delivers lifecycle notifications in the background.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darb-academy/lifecycle-worker/internal/domain/notification"
	"github.com/darb-academy/lifecycle-worker/internal/infrastructure/telemetry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// SendFunc delivers one message.
type SendFunc func(ctx context.Context, msg notification.Message) error

// Middleware wraps a SendFunc.
type Middleware func(SendFunc) SendFunc

// Dispatcher is the fire-and-forget notifier used by the jobs.
// Every Notify call runs on its own goroutine: a slow or failing delivery
// never delays the job that requested it, and one failure never affects
// another message.
type Dispatcher struct {
	send    SendFunc
	logger  *slog.Logger
	metrics *telemetry.Metrics
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sent   atomic.Int64
	failed atomic.Int64
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	Sender  notification.Sender
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Timeout bounds a single delivery.
	Timeout time.Duration

	// Middlewares run outermost first, inside recovery and logging.
	Middlewares []Middleware
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(sender notification.Sender) DispatcherConfig {
	return DispatcherConfig{
		Sender:  sender,
		Timeout: 15 * time.Second,
	}
}

// NewDispatcher creates a dispatcher around cfg.Sender.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := cfg.Logger.With("component", "notification_dispatcher")

	send := SendFunc(cfg.Sender.Send)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		send = cfg.Middlewares[i](send)
	}
	send = LoggingMiddleware(logger)(send)
	send = RecoveryMiddleware(logger)(send)

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		send:    send,
		logger:  logger,
		metrics: cfg.Metrics,
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Notify schedules msg for delivery and returns immediately.
func (d *Dispatcher) Notify(msg notification.Message) {
	d.wg.Add(1)
	go d.deliver(msg)
}

func (d *Dispatcher) deliver(msg notification.Message) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	err := d.send(ctx, msg)
	if err != nil {
		d.failed.Add(1)
	} else {
		d.sent.Add(1)
	}
	d.metrics.RecordNotification(ctx, string(msg.Type), err)
}

// Wait blocks until every delivery scheduled so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight deliveries until ctx expires, then cancels them.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("notification dispatcher drain: %w", ctx.Err())
	}
}

// DispatcherStats is a snapshot of delivery counters.
type DispatcherStats struct {
	Sent   int64
	Failed int64
}

// Stats returns delivery counters since start.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{Sent: d.sent.Load(), Failed: d.failed.Load()}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryMiddleware turns a panicking sender into an ordinary failure.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, msg notification.Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("notification sender panic recovered",
						"type", msg.Type,
						"student_id", msg.StudentID,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("sender panic: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs every delivery outcome. Failures are logged and
// otherwise swallowed by the dispatcher.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, msg notification.Message) error {
			start := time.Now()
			err := next(ctx, msg)
			duration := time.Since(start)

			if err != nil {
				logger.Error("notification failed",
					"type", msg.Type,
					"student_id", msg.StudentID,
					"duration", duration,
					"error", err,
				)
			} else {
				logger.Debug("notification sent",
					"type", msg.Type,
					"student_id", msg.StudentID,
					"duration", duration,
				)
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SENDER
// ══════════════════════════════════════════════════════════════════════════════

// LogSender only logs messages. It is used when no broker is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send implements notification.Sender.
func (s *LogSender) Send(_ context.Context, msg notification.Message) error {
	s.logger.Info("notification (no broker configured)",
		"type", msg.Type,
		"student_id", msg.StudentID,
		"title", msg.Title,
	)
	return nil
}
