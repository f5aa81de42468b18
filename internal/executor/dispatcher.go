package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/config"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

// Dispatcher launches pipeline runs as fire-and-forget goroutines. Each run
// gets its own deadline by job kind; on expiry the record is forced into
// the error state by the executor's finalization path. A panicking run is
// recovered and recorded the same way.
type Dispatcher struct {
	exec          *Executor
	logger        *slog.Logger
	renderTimeout time.Duration
	shortsTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(exec *Executor, cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		exec:          exec,
		logger:        logger,
		renderTimeout: cfg.Render.JobTimeout,
		shortsTimeout: cfg.Shorts.JobTimeout,
	}
}

// Dispatch starts a run for an already-claimed record. Returns false when
// the dispatcher is shutting down and no run was started.
func (d *Dispatcher) Dispatch(p *models.Project) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("run panicked",
					slog.String("project_id", p.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				d.exec.FailRun(p, fmt.Sprintf("internal error: %v", r))
			}
		}()

		timeout := d.renderTimeout
		if p.Kind == models.KindShorts {
			timeout = d.shortsTimeout
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// Run finalizes the record itself; the error is already recorded.
		_ = d.exec.Run(ctx, p)
	}()

	return true
}

// Shutdown stops accepting new runs and waits for in-flight runs to finish
// or the context to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to finish: %w", ctx.Err())
	}
}
