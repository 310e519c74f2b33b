package rotation

import (
	"context"
	"log/slog"
	"time"
)

// Runner invokes the scanner on a fixed interval until the context is
// cancelled. One scan failure does not stop the loop; the next tick retries
// from scratch.
type Runner struct {
	scanner  *Scanner
	interval time.Duration
	logger   *slog.Logger
}

func NewRunner(scanner *Scanner, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{scanner: scanner, interval: interval, logger: logger}
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("rotation scanner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			// Cancellation is the normal stop signal, not a failure.
			r.logger.Info("rotation scanner stopped")
			return nil
		case <-ticker.C:
			if err := r.scanner.RunScan(ctx); err != nil {
				r.logger.Error("rotation scan failed", "error", err)
			}
		}
	}
}
