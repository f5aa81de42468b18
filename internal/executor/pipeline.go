package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

// stage is one step of a pipeline run. pct is the progress checkpoint
// written when the stage starts; checkpoints only ever move forward because
// the store rejects regressions.
type stage struct {
	name string
	pct  int
	run  func(ctx context.Context) error
}

// runStages walks stages in order. The first failing stage aborts the run;
// its error is what ends up on the record.
func (e *Executor) runStages(ctx context.Context, p *models.Project, log *slog.Logger, stages []stage) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run aborted before %s: %w", s.name, err)
		}

		e.reportProgress(ctx, p, s.pct, s.name, log)

		start := time.Now()
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		log.Debug("stage completed",
			slog.String("stage", s.name),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return nil
}

// reportProgress writes a progress checkpoint. Progress is advisory, so
// write failures are logged and swallowed rather than failing the run.
func (e *Executor) reportProgress(ctx context.Context, p *models.Project, pct int, stageName string, log *slog.Logger) {
	if err := e.repo.SetProgress(ctx, p.ID, p.OwnerID, pct, stageName); err != nil {
		log.Warn("progress update failed",
			slog.String("stage", stageName),
			slog.Int("pct", pct),
			slog.String("error", err.Error()),
		)
	}
}
