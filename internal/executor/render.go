package executor

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"path"
	"path/filepath"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/engine"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/storage"
)

// runRender executes the single-artifact composition pipeline:
// probe narration, prepare the bundle, select the composition, render,
// upload. Returns the public output URL.
func (e *Executor) runRender(ctx context.Context, p *models.Project, scratch string, log *slog.Logger) (string, error) {
	var (
		bundlePath  string
		comp        *engine.Composition
		durationSec float64
		outputURL   string
	)

	localOut := filepath.Join(scratch, "final.mp4")

	compositionID := p.Inputs.CompositionID
	if compositionID == "" {
		compositionID = e.cfg.Render.DefaultComposition
	}

	stages := []stage{
		{name: "probing", pct: 5, run: func(ctx context.Context) error {
			// The probe informs composition duration; the render can
			// proceed without it, so failures here only log.
			if p.Inputs.AudioURL == "" {
				return nil
			}

			audioPath := filepath.Join(scratch, "narration"+audioExt(p.Inputs.AudioURL))
			dctx, cancel := context.WithTimeout(ctx, e.cfg.Render.DownloadTimeout)
			defer cancel()
			if _, err := e.downloader.DownloadFile(dctx, p.Inputs.AudioURL, audioPath); err != nil {
				log.Warn("narration download failed, rendering without probed duration",
					slog.String("error", err.Error()))
				return nil
			}

			d, err := e.prober.Duration(ctx, audioPath)
			if err != nil {
				log.Warn("narration probe failed, rendering without probed duration",
					slog.String("error", err.Error()))
				return nil
			}

			durationSec = d
			if err := e.repo.SetSourceDuration(ctx, p.ID, p.OwnerID, int(math.Round(d))); err != nil {
				log.Warn("recording probed duration failed", slog.String("error", err.Error()))
			}
			return nil
		}},
		{name: "preparing", pct: 15, run: func(ctx context.Context) error {
			var err error
			bundlePath, err = e.bundles.Get(ctx)
			return err
		}},
		{name: "selecting", pct: 25, run: func(ctx context.Context) error {
			comps, err := e.engine.ListCompositions(ctx, bundlePath, e.renderProps(p, durationSec))
			if err != nil {
				return err
			}
			comp, err = engine.SelectComposition(comps, compositionID)
			return err
		}},
		{name: "rendering", pct: 40, run: func(ctx context.Context) error {
			return e.engine.Render(ctx, engine.RenderRequest{
				BundlePath:    bundlePath,
				CompositionID: comp.ID,
				Props:         e.renderProps(p, durationSec),
				OutputPath:    localOut,
			})
		}},
		{name: "uploading", pct: 85, run: func(ctx context.Context) error {
			key := storage.JoinKey(p.ArtifactPrefix(), "final.mp4")
			uploaded, err := e.store.Upload(ctx, e.cfg.Storage.Bucket, key, localOut, "video/mp4")
			if err != nil {
				return err
			}
			outputURL = uploaded
			return nil
		}},
	}

	if err := e.runStages(ctx, p, log, stages); err != nil {
		return "", err
	}
	return outputURL, nil
}

// renderProps builds the composition input payload from the record's
// input snapshot.
func (e *Executor) renderProps(p *models.Project, durationSec float64) engine.RenderProps {
	props := engine.RenderProps{
		"script":   p.Inputs.Script,
		"audioUrl": p.Inputs.AudioURL,
	}
	if len(p.Inputs.WordTimings) > 0 {
		props["wordTimings"] = p.Inputs.WordTimings
	}
	if len(p.Inputs.Scenes) > 0 {
		props["scenes"] = p.Inputs.Scenes
	}
	if durationSec > 0 {
		props["durationInSeconds"] = durationSec
	}
	return props
}

// audioExt guesses a file extension from the audio URL path.
func audioExt(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil {
		return ".mp3"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".mp3"
}
