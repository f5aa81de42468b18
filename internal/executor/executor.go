// Package executor runs pipeline jobs against project records. A run claims
// its record with a conditional write, walks an ordered list of stages with
// progress checkpoints, and always leaves the record in a terminal state:
// done with an output URL, or error with a persisted failure message.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/ai"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/config"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/engine"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/mediatool"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/storage"
)

// maxErrorMessageLen bounds the persisted failure message.
const maxErrorMessageLen = 2000

// Prober measures media durations.
type Prober interface {
	Duration(ctx context.Context, input string) (float64, error)
}

// MediaTools is the subprocess toolbox the shorts pipeline cuts clips with.
type MediaTools interface {
	DownloadSource(ctx context.Context, sourceURL, destDir string) (string, error)
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	SplitAudio(ctx context.Context, audioPath, destDir string, segment time.Duration) ([]string, error)
	CutClip(ctx context.Context, sourcePath, outPath string, startSec, endSec float64, crop mediatool.CropSpec) error
	BurnCaptions(ctx context.Context, videoPath, outPath, srtPath, style string) error
	Thumbnail(ctx context.Context, videoPath, outPath string, atSec float64) error
}

// Analyzer provides transcription and clip selection.
type Analyzer interface {
	TranscribeFile(ctx context.Context, audioPath string) (*ai.Transcription, error)
	FindMoments(ctx context.Context, req ai.MomentRequest) ([]ai.Moment, error)
}

// Downloader fetches remote files to local paths.
type Downloader interface {
	DownloadFile(ctx context.Context, url, destPath string) (int64, error)
}

// Deps are the collaborators an Executor drives.
type Deps struct {
	Repo       repository.ProjectRepository
	Engine     engine.Engine
	Bundles    *engine.BundleCache
	Prober     Prober
	Tools      MediaTools
	Analyzer   Analyzer
	Store      storage.Provider
	Downloader Downloader
	Config     *config.Config
	Logger     *slog.Logger
}

// Executor executes pipeline runs.
type Executor struct {
	repo       repository.ProjectRepository
	engine     engine.Engine
	bundles    *engine.BundleCache
	prober     Prober
	tools      MediaTools
	analyzer   Analyzer
	store      storage.Provider
	downloader Downloader
	cfg        *config.Config
	logger     *slog.Logger
}

// New creates an Executor.
func New(deps Deps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		repo:       deps.Repo,
		engine:     deps.Engine,
		bundles:    deps.Bundles,
		prober:     deps.Prober,
		tools:      deps.Tools,
		analyzer:   deps.Analyzer,
		store:      deps.Store,
		downloader: deps.Downloader,
		cfg:        deps.Config,
		logger:     logger,
	}
}

// Claim atomically takes ownership of a record for a new run. Returns
// (nil, nil) when the record does not exist and
// repository.ErrAlreadyProcessing when a run already owns it.
func (e *Executor) Claim(ctx context.Context, id models.ULID) (*models.Project, error) {
	return e.repo.ClaimForProcessing(ctx, id)
}

// Run executes the pipeline for an already-claimed record and finalizes it.
// Whatever happens inside the pipeline, the record ends in done or error;
// finalization writes use a context detached from the run deadline so an
// expired run can still be marked.
func (e *Executor) Run(ctx context.Context, p *models.Project) error {
	log := e.logger.With(
		slog.String("project_id", p.ID.String()),
		slog.String("kind", string(p.Kind)),
		slog.Int("attempt", p.Attempt),
	)

	scratch := e.scratchDir(p)
	defer os.RemoveAll(scratch)

	start := time.Now()
	log.Info("run started")

	// The run owns the scratch directory; stages assume it exists.
	var outputURL string
	runErr := os.MkdirAll(scratch, 0o755)
	if runErr != nil {
		runErr = fmt.Errorf("creating scratch directory: %w", runErr)
	} else {
		switch p.Kind {
		case models.KindRender:
			outputURL, runErr = e.runRender(ctx, p, scratch, log)
		case models.KindShorts:
			outputURL, runErr = e.runShorts(ctx, p, scratch, log)
		default:
			runErr = fmt.Errorf("unknown project kind %q", p.Kind)
		}
	}

	final := context.WithoutCancel(ctx)

	if runErr != nil {
		log.Error("run failed",
			slog.String("error", runErr.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		if err := e.repo.SetError(final, p.ID, p.OwnerID, truncateMessage(runErr.Error())); err != nil {
			log.Error("recording run failure", slog.String("error", err.Error()))
		}
		return runErr
	}

	if err := e.repo.SetDone(final, p.ID, p.OwnerID, outputURL); err != nil {
		log.Error("recording run completion", slog.String("error", err.Error()))
		return err
	}

	log.Info("run completed",
		slog.String("output_url", outputURL),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// FailRun marks a record as failed outside the normal pipeline path, used
// by the dispatcher's panic handler.
func (e *Executor) FailRun(p *models.Project, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.repo.SetError(ctx, p.ID, p.OwnerID, truncateMessage(message)); err != nil {
		e.logger.Error("recording run failure",
			slog.String("project_id", p.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) scratchDir(p *models.Project) string {
	root := e.cfg.Storage.ScratchDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "autovideo")
	}
	return filepath.Join(root, fmt.Sprintf("%s-attempt-%d", p.ID.String(), p.Attempt))
}

func truncateMessage(msg string) string {
	if len(msg) > maxErrorMessageLen {
		return msg[:maxErrorMessageLen]
	}
	return msg
}
