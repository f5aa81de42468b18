package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/ai"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/mediatool"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/storage"
)

// transcriptionSegment is the chunk length used when a source's audio
// exceeds the transcription upload limit.
const transcriptionSegment = 10 * time.Minute

// runShorts executes the staged multi-clip pipeline: download the source,
// transcribe it, pick the strongest moments, then cut, caption, thumbnail,
// and upload each clip. Individual clip failures do not fail the run; a run
// fails when every clip fails or an earlier stage does.
func (e *Executor) runShorts(ctx context.Context, p *models.Project, scratch string, log *slog.Logger) (string, error) {
	var (
		sourcePath    string
		durationSec   float64
		transcription *ai.Transcription
		moments       []ai.Moment
		outputURL     string
	)

	maxClips := p.Inputs.MaxClips
	if maxClips <= 0 || maxClips > e.cfg.Shorts.MaxClips {
		maxClips = e.cfg.Shorts.MaxClips
	}
	minLen, maxLen := ai.ParseClipLengthRange(p.Inputs.ClipLength)

	captionStyle := p.Inputs.CaptionStyle
	if captionStyle == "" {
		captionStyle = mediatool.CaptionKaraoke
	}

	stages := []stage{
		{name: "downloading", pct: 5, run: func(ctx context.Context) error {
			var err error
			sourcePath, err = e.tools.DownloadSource(ctx, p.Inputs.SourceURL, scratch)
			if err != nil {
				return err
			}

			d, probeErr := e.prober.Duration(ctx, sourcePath)
			if probeErr != nil {
				log.Warn("source probe failed", slog.String("error", probeErr.Error()))
				return nil
			}
			durationSec = d
			if err := e.repo.SetSourceDuration(ctx, p.ID, p.OwnerID, int(math.Round(d))); err != nil {
				log.Warn("recording source duration failed", slog.String("error", err.Error()))
			}
			return nil
		}},
		{name: "transcribing", pct: 20, run: func(ctx context.Context) error {
			var err error
			transcription, err = e.transcribeSource(ctx, sourcePath, scratch, log)
			if err != nil {
				return err
			}

			stored := ai.TruncateTranscript(transcription.Text, e.cfg.Shorts.TranscriptMaxChars)
			if err := e.repo.SetTranscript(ctx, p.ID, p.OwnerID, stored); err != nil {
				log.Warn("storing transcript failed", slog.String("error", err.Error()))
			}
			return nil
		}},
		{name: "analyzing", pct: 40, run: func(ctx context.Context) error {
			duration := durationSec
			if duration == 0 {
				duration = transcription.Duration
			}
			var err error
			moments, err = e.analyzer.FindMoments(ctx, ai.MomentRequest{
				Transcript:     ai.TruncateTranscript(transcription.Text, e.cfg.Shorts.TranscriptMaxChars),
				SourceTitle:    p.Inputs.SourceTitle,
				DurationSec:    duration,
				MaxClips:       maxClips,
				MinClipSeconds: minLen,
				MaxClipSeconds: maxLen,
			})
			return err
		}},
		{name: "clipping", pct: 55, run: func(ctx context.Context) error {
			var err error
			outputURL, err = e.processClips(ctx, p, scratch, sourcePath, moments, transcription.Words, captionStyle, log)
			return err
		}},
	}

	if err := e.runStages(ctx, p, log, stages); err != nil {
		return "", err
	}
	return outputURL, nil
}

// transcribeSource extracts the audio track and transcribes it, splitting
// into segments when the track exceeds the upload limit. Word timestamps
// from later segments are shifted onto the source timeline.
func (e *Executor) transcribeSource(ctx context.Context, sourcePath, scratch string, log *slog.Logger) (*ai.Transcription, error) {
	audioPath := filepath.Join(scratch, "audio.mp3")
	if err := e.tools.ExtractAudio(ctx, sourcePath, audioPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stating extracted audio: %w", err)
	}

	if info.Size() <= ai.TranscriptionUploadLimit {
		return e.analyzer.TranscribeFile(ctx, audioPath)
	}

	log.Info("audio exceeds upload limit, transcribing in segments",
		slog.Int64("size_bytes", info.Size()))

	chunks, err := e.tools.SplitAudio(ctx, audioPath, filepath.Join(scratch, "chunks"), transcriptionSegment)
	if err != nil {
		return nil, err
	}

	combined := &ai.Transcription{}
	var offset float64
	for _, chunk := range chunks {
		part, err := e.analyzer.TranscribeFile(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("transcribing segment %s: %w", filepath.Base(chunk), err)
		}

		if combined.Text != "" {
			combined.Text += " "
		}
		combined.Text += part.Text

		for _, w := range part.Words {
			combined.Words = append(combined.Words, models.WordTiming{
				Word:  w.Word,
				Start: w.Start + offset,
				End:   w.End + offset,
			})
		}

		// Prefer the reported segment duration; fall back to probing.
		chunkDur := part.Duration
		if chunkDur == 0 {
			if d, probeErr := e.prober.Duration(ctx, chunk); probeErr == nil {
				chunkDur = d
			} else {
				chunkDur = transcriptionSegment.Seconds()
			}
		}
		offset += chunkDur
	}
	combined.Duration = offset

	return combined, nil
}

// processClips fans the proposed moments out to workers. Each worker cuts,
// captions, thumbnails, and uploads one clip, then publishes the refreshed
// clip list and a progress checkpoint. A failed clip is marked error and
// its siblings continue.
func (e *Executor) processClips(ctx context.Context, p *models.Project, scratch, sourcePath string, moments []ai.Moment, words []models.WordTiming, captionStyle string, log *slog.Logger) (string, error) {
	clips := make([]models.Clip, len(moments))
	for i, m := range moments {
		clips[i] = models.Clip{
			ID:          fmt.Sprintf("clip-%02d", i+1),
			Index:       i,
			Title:       m.Title,
			Description: m.Description,
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
			Duration:    m.EndTime - m.StartTime,
			HookScore:   m.HookScore,
			Reason:      m.Reason,
			Status:      models.ClipPending,
		}
	}

	var mu sync.Mutex
	completed := 0
	publish := func() {
		snapshot := make([]models.Clip, len(clips))
		copy(snapshot, clips)
		if err := e.repo.SetClips(ctx, p.ID, p.OwnerID, snapshot); err != nil {
			log.Warn("publishing clip statuses failed", slog.String("error", err.Error()))
		}
	}

	mu.Lock()
	publish()
	mu.Unlock()

	crop := mediatool.NewCropSpec(p.Inputs.CropMode, 0)

	var g errgroup.Group
	g.SetLimit(e.cfg.Shorts.ClipConcurrency)
	for i := range clips {
		g.Go(func() error {
			mu.Lock()
			clips[i].Status = models.ClipProcessing
			clip := clips[i]
			publish()
			mu.Unlock()

			videoURL, thumbURL, err := e.processOneClip(ctx, p, scratch, sourcePath, clip, words, captionStyle, crop, log)

			// All writes to the shared slice happen under mu; sibling
			// workers snapshot it in publish.
			mu.Lock()
			if err != nil {
				clips[i].Status = models.ClipError
				log.Warn("clip failed",
					slog.String("clip_id", clips[i].ID),
					slog.String("error", err.Error()),
				)
			} else {
				clips[i].Status = models.ClipDone
				clips[i].VideoURL = videoURL
				clips[i].ThumbnailURL = thumbURL
			}
			completed++
			pct := 55 + (35*completed)/len(clips)
			publish()
			mu.Unlock()

			e.reportProgress(ctx, p, pct, "clipping", log)
			return nil
		})
	}
	g.Wait()

	var firstURL string
	succeeded := 0
	for _, c := range clips {
		if c.Status == models.ClipDone {
			succeeded++
			if firstURL == "" {
				firstURL = c.VideoURL
			}
		}
	}
	if succeeded == 0 {
		return "", fmt.Errorf("all %d clips failed", len(clips))
	}

	log.Info("clips processed",
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(clips)-succeeded),
	)
	return firstURL, nil
}

// processOneClip cuts one clip window from the source and uploads the
// finished clip (and thumbnail) to storage. It works on a private copy of
// the clip and returns the uploaded URLs; the caller merges them back into
// the shared list under its lock.
func (e *Executor) processOneClip(ctx context.Context, p *models.Project, scratch, sourcePath string, clip models.Clip, words []models.WordTiming, captionStyle string, crop mediatool.CropSpec, log *slog.Logger) (videoURL, thumbURL string, err error) {
	clipDir := filepath.Join(scratch, "clips")
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating clip directory: %w", err)
	}

	cutPath := filepath.Join(clipDir, clip.ID+"-cut.mp4")
	if err := e.tools.CutClip(ctx, sourcePath, cutPath, clip.StartTime, clip.EndTime, crop); err != nil {
		return "", "", err
	}

	finalPath := cutPath
	if captionStyle != mediatool.CaptionNone {
		cues := mediatool.BuildCues(words, captionStyle, clip.StartTime, clip.EndTime)
		if len(cues) > 0 {
			srtPath := filepath.Join(clipDir, clip.ID+".srt")
			if err := mediatool.WriteSRT(cues, srtPath); err != nil {
				return "", "", err
			}
			captionedPath := filepath.Join(clipDir, clip.ID+".mp4")
			if err := e.tools.BurnCaptions(ctx, cutPath, captionedPath, srtPath, captionStyle); err != nil {
				return "", "", err
			}
			finalPath = captionedPath
		}
	}

	videoKey := storage.JoinKey(p.ArtifactPrefix(), clip.ID+".mp4")
	videoURL, err = e.store.Upload(ctx, e.cfg.Storage.ShortsBucket, videoKey, finalPath, "video/mp4")
	if err != nil {
		return "", "", err
	}

	if p.Inputs.ThumbnailsEnabled() {
		thumbPath := filepath.Join(clipDir, clip.ID+".jpg")
		if err := e.tools.Thumbnail(ctx, finalPath, thumbPath, 0.5); err != nil {
			// A missing thumbnail does not spoil the clip.
			log.Warn("thumbnail failed",
				slog.String("clip_id", clip.ID),
				slog.String("error", err.Error()),
			)
			return videoURL, "", nil
		}
		thumbKey := storage.JoinKey(p.ArtifactPrefix(), clip.ID+".jpg")
		thumbURL, err = e.store.Upload(ctx, e.cfg.Storage.ShortsBucket, thumbKey, thumbPath, "image/jpeg")
		if err != nil {
			log.Warn("thumbnail upload failed",
				slog.String("clip_id", clip.ID),
				slog.String("error", err.Error()),
			)
			return videoURL, "", nil
		}
	}

	return videoURL, thumbURL, nil
}
