// Package mediatool wraps the external media binaries (ffmpeg, ffprobe,
// yt-dlp) behind a small toolbox API. All operations are subprocess
// invocations bounded by the caller's context; failures carry the tail of
// stderr so persisted error messages are actionable.
package mediatool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Toolbox runs media operations with the configured binaries.
type Toolbox struct {
	ffmpegPath string
	ytdlpPath  string
	logger     *slog.Logger
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolbox) { t.logger = logger }
}

// New creates a Toolbox.
func New(ffmpegPath, ytdlpPath string, opts ...Option) *Toolbox {
	t := &Toolbox{
		ffmpegPath: ffmpegPath,
		ytdlpPath:  ytdlpPath,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DownloadSource fetches the source video with yt-dlp into destDir and
// returns the downloaded file path. yt-dlp handles both plain file URLs
// and platform URLs (YouTube and friends), so it is the single download
// path for every source.
func (t *Toolbox) DownloadSource(ctx context.Context, sourceURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	outPath := filepath.Join(destDir, "source.mp4")
	args := []string{
		"-f", "bv*[height<=1080]+ba/b[height<=1080]/b",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"-o", outPath,
		sourceURL,
	}

	start := time.Now()
	if err := t.run(ctx, t.ytdlpPath, args...); err != nil {
		return "", fmt.Errorf("downloading source: %w", err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("download produced no file: %w", err)
	}

	t.logger.Info("source downloaded",
		slog.String("path", outPath),
		slog.Duration("duration", time.Since(start)),
	)
	return outPath, nil
}

// ExtractAudio pulls a mono 16kHz mp3 track out of the video, the format
// the transcription API handles best at the smallest size.
func (t *Toolbox) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		audioPath,
	}
	if err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}
	return nil
}

// SplitAudio cuts an audio file into fixed-length segments and returns the
// segment paths in order. Used when a track exceeds the transcription
// upload limit.
func (t *Toolbox) SplitAudio(ctx context.Context, audioPath, destDir string, segment time.Duration) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}

	pattern := filepath.Join(destDir, "chunk-%03d.mp3")
	args := []string{
		"-y", "-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(int(segment.Seconds())),
		"-c", "copy",
		pattern,
	}
	if err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("splitting audio: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(destDir, "chunk-*.mp3"))
	if err != nil {
		return nil, fmt.Errorf("listing audio segments: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("audio split produced no segments")
	}
	return matches, nil
}

// CutClip extracts a time window from the source, reframes it to vertical
// 1080x1920, and re-encodes for short-form delivery.
func (t *Toolbox) CutClip(ctx context.Context, sourcePath, outPath string, startSec, endSec float64, crop CropSpec) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(startSec),
		"-to", formatSeconds(endSec),
		"-i", sourcePath,
		"-vf", crop.Filter(),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		outPath,
	}
	if err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("cutting clip: %w", err)
	}
	return nil
}

// BurnCaptions renders an SRT file onto the clip using the named style.
func (t *Toolbox) BurnCaptions(ctx context.Context, videoPath, outPath, srtPath, style string) error {
	forceStyle, ok := CaptionForceStyle(style)
	if !ok {
		return fmt.Errorf("unknown caption style %q", style)
	}

	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), forceStyle)
	args := []string{
		"-y", "-i", videoPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "copy",
		outPath,
	}
	if err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("burning captions: %w", err)
	}
	return nil
}

// Thumbnail grabs a single frame at the given offset as a JPEG.
func (t *Toolbox) Thumbnail(ctx context.Context, videoPath, outPath string, atSec float64) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(atSec),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		outPath,
	}
	if err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return fmt.Errorf("grabbing thumbnail: %w", err)
	}
	return nil
}

func (t *Toolbox) run(ctx context.Context, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.logger.Debug("running media command",
		slog.String("binary", binary),
		slog.String("args", strings.Join(args, " ")),
	)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s exited: %w: %s", filepath.Base(binary), err, stderrTail(stderr.String(), 6))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// escapeFilterPath escapes characters ffmpeg's filter parser treats
// specially in file paths.
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(p)
}

func stderrTail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "; ")
}
