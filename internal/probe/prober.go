// Package probe inspects media inputs with ffprobe. The render pipeline
// uses it to measure narration audio before rendering; the shorts pipeline
// uses it to measure the downloaded source video. Probe failures are
// reported to the caller but pipelines treat them as advisory.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result contains the parsed ffprobe output.
type Result struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// Format contains container format information.
type Format struct {
	Filename   string            `json:"filename"`
	NumStreams int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// Stream contains a single stream's information.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Duration   string `json:"duration,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

// DurationSeconds returns the container duration in seconds, 0 if unknown.
func (r *Result) DurationSeconds() float64 {
	if r.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
			return dur
		}
	}
	// Some containers only carry per-stream durations.
	for _, s := range r.Streams {
		if s.Duration != "" {
			if dur, err := strconv.ParseFloat(s.Duration, 64); err == nil && dur > 0 {
				return dur
			}
		}
	}
	return 0
}

// VideoStream returns the first video stream, nil if none.
func (r *Result) VideoStream() *Stream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, nil if none.
func (r *Result) AudioStream() *Stream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// HasAudio returns true if the input carries at least one audio stream.
func (r *Result) HasAudio() bool {
	return r.AudioStream() != nil
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new media prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe probes a local file or URL and returns its parsed metadata.
func (p *Prober) Probe(ctx context.Context, input string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	args = append(args, input)

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return ParseResult(output)
}

// Duration probes an input and returns its duration in seconds.
func (p *Prober) Duration(ctx context.Context, input string) (float64, error) {
	result, err := p.Probe(ctx, input)
	if err != nil {
		return 0, err
	}
	d := result.DurationSeconds()
	if d <= 0 {
		return 0, fmt.Errorf("no duration reported for %s", input)
	}
	return d, nil
}

// ParseResult parses raw ffprobe JSON output.
func ParseResult(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &result, nil
}
