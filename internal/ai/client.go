// Package ai talks to the OpenAI API for the two model-driven steps of the
// shorts pipeline: transcribing the source audio with word timestamps and
// selecting the most engaging clip windows from the transcript.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

const (
	// DefaultChatModel is used for clip selection when none is configured.
	DefaultChatModel = "gpt-4o"

	// MaxRetries is the retry budget for rate-limited API calls.
	MaxRetries = 3

	// BaseBackoff is the base for exponential backoff between retries.
	BaseBackoff = 2 * time.Second

	// MaxBackoff caps the backoff between retries.
	MaxBackoff = 32 * time.Second

	// TranscriptionUploadLimit is the API's per-file upload limit.
	TranscriptionUploadLimit = 25 * 1024 * 1024
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrMaxRetriesExceeded is returned when the retry budget is exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrNoMoments is returned when the model proposes no usable clips.
	ErrNoMoments = errors.New("no clip moments proposed")
)

// Transcription is the result of transcribing one audio file.
type Transcription struct {
	Text     string
	Words    []models.WordTiming
	Duration float64
}

// Moment is one proposed clip window with its pitch.
type Moment struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	HookScore   int     `json:"hook_score"`
	Reason      string  `json:"reason"`
}

// MomentRequest constrains clip selection.
type MomentRequest struct {
	Transcript     string
	SourceTitle    string
	DurationSec    float64
	MaxClips       int
	MinClipSeconds float64
	MaxClipSeconds float64
}

// Client wraps the OpenAI API.
type Client struct {
	client    openai.Client
	chatModel string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithChatModel overrides the chat model used for clip selection.
func WithChatModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an API client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c := &Client{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel: DefaultChatModel,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TranscribeFile transcribes a single audio file with word timestamps.
// Files above the upload limit must be split by the caller first.
func (c *Client) TranscribeFile(ctx context.Context, audioPath string) (*Transcription, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stating audio file: %w", err)
	}
	if info.Size() > TranscriptionUploadLimit {
		return nil, fmt.Errorf("audio file %s exceeds %d byte upload limit", audioPath, TranscriptionUploadLimit)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:                  openai.AudioModelWhisper1,
		File:                   f,
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	})
	if err != nil {
		return nil, fmt.Errorf("transcribing audio: %w", err)
	}

	result := &Transcription{Text: resp.Text}

	// Word timings only appear in the verbose payload.
	var verbose openai.TranscriptionVerbose
	if err := json.Unmarshal([]byte(resp.RawJSON()), &verbose); err == nil {
		result.Duration = verbose.Duration
		for _, w := range verbose.Words {
			result.Words = append(result.Words, models.WordTiming{
				Word:  w.Word,
				Start: w.Start,
				End:   w.End,
			})
		}
	} else {
		c.logger.Warn("transcription verbose payload unavailable",
			slog.String("error", err.Error()))
	}

	return result, nil
}

// FindMoments asks the chat model for the most engaging clip windows.
func (c *Client) FindMoments(ctx context.Context, req MomentRequest) ([]Moment, error) {
	prompt := buildMomentPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.chatModel),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(momentSystemPrompt),
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(0.7),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
			},
		})
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return nil, fmt.Errorf("clip selection call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("no completion choices returned")
		}

		moments, err := ParseMoments(completion.Choices[0].Message.Content, req)
		if err != nil {
			lastErr = err
			continue
		}
		return moments, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
