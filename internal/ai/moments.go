package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const momentSystemPrompt = `You are a short-form video editor. You pick the ` +
	`moments from a long video transcript that will perform best as ` +
	`standalone vertical clips: strong hooks, self-contained arcs, emotional ` +
	`or surprising beats. Respond with JSON only.`

// buildMomentPrompt renders the user prompt for clip selection.
func buildMomentPrompt(req MomentRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Video duration: %.0f seconds.\n", req.DurationSec)
	if req.SourceTitle != "" {
		fmt.Fprintf(&b, "Video title: %s\n", req.SourceTitle)
	}
	fmt.Fprintf(&b, "Pick up to %d clips, each between %.0f and %.0f seconds long.\n",
		req.MaxClips, req.MinClipSeconds, req.MaxClipSeconds)
	b.WriteString(`Return JSON: {"clips":[{"title":str,"description":str,` +
		`"start_time":num,"end_time":num,"hook_score":int,"reason":str}]}. ` +
		"Titles must be punchy (under 60 chars); hook_score is 0-100.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(req.Transcript)

	return b.String()
}

type momentEnvelope struct {
	Clips []Moment `json:"clips"`
	// Some model replies use "moments" instead.
	Moments []Moment `json:"moments"`
}

// ParseMoments parses and sanitizes the model's clip proposal. Windows are
// clamped to the source duration and the configured length range; out of
// range or inverted windows are dropped. Results are ordered by hook score
// and truncated to MaxClips.
func ParseMoments(content string, req MomentRequest) ([]Moment, error) {
	var envelope momentEnvelope
	if err := json.Unmarshal([]byte(extractJSON(content)), &envelope); err != nil {
		return nil, fmt.Errorf("parsing clip proposal: %w", err)
	}

	proposed := envelope.Clips
	if len(proposed) == 0 {
		proposed = envelope.Moments
	}

	var moments []Moment
	for _, m := range proposed {
		if m.StartTime < 0 {
			m.StartTime = 0
		}
		if req.DurationSec > 0 && m.EndTime > req.DurationSec {
			m.EndTime = req.DurationSec
		}

		length := m.EndTime - m.StartTime
		if length <= 0 {
			continue
		}
		if req.MinClipSeconds > 0 && length < req.MinClipSeconds {
			continue
		}
		if req.MaxClipSeconds > 0 && length > req.MaxClipSeconds {
			m.EndTime = m.StartTime + req.MaxClipSeconds
		}

		if m.HookScore < 0 {
			m.HookScore = 0
		}
		if m.HookScore > 100 {
			m.HookScore = 100
		}

		moments = append(moments, m)
	}

	if len(moments) == 0 {
		return nil, ErrNoMoments
	}

	sort.SliceStable(moments, func(i, j int) bool {
		return moments[i].HookScore > moments[j].HookScore
	})
	if req.MaxClips > 0 && len(moments) > req.MaxClips {
		moments = moments[:req.MaxClips]
	}

	return moments, nil
}

// extractJSON strips markdown code fences the model sometimes wraps
// around JSON replies.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// ParseClipLengthRange parses a clip length hint like "15-30" into a
// (min, max) second range. Unknown hints fall back to 15-60.
func ParseClipLengthRange(hint string) (float64, float64) {
	switch hint {
	case "15-30":
		return 15, 30
	case "30-60":
		return 30, 60
	case "15-60", "":
		return 15, 60
	default:
		return 15, 60
	}
}

// TruncateTranscript bounds transcript size before prompting, cutting on a
// word boundary where possible.
func TruncateTranscript(transcript string, maxChars int) string {
	if maxChars <= 0 || len(transcript) <= maxChars {
		return transcript
	}
	cut := transcript[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut
}
