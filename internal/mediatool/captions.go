package mediatool

import (
	"fmt"
	"os"
	"strings"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

// Caption styles accepted from job inputs.
const (
	CaptionKaraoke  = "karaoke"
	CaptionBlock    = "block"
	CaptionCentered = "centered"
	CaptionNone     = "none"
)

// ASS style overrides applied through the subtitles filter's force_style.
// Colors are &HBBGGRR& in ASS notation.
var captionStyles = map[string]string{
	CaptionKaraoke:  "FontName=Arial Black,FontSize=18,PrimaryColour=&H00FFFF&,OutlineColour=&H000000&,Outline=3,Bold=1,Alignment=2,MarginV=80",
	CaptionBlock:    "FontName=Arial,FontSize=14,PrimaryColour=&HFFFFFF&,BackColour=&H80000000&,BorderStyle=4,Outline=0,Alignment=2,MarginV=60",
	CaptionCentered: "FontName=Arial,FontSize=16,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,Outline=2,Bold=1,Alignment=5",
}

// CaptionForceStyle returns the force_style string for a named style.
func CaptionForceStyle(style string) (string, bool) {
	s, ok := captionStyles[style]
	return s, ok
}

// maxWordsPerCue bounds grouped caption lines for block and centered styles.
const maxWordsPerCue = 4

// maxCueDuration caps how long one grouped cue stays on screen, in seconds.
const maxCueDuration = 3.0

// Cue is a single subtitle entry.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// BuildCues converts word timings into subtitle cues. Karaoke puts one
// word per cue; block and centered group a few words per cue. Times are
// relative to the given clip start so cues line up with the cut clip.
func BuildCues(words []models.WordTiming, style string, clipStart, clipEnd float64) []Cue {
	var inWindow []models.WordTiming
	for _, w := range words {
		if w.End <= clipStart || w.Start >= clipEnd {
			continue
		}
		inWindow = append(inWindow, models.WordTiming{
			Word:  w.Word,
			Start: maxFloat(0, w.Start-clipStart),
			End:   minFloat(clipEnd-clipStart, w.End-clipStart),
		})
	}
	if len(inWindow) == 0 {
		return nil
	}

	if style == CaptionKaraoke {
		cues := make([]Cue, 0, len(inWindow))
		for _, w := range inWindow {
			cues = append(cues, Cue{Start: w.Start, End: w.End, Text: strings.ToUpper(w.Word)})
		}
		return cues
	}

	var cues []Cue
	var group []models.WordTiming
	flush := func() {
		if len(group) == 0 {
			return
		}
		parts := make([]string, 0, len(group))
		for _, w := range group {
			parts = append(parts, w.Word)
		}
		cues = append(cues, Cue{
			Start: group[0].Start,
			End:   group[len(group)-1].End,
			Text:  strings.Join(parts, " "),
		})
		group = group[:0]
	}

	for _, w := range inWindow {
		if len(group) > 0 && (len(group) >= maxWordsPerCue || w.End-group[0].Start > maxCueDuration) {
			flush()
		}
		group = append(group, w)
	}
	flush()
	return cues
}

// WriteSRT writes cues as an SRT file.
func WriteSRT(cues []Cue, path string) error {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(cue.Start), srtTimestamp(cue.End), cue.Text)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing srt: %w", err)
	}
	return nil
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int(seconds*1000 + 0.5)
	h := millis / 3600000
	m := (millis % 3600000) / 60000
	s := (millis % 60000) / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
