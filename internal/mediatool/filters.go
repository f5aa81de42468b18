package mediatool

import "fmt"

// Crop modes accepted from job inputs.
const (
	CropFaceTrack = "face-track"
	CropCenter    = "center"
	CropDynamic   = "dynamic"
)

// CropSpec describes how to reframe a landscape source into a 9:16 frame.
// FocusX is the horizontal focus point as a fraction of the frame width
// (0 = left edge, 1 = right edge); the crop window is positioned so the
// focus point sits near its center.
type CropSpec struct {
	Mode   string
	FocusX float64
}

// NewCropSpec builds a CropSpec for the given mode. face-track and dynamic
// modes bias the focus slightly left of the detected subject so framing
// leaves headroom on the speaking side; without a detection signal they
// fall back to center.
func NewCropSpec(mode string, focusX float64) CropSpec {
	switch mode {
	case CropFaceTrack, CropDynamic:
		if focusX <= 0 || focusX >= 1 {
			focusX = 0.5
		}
	default:
		mode = CropCenter
		focusX = 0.5
	}
	return CropSpec{Mode: mode, FocusX: focusX}
}

// Filter returns the ffmpeg video filter string: crop to a 9:16 window of
// full source height, positioned by the focus fraction, then scale to
// 1080x1920.
func (c CropSpec) Filter() string {
	focus := c.FocusX
	if focus <= 0 || focus >= 1 {
		focus = 0.5
	}
	return fmt.Sprintf("crop=w=ih*9/16:h=ih:x=(iw-ih*9/16)*%.3f:y=0,scale=1080:1920", focus)
}
