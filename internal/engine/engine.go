// Package engine drives the headless composition renderer. The renderer is
// an external CLI that bundles a composition project once, enumerates the
// compositions the bundle exposes, and renders a selected composition with
// a set of input props to a local video file.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCompositionNotFound is returned when the requested composition ID is
// not exposed by the bundle. Use errors.Is against this sentinel; the
// concrete error carries the available IDs.
var ErrCompositionNotFound = errors.New("composition not found")

// CompositionNotFoundError reports a missing composition together with the
// IDs the bundle actually exposes, so the persisted error message tells the
// operator what to pick instead.
type CompositionNotFoundError struct {
	ID        string
	Available []string
}

func (e *CompositionNotFoundError) Error() string {
	return fmt.Sprintf("composition %q not found in bundle (available: %s)",
		e.ID, strings.Join(e.Available, ", "))
}

func (e *CompositionNotFoundError) Is(target error) bool {
	return target == ErrCompositionNotFound
}

// Composition describes one renderable composition exposed by a bundle.
type Composition struct {
	ID               string `json:"id"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	FPS              int    `json:"fps"`
	DurationInFrames int    `json:"durationInFrames"`
}

// RenderProps is the input payload passed to the composition at render time.
type RenderProps map[string]any

// RenderRequest describes a single render invocation.
type RenderRequest struct {
	BundlePath    string
	CompositionID string
	Props         RenderProps
	OutputPath    string
}

// Engine abstracts the external renderer so pipelines and tests do not
// depend on the subprocess implementation.
type Engine interface {
	// Prepare builds (or reuses) the composition bundle and returns its path.
	Prepare(ctx context.Context) (string, error)

	// ListCompositions enumerates the compositions a bundle exposes given
	// the input props. Props matter: data-driven bundles can derive
	// composition metadata such as duration from them.
	ListCompositions(ctx context.Context, bundlePath string, props RenderProps) ([]Composition, error)

	// Render renders one composition to the request's output path.
	Render(ctx context.Context, req RenderRequest) error
}

// SelectComposition finds the composition with the given ID, returning a
// CompositionNotFoundError listing the alternatives when absent.
func SelectComposition(comps []Composition, id string) (*Composition, error) {
	available := make([]string, 0, len(comps))
	for i := range comps {
		if comps[i].ID == id {
			return &comps[i], nil
		}
		available = append(available, comps[i].ID)
	}
	return nil, &CompositionNotFoundError{ID: id, Available: available}
}
