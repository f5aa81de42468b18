package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CLIEngine invokes the renderer CLI as a subprocess. The CLI is expected
// to support three subcommands:
//
//	bundle --project <dir> --out <dir>
//	compositions --bundle <dir> --props <file>   (JSON array on stdout)
//	render --bundle <dir> --composition <id> --props <file> --output <file>
type CLIEngine struct {
	binary      string
	projectDir  string
	bundleDir   string
	stepTimeout time.Duration
	logger      *slog.Logger
}

// CLIOption configures a CLIEngine.
type CLIOption func(*CLIEngine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CLIOption {
	return func(e *CLIEngine) { e.logger = logger }
}

// WithStepTimeout bounds each CLI invocation.
func WithStepTimeout(d time.Duration) CLIOption {
	return func(e *CLIEngine) { e.stepTimeout = d }
}

// NewCLIEngine creates an engine backed by the renderer CLI binary.
func NewCLIEngine(binary, projectDir, bundleDir string, opts ...CLIOption) *CLIEngine {
	e := &CLIEngine{
		binary:      binary,
		projectDir:  projectDir,
		bundleDir:   bundleDir,
		stepTimeout: 10 * time.Minute,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare builds the composition bundle into the configured bundle dir.
func (e *CLIEngine) Prepare(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.bundleDir, 0o755); err != nil {
		return "", fmt.Errorf("creating bundle directory: %w", err)
	}

	start := time.Now()
	if _, err := e.run(ctx, "bundle", "--project", e.projectDir, "--out", e.bundleDir); err != nil {
		return "", fmt.Errorf("bundling compositions: %w", err)
	}

	e.logger.Info("composition bundle built",
		slog.String("bundle_dir", e.bundleDir),
		slog.Duration("duration", time.Since(start)),
	)
	return e.bundleDir, nil
}

// ListCompositions enumerates the bundle's compositions for the given props.
func (e *CLIEngine) ListCompositions(ctx context.Context, bundlePath string, props RenderProps) ([]Composition, error) {
	propsFile, cleanup, err := writePropsFile(props)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	output, err := e.run(ctx, "compositions", "--bundle", bundlePath, "--props", propsFile)
	if err != nil {
		return nil, fmt.Errorf("listing compositions: %w", err)
	}

	var comps []Composition
	if err := json.Unmarshal(output, &comps); err != nil {
		return nil, fmt.Errorf("parsing composition list: %w", err)
	}
	return comps, nil
}

// Render renders one composition to the request's output path.
func (e *CLIEngine) Render(ctx context.Context, req RenderRequest) error {
	propsFile, cleanup, err := writePropsFile(req.Props)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	start := time.Now()
	_, err = e.run(ctx, "render",
		"--bundle", req.BundlePath,
		"--composition", req.CompositionID,
		"--props", propsFile,
		"--output", req.OutputPath,
	)
	if err != nil {
		return fmt.Errorf("rendering composition %s: %w", req.CompositionID, err)
	}

	e.logger.Info("composition rendered",
		slog.String("composition", req.CompositionID),
		slog.String("output", req.OutputPath),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// run executes one CLI invocation, returning stdout. On failure the error
// carries the tail of stderr so pipeline error messages are actionable.
func (e *CLIEngine) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running renderer command", slog.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("renderer timed out after %v", e.stepTimeout)
		}
		return nil, fmt.Errorf("renderer exited: %w: %s", err, stderrTail(stderr.String(), 8))
	}
	return stdout.Bytes(), nil
}

// writePropsFile marshals props to a temp JSON file. Props can be large
// (full word timing lists), so they never travel on the command line.
func writePropsFile(props RenderProps) (string, func(), error) {
	if props == nil {
		props = RenderProps{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", nil, fmt.Errorf("marshaling props: %w", err)
	}

	f, err := os.CreateTemp("", "render-props-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("creating props file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("writing props file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("closing props file: %w", err)
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// stderrTail returns the last n non-empty lines of renderer stderr.
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
