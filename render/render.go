// Package render turns Graphviz DOT text into PNG, PDF or SVG by running the Graphviz layout
// engine. Failures are split into a missing engine and input the engine rejected.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// Format is an output format understood by the engine's -T flag.
type Format string

const (
	PNG Format = "png"
	PDF Format = "pdf"
	SVG Format = "svg"
)

// ParseFormat accepts png, pdf and svg in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unsupported format: %s (supported: png, pdf, svg)", s)
	}
	return f, nil
}

func (f Format) Valid() bool {
	switch f {
	case PNG, PDF, SVG:
		return true
	}
	return false
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case PNG:
		return "image/png"
	case PDF:
		return "application/pdf"
	case SVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Renderer renders DOT source into one output format.
type Renderer interface {
	Render(ctx context.Context, source string, format Format) ([]byte, error)
}

// Options configures Engine.
type Options struct {
	// Binary is the layout executable, looked up in PATH unless it contains a separator.
	Binary string
	// DPI is injected into PNG renders; zero keeps the engine default.
	DPI int
	// Timeout bounds one engine run; zero means only the caller's context applies.
	Timeout time.Duration
}

// DefaultOptions renders with the dot executable at 200 dpi.
func DefaultOptions() Options {
	return Options{Binary: "dot", DPI: 200, Timeout: 30 * time.Second}
}

// Engine runs the Graphviz executable once per Render call.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if opts.Binary == "" {
		opts.Binary = "dot"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// Render feeds source to the engine on stdin and returns its stdout.
func (e *Engine) Render(ctx context.Context, source string, format Format) ([]byte, error) {
	op := "render " + string(format)
	if !format.Valid() {
		return nil, apperr.New(apperr.KindValidation, op, "unsupported format")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	path, err := exec.LookPath(e.opts.Binary)
	if err != nil {
		return nil, e.missing(op, err)
	}

	if format == PNG {
		source = InjectDPI(source, e.opts.DPI)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-T"+string(format))
	cmd.Stdin = strings.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	diag := strings.TrimSpace(stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
			return nil, e.missing(op, runErr)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, withDiagnostic(apperr.Wrap(apperr.KindRenderInvalidInput, op, ctx.Err(), "layout engine timed out"), diag)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case errors.As(runErr, &exitErr):
			return nil, withDiagnostic(apperr.Wrap(apperr.KindRenderInvalidInput, op, runErr,
				fmt.Sprintf("layout engine rejected the graph description (exit status %d)", exitErr.ExitCode())), diag)
		default:
			return nil, apperr.Wrap(apperr.KindRenderEngineMissing, op, runErr, "could not start layout engine "+path)
		}
	}
	if stdout.Len() == 0 {
		return nil, apperr.New(apperr.KindRenderInvalidInput, op, "layout engine produced no output").WithDiagnostic(diag)
	}
	if diag != "" {
		e.logger.Warn("layout engine warnings", zap.String("format", string(format)), zap.String("stderr", diag))
	}
	e.logger.Debug("rendered graph",
		zap.String("format", string(format)),
		zap.Int("bytes", stdout.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

// Info describes the resolved engine.
type Info struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Check resolves the engine and asks it for its version.
func (e *Engine) Check(ctx context.Context) (Info, error) {
	path, err := exec.LookPath(e.opts.Binary)
	if err != nil {
		return Info{}, e.missing("check", err)
	}
	// dot -V prints to stderr.
	out, err := exec.CommandContext(ctx, path, "-V").CombinedOutput()
	if err != nil {
		return Info{Path: path}, apperr.Wrap(apperr.KindRenderEngineMissing, "check", err, "layout engine did not report a version")
	}
	return Info{Path: path, Version: strings.TrimSpace(string(out))}, nil
}

func (e *Engine) missing(op string, cause error) error {
	return apperr.Wrap(apperr.KindRenderEngineMissing, op, cause,
		fmt.Sprintf("graphviz executable %q not found; install graphviz (e.g. apt-get install graphviz, brew install graphviz) or set DOT_BINARY", e.opts.Binary))
}

func withDiagnostic(err error, diag string) error {
	if e, ok := apperr.As(err); ok {
		e.Diagnostic = diag
	}
	return err
}
