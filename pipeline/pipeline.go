// Package pipeline runs one generation end to end: validate the description, ask the model for a
// graph, render PNG and PDF, and keep the files in the scratch store. Steps run strictly in
// sequence on the caller's goroutine.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
	"github.com/jitender-insights/AI-FlowChart-Generator/generator"
	"github.com/jitender-insights/AI-FlowChart-Generator/metrics"
	"github.com/jitender-insights/AI-FlowChart-Generator/render"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
)

// Generator produces a sanitized graph description. *generator.Agent implements it.
type Generator interface {
	Generate(ctx context.Context, input string) (generator.Flowchart, error)
}

type Options struct {
	// CompletionTimeout bounds the model call; zero leaves only the caller's deadline.
	CompletionTimeout time.Duration
	// SaveSource also writes the DOT text next to the images.
	SaveSource bool
}

// Result is one successful generation.
type Result struct {
	Prompt       string            `json:"-"`
	Source       string            `json:"source"`
	LooksLikeDOT bool              `json:"valid_dot"`
	PNG          scratch.Artifact  `json:"png"`
	PDF          scratch.Artifact  `json:"pdf"`
	DOT          *scratch.Artifact `json:"dot,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Artifacts lists the written files keyed by extension.
func (r Result) Artifacts() map[string]scratch.Artifact {
	out := map[string]scratch.Artifact{"png": r.PNG, "pdf": r.PDF}
	if r.DOT != nil {
		out["dot"] = *r.DOT
	}
	return out
}

type Pipeline struct {
	gen      Generator
	renderer render.Renderer
	store    *scratch.Store
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// New wires a pipeline. logger and m may be nil.
func New(gen Generator, renderer render.Renderer, store *scratch.Store, opts Options, logger *zap.Logger, m *metrics.Collector) (*Pipeline, error) {
	if gen == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if renderer == nil {
		return nil, errors.New("pipeline: renderer is required")
	}
	if store == nil {
		return nil, errors.New("pipeline: scratch store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gen: gen, renderer: renderer, store: store, opts: opts, logger: logger, metrics: m}, nil
}

// Run executes one generation. On a render or write failure the returned Result still carries
// the graph description so callers can show it next to the error.
func (p *Pipeline) Run(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	res, err := p.run(ctx, prompt)
	p.metrics.ObserveGeneration(err)

	if err != nil {
		p.logger.Warn("generation failed",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return res, err
	}
	p.logger.Info("generation complete",
		zap.String("png", res.PNG.Name),
		zap.String("pdf", res.PDF.Name),
		zap.Bool("valid_dot", res.LooksLikeDOT),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, prompt string) (Result, error) {
	if err := generator.ValidateInput(prompt); err != nil {
		return Result{}, err
	}
	res := Result{Prompt: prompt}

	chart, err := p.complete(ctx, prompt)
	if err != nil {
		return res, err
	}
	res.Source = chart.Source
	res.LooksLikeDOT = chart.LooksLikeDOT
	if !chart.LooksLikeDOT {
		p.logger.Debug("model answer does not open with a graph declaration")
	}

	if res.PNG, err = p.renderAndStore(ctx, chart.Source, render.PNG); err != nil {
		return res, err
	}
	if res.PDF, err = p.renderAndStore(ctx, chart.Source, render.PDF); err != nil {
		return res, err
	}
	if p.opts.SaveSource {
		dot, err := p.store.WriteSource(chart.Source)
		if err != nil {
			return res, err
		}
		p.metrics.ObserveArtifact(dot)
		res.DOT = &dot
	}
	res.CreatedAt = time.Now()
	return res, nil
}

func (p *Pipeline) complete(ctx context.Context, prompt string) (generator.Flowchart, error) {
	defer p.metrics.ObserveStage("completion", time.Now())
	if p.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CompletionTimeout)
		defer cancel()
	}
	return p.gen.Generate(ctx, prompt)
}

func (p *Pipeline) renderAndStore(ctx context.Context, source string, format render.Format) (scratch.Artifact, error) {
	started := time.Now()
	data, err := p.renderer.Render(ctx, source, format)
	p.metrics.ObserveStage("render_"+string(format), started)
	if err != nil {
		return scratch.Artifact{}, err
	}
	a, err := p.store.Write(format.Ext(), data)
	if err != nil {
		return scratch.Artifact{}, err
	}
	p.metrics.ObserveArtifact(a)
	return a, nil
}
