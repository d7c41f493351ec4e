package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
	"github.com/jitender-insights/AI-FlowChart-Generator/generator"
	"github.com/jitender-insights/AI-FlowChart-Generator/metrics"
	"github.com/jitender-insights/AI-FlowChart-Generator/render"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
)

const loginPrompt = "User logs in, system validates credentials, on success show dashboard, on failure show error."

const fencedReply = "```dot\ndigraph Flowchart {\n  a -> b;\n}\n```"

// countingLLM records calls and answers with a fixed reply.
type countingLLM struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (c *countingLLM) Complete(ctx context.Context, _ generator.Prompt) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.reply, ctx.Err()
}

// fakeRenderer returns "<format>:<source>" or a per-format error.
type fakeRenderer struct {
	fail  map[render.Format]error
	calls []render.Format
}

func (f *fakeRenderer) Render(_ context.Context, source string, format render.Format) ([]byte, error) {
	f.calls = append(f.calls, format)
	if err := f.fail[format]; err != nil {
		return nil, err
	}
	return []byte(string(format) + ":" + source), nil
}

func newStore(t *testing.T) *scratch.Store {
	t.Helper()
	store, err := scratch.Open(scratch.Options{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	return store
}

func newPipeline(t *testing.T, llm generator.LLMClient, r render.Renderer, opts Options) (*Pipeline, *scratch.Store) {
	t.Helper()
	agent, err := generator.NewAgent(llm)
	require.NoError(t, err)
	store := newStore(t)
	p, err := New(agent, r, store, opts, nil, nil)
	require.NoError(t, err)
	return p, store
}

func TestRunLoginScenarioWithEngine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine is a shell script")
	}
	// Stands in for dot: echoes the requested format followed by the graph it was given.
	bin := filepath.Join(t.TempDir(), "dot")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"$1\"\ncat\n"), 0o755))

	engine := render.NewEngine(render.Options{Binary: bin, DPI: 200, Timeout: 5 * time.Second}, nil)
	p, store := newPipeline(t, generator.MockLLM{}, engine, Options{SaveSource: true})

	res, err := p.Run(context.Background(), loginPrompt)
	require.NoError(t, err)

	assert.True(t, res.LooksLikeDOT)
	assert.True(t, strings.HasPrefix(res.Source, "digraph Flowchart {"))
	assert.NotContains(t, res.Source, "```")
	assert.Contains(t, res.Source, "validates credentials")

	png, err := store.Read(res.PNG.Name)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	assert.True(t, strings.HasPrefix(string(png), "-Tpng\n"))
	assert.Contains(t, string(png), "dpi=200;")

	pdf, err := store.Read(res.PDF.Name)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.True(t, strings.HasPrefix(string(pdf), "-Tpdf\n"))
	assert.NotContains(t, string(pdf), "dpi=")

	require.NotNil(t, res.DOT)
	dot, err := store.Read(res.DOT.Name)
	require.NoError(t, err)
	assert.Equal(t, res.Source, string(dot))

	assert.Equal(t, ".png", filepath.Ext(res.PNG.Name))
	assert.Equal(t, ".pdf", filepath.Ext(res.PDF.Name))
	assert.Len(t, res.Artifacts(), 3)
}

func TestRunEmptyPromptNeverCallsModel(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t "} {
		llm := &countingLLM{reply: fencedReply}
		r := &fakeRenderer{}
		p, store := newPipeline(t, llm, r, Options{SaveSource: true})

		_, err := p.Run(context.Background(), prompt)
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Zero(t, llm.calls)
		assert.Empty(t, r.calls)

		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestRunRendersPNGThenPDF(t *testing.T) {
	llm := &countingLLM{reply: fencedReply}
	r := &fakeRenderer{}
	p, _ := newPipeline(t, llm, r, Options{})

	res, err := p.Run(context.Background(), "a then b")
	require.NoError(t, err)
	assert.Equal(t, []render.Format{render.PNG, render.PDF}, r.calls)
	assert.Nil(t, res.DOT)
	assert.Equal(t, int64(len("png:"+res.Source)), res.PNG.Size)
	assert.Equal(t, 1, llm.calls)
}

func TestRunRenderFailureKeepsSource(t *testing.T) {
	llm := &countingLLM{reply: "```\nnot a graph\n```"}
	rejected := apperr.New(apperr.KindRenderInvalidInput, "render png", "rejected").WithDiagnostic("syntax error in line 1")
	r := &fakeRenderer{fail: map[render.Format]error{render.PNG: rejected}}
	p, store := newPipeline(t, llm, r, Options{SaveSource: true})

	res, err := p.Run(context.Background(), "something")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRenderInvalidInput, apperr.KindOf(err))
	assert.Equal(t, "not a graph", res.Source)
	assert.False(t, res.LooksLikeDOT)
	assert.Equal(t, []render.Format{render.PNG}, r.calls)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunEngineMissingIsDistinctKind(t *testing.T) {
	llm := &countingLLM{reply: fencedReply}
	engine := render.NewEngine(render.Options{Binary: "flowchart-test-no-such-dot"}, nil)
	p, _ := newPipeline(t, llm, engine, Options{})

	_, err := p.Run(context.Background(), "a then b")
	assert.Equal(t, apperr.KindRenderEngineMissing, apperr.KindOf(err))
}

func TestRunCompletionFailureClassified(t *testing.T) {
	llm := &countingLLM{err: errors.New("connection reset by peer")}
	r := &fakeRenderer{}
	p, _ := newPipeline(t, llm, r, Options{})

	_, err := p.Run(context.Background(), "a then b")
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
	assert.Empty(t, r.calls)
}

// slowLLM blocks until its context ends.
type slowLLM struct{}

func (slowLLM) Complete(ctx context.Context, _ generator.Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunCompletionTimeout(t *testing.T) {
	p, _ := newPipeline(t, slowLLM{}, &fakeRenderer{}, Options{CompletionTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := p.Run(context.Background(), "a then b")
	require.Error(t, err)
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunRecordsMetrics(t *testing.T) {
	agent, err := generator.NewAgent(&countingLLM{reply: fencedReply})
	require.NoError(t, err)
	m := metrics.New()
	p, err := New(agent, &fakeRenderer{}, newStore(t), Options{}, nil, m)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "a then b")
	require.NoError(t, err)
	_, err = p.Run(context.Background(), " ")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("validation")))
}

func TestNewRequiresCollaborators(t *testing.T) {
	agent, err := generator.NewAgent(generator.MockLLM{})
	require.NoError(t, err)
	store := newStore(t)

	_, err = New(nil, &fakeRenderer{}, store, Options{}, nil, nil)
	assert.Error(t, err)
	_, err = New(agent, nil, store, Options{}, nil, nil)
	assert.Error(t, err)
	_, err = New(agent, &fakeRenderer{}, nil, Options{}, nil, nil)
	assert.Error(t, err)
}
