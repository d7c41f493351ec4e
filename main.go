package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
	"github.com/jitender-insights/AI-FlowChart-Generator/config"
	"github.com/jitender-insights/AI-FlowChart-Generator/generator"
	"github.com/jitender-insights/AI-FlowChart-Generator/metrics"
	"github.com/jitender-insights/AI-FlowChart-Generator/pipeline"
	"github.com/jitender-insights/AI-FlowChart-Generator/render"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
	"github.com/jitender-insights/AI-FlowChart-Generator/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is main without the process exit; it returns the exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowchart", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	prompt := fs.String("prompt", "", "process description to turn into a flowchart")
	promptFile := fs.String("prompt-file", "", "read the description from a file, - for stdin")
	serve := fs.Bool("serve", false, "start web server")
	addr := fs.String("addr", "", "http listen address when --serve (overrides SERVER_ADDR)")
	verbose := fs.Bool("v", false, "enable debug logs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}

	if *serve {
		listen := cfg.ServerAddr
		if *addr != "" {
			listen = *addr
		}
		if err := a.serve(ctx, listen); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
		return 0
	}

	text, err := readPrompt(*prompt, *promptFile, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	res, err := a.pipeline.Run(ctx, text)
	if err != nil {
		reportError(stderr, err, res.Source)
		return 1
	}
	fmt.Fprintln(stdout, res.Source)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "png:", res.PNG.Path)
	fmt.Fprintln(stdout, "pdf:", res.PDF.Path)
	if res.DOT != nil {
		fmt.Fprintln(stdout, "dot:", res.DOT.Path)
	}
	return 0
}

// app holds the wired components shared by both modes.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	files    *scratch.Store
	engine   *render.Engine
	breaker  *generator.BreakerLLM
	metrics  *metrics.Collector
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	files, err := scratch.Open(scratch.Options{Dir: cfg.OutputDir, Retention: cfg.Retention}, logger.Named("scratch"))
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	m.ObserveReap(files.Reap(context.Background()))

	llm, err := buildLLM(cfg.LLM, logger.Named("llm"))
	if err != nil {
		return nil, err
	}
	breaker := generator.NewBreakerLLM(llm, generator.DefaultBreakerSettings(), logger.Named("llm"))
	agent, err := generator.NewAgent(breaker)
	if err != nil {
		return nil, err
	}

	engine := render.NewEngine(render.Options{
		Binary:  cfg.Render.Binary,
		DPI:     cfg.Render.DPI,
		Timeout: cfg.Render.Timeout,
	}, logger.Named("render"))

	p, err := pipeline.New(agent, engine, files, pipeline.Options{
		CompletionTimeout: cfg.LLM.Timeout,
		SaveSource:        cfg.SaveSource,
	}, logger.Named("pipeline"), m)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		files:    files,
		engine:   engine,
		breaker:  breaker,
		metrics:  m,
		pipeline: p,
	}, nil
}

func (a *app) serve(ctx context.Context, listen string) error {
	srv, err := server.New(a.pipeline, a.files, a.engine, server.Options{
		CORSOrigins: a.cfg.CORSOrigins,
		Breaker:     a.breaker,
		Metrics:     a.metrics,
		Logger:      a.logger.Named("http"),
	})
	if err != nil {
		return err
	}

	if info, err := a.engine.Check(ctx); err != nil {
		a.logger.Warn("layout engine unavailable; renders will fail until it is installed", zap.Error(err))
	} else {
		a.logger.Info("layout engine ready", zap.String("path", info.Path), zap.String("version", info.Version))
	}

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	if a.cfg.ReapInterval > 0 {
		go a.files.RunReaper(reaperCtx, a.cfg.ReapInterval, a.metrics.ObserveReap)
	}

	// A generation is one completion plus two renders.
	writeTimeout := a.cfg.LLM.Timeout + 2*a.cfg.Render.Timeout + 10*time.Second
	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(a.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting web server", zap.String("addr", listen), zap.String("output_dir", a.files.Dir()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildLLM(cfg config.LLMConfig, logger *zap.Logger) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings, logger)
	case "deepseek":
		// DeepSeek speaks the OpenAI protocol but has no default endpoint here.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires LLM_BASE_URL (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings, logger)
	case "gemini":
		if settings.BaseURL == "" {
			settings.BaseURL = generator.GeminiBaseURL
		}
		return generator.NewOpenAILLMFromConfig(settings, logger)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

// newLogger builds a zap logger writing to out; format is json or console.
func newLogger(cfg config.LogConfig, out io.Writer) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(ec)
	}
	sink := zapcore.Lock(zapcore.AddSync(out))
	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(sink)), nil
}

func readPrompt(prompt, file string, stdin io.Reader) (string, error) {
	switch {
	case prompt != "" && file != "":
		return "", errors.New("use either -prompt or -prompt-file, not both")
	case prompt != "":
		return prompt, nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("-prompt or -prompt-file is required (or use -serve)")
	}
}

func reportError(w io.Writer, err error, source string) {
	e, ok := apperr.As(err)
	if !ok {
		fmt.Fprintln(w, "error:", err)
		return
	}
	fmt.Fprintf(w, "error (%s): %s\n", e.Kind, e.Message)
	if e.Diagnostic != "" {
		fmt.Fprintln(w, strings.TrimSpace(e.Diagnostic))
	}
	if source != "" {
		fmt.Fprintln(w, "\ngraph description returned by the model:")
		fmt.Fprintln(w, source)
	}
}
