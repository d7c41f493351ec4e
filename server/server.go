// Package server exposes the flowchart pipeline over HTTP with a small embedded page.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/metrics"
	"github.com/jitender-insights/AI-FlowChart-Generator/pipeline"
	"github.com/jitender-insights/AI-FlowChart-Generator/render"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
)

//go:embed web
var embeddedStatic embed.FS

// EngineChecker reports whether the layout engine is usable. *render.Engine implements it.
type EngineChecker interface {
	Check(ctx context.Context) (render.Info, error)
}

// Options holds the optional parts of a Server.
type Options struct {
	CORSOrigins []string
	// Breaker, when set, is reported by /healthz.
	Breaker interface{ State() string }
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

type Server struct {
	pipeline *pipeline.Pipeline
	files    *scratch.Store
	engine   EngineChecker
	sessions *sessionStore
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
	staticFS http.Handler
}

// maxSessions bounds the in-memory session map; the oldest session is evicted first.
const maxSessions = 1000

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*pipeline.Session
	order    []string
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*pipeline.Session)}
}

func (s *sessionStore) get(id string) (*pipeline.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// getOrCreate returns the session for id, creating it when absent. An empty id gets a fresh one.
func (s *sessionStore) getOrCreate(id string, p *pipeline.Pipeline) *pipeline.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := pipeline.NewSession(id, p)
	s.sessions[id] = sess
	s.order = append(s.order, id)
	if len(s.order) > maxSessions {
		delete(s.sessions, s.order[0])
		s.order = s.order[1:]
	}
	return sess
}

func New(p *pipeline.Pipeline, files *scratch.Store, engine EngineChecker, opts Options) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline required")
	}
	if files == nil {
		return nil, errors.New("scratch store required")
	}
	if engine == nil {
		return nil, errors.New("engine checker required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := fs.Sub(embeddedStatic, "web")
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	return &Server{
		pipeline: p,
		files:    files,
		engine:   engine,
		sessions: newStore(),
		opts:     opts,
		logger:   logger,
		validate: validate,
		staticFS: http.FileServer(http.FS(sub)),
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logMiddleware)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/flowcharts", s.handleGenerate)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/artifacts/{name}", s.handleArtifact)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeErrorStatus(w, http.StatusNotFound, "not_found", "no such endpoint")
		})
	})

	r.Handle("/*", s.staticFS)
	return r
}

// --- Helpers ---

// jsonFieldName makes validation errors name fields the way clients send them.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logMiddleware logs one line per request and feeds the HTTP metrics.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		s.opts.Metrics.ObserveHTTP(r.Method, route, status, duration)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes_written", ww.BytesWritten()),
			zap.Duration("duration", duration),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			s.logger.Error("request failed", fields...)
		case status >= 400:
			s.logger.Warn("request rejected", fields...)
		default:
			s.logger.Info("request", fields...)
		}
	})
}
