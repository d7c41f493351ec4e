package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
	"github.com/jitender-insights/AI-FlowChart-Generator/pipeline"
	"github.com/jitender-insights/AI-FlowChart-Generator/render"
	"github.com/jitender-insights/AI-FlowChart-Generator/scratch"
)

const maxRequestBytes = 64 << 10

type generateReq struct {
	Prompt    string `json:"prompt" validate:"max=8000"`
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
}

type artifactResp struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type generationResp struct {
	SessionID   string                  `json:"session_id"`
	Source      string                  `json:"source"`
	ValidDOT    bool                    `json:"valid_dot"`
	Artifacts   map[string]artifactResp `json:"artifacts"`
	Generations int                     `json:"generations"`
	CreatedAt   time.Time               `json:"created_at"`
}

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Diagnostic string `json:"diagnostic,omitempty"`
	// Source is the graph description when the failure happened after the model answered.
	Source string `json:"source,omitempty"`
}

func newGenerationResp(sess *pipeline.Session, res pipeline.Result) generationResp {
	arts := make(map[string]artifactResp)
	for ext, a := range res.Artifacts() {
		arts[ext] = artifactResp{Name: a.Name, URL: "/api/artifacts/" + a.Name, Size: a.Size}
	}
	return generationResp{
		SessionID:   sess.ID,
		Source:      res.Source,
		ValidDOT:    res.LooksLikeDOT,
		Artifacts:   arts,
		Generations: sess.Generations(),
		CreatedAt:   res.CreatedAt,
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "decode request", err, "request body must be JSON like {\"prompt\": \"...\"}"), "")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "decode request", describeValidation(err)), "")
		return
	}

	sess := s.sessions.getOrCreate(req.SessionID, s.pipeline)
	res, err := sess.Generate(r.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody reads the response.
			return
		}
		writeError(w, err, res.Source)
		return
	}
	writeJSON(w, http.StatusOK, newGenerationResp(sess, res))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	res, ok := sess.Latest()
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "not_found", "no flowchart generated in this session yet")
		return
	}
	writeJSON(w, http.StatusOK, newGenerationResp(sess, res))
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.files.Path(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeErrorStatus(w, http.StatusNotFound, "not_found", "artifact not found or expired")
			return
		}
		writeError(w, err, "")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		// Reaped between Path and Open.
		writeErrorStatus(w, http.StatusNotFound, "not_found", "artifact not found or expired")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, "artifact", err, name), "")
		return
	}

	ext := scratch.Artifact{Name: name}.Ext()
	w.Header().Set("Content-Type", contentType(ext))
	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=\"flowchart.%s\"", disposition, ext))
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func contentType(ext string) string {
	if ext == "dot" {
		return "text/vnd.graphviz; charset=utf-8"
	}
	if f, err := render.ParseFormat(ext); err == nil {
		return f.ContentType()
	}
	return "application/octet-stream"
}

type healthResp struct {
	Status      string       `json:"status"`
	Engine      *render.Info `json:"engine,omitempty"`
	EngineError string       `json:"engine_error,omitempty"`
	OutputDir   string       `json:"output_dir"`
	OutputError string       `json:"output_error,omitempty"`
	Breaker     string       `json:"llm_breaker,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResp{Status: "ok", OutputDir: s.files.Dir()}
	if info, err := s.engine.Check(ctx); err != nil {
		resp.Status = "degraded"
		resp.EngineError = err.Error()
	} else {
		resp.Engine = &info
	}
	if st, err := os.Stat(s.files.Dir()); err != nil || !st.IsDir() {
		resp.Status = "degraded"
		resp.OutputError = "output directory is not available"
	}
	if s.opts.Breaker != nil {
		resp.Breaker = s.opts.Breaker.State()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
		s.logger.Warn("health check degraded", zap.String("engine_error", resp.EngineError), zap.String("output_error", resp.OutputError))
	}
	writeJSON(w, status, resp)
}

// writeError maps an error to its kind's status. Errors from outside apperr become 500s
// without leaking their text.
func writeError(w http.ResponseWriter, err error, source string) {
	body := errorBody{Kind: string(apperr.KindUnknown), Message: "internal error", Source: source}
	status := http.StatusInternalServerError
	if e, ok := apperr.As(err); ok {
		body.Kind = string(e.Kind)
		body.Message = e.Message
		body.Diagnostic = e.Diagnostic
		status = e.Kind.HTTPStatus()
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeErrorStatus(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a UUID", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
