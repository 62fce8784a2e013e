// Package speechapi serves the synthesis pipeline over an OpenAI-style HTTP
// API.
//
// Routes:
//
//	GET  /                      health check, answers "OK"
//	POST /v1/audio/speech       synthesize {model, input, voice?, language?}
//	GET  /v1/audio/files/{id}   download a file produced by /v1/audio/speech
//	GET  /metrics               Prometheus metrics, when configured
//
// Every route allows any CORS origin.
package speechapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/kokoro/pkg/artifact"
	"github.com/haivivi/kokoro/pkg/kokoro"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "af_sky"

// Synthesizer produces audio files. *kokoro.Synthesizer implements it.
type Synthesizer interface {
	SynthesizeToFile(ctx context.Context, text, language, style, path string) (*kokoro.Result, error)
}

// Ledger records produced files. *artifact.Ledger implements it.
type Ledger interface {
	Record(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error)
	Get(ctx context.Context, id string) (artifact.Artifact, error)
}

// Options configures a Server.
type Options struct {
	// OutputDir receives output_<id>.wav files. Empty means the working
	// directory.
	OutputDir string

	// DefaultVoice replaces DefaultVoice.
	DefaultVoice string

	// Ledger enables GET /v1/audio/files/{id}.
	Ledger Ledger

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// MaxBodyBytes limits request bodies. Zero means 1 MiB.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// Server is the HTTP front end of a Synthesizer.
type Server struct {
	synth Synthesizer
	opts  Options
	log   *slog.Logger
	mux   *http.ServeMux
	h     http.Handler
}

// NewServer returns a Server. It implements http.Handler.
func NewServer(synth Synthesizer, opts Options) *Server {
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = DefaultVoice
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		synth: synth,
		opts:  opts,
		log:   log,
		mux:   http.NewServeMux(),
	}
	s.setupRoutes()
	s.h = cors(s.logRequests(s.mux))
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	s.mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
	if s.opts.Ledger != nil {
		s.mux.HandleFunc("GET /v1/audio/files/{id}", s.handleFile)
	}
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

// SpeechRequest is the body of POST /v1/audio/speech.
type SpeechRequest struct {
	Model    string  `json:"model"`
	Input    string  `json:"input"`
	Voice    *string `json:"voice,omitempty"`
	Language *string `json:"language,omitempty"`
}

// SpeechResponse is the body of a successful POST /v1/audio/speech.
type SpeechResponse struct {
	Status   string  `json:"status"`
	FilePath string  `json:"file_path"`
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Model) == "" || req.Input == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "model and input are required"})
		return
	}

	voice := s.opts.DefaultVoice
	if req.Voice != nil && strings.TrimSpace(*req.Voice) != "" {
		voice = *req.Voice
	}
	lang := ""
	if req.Language != nil {
		lang = strings.TrimSpace(*req.Language)
	}
	if lang == "" {
		lang = kokoro.DetectLanguage(req.Input)
	}

	id := uuid.NewString()
	path := filepath.Join(s.opts.OutputDir, "output_"+id+".wav")

	res, err := s.synth.SynthesizeToFile(r.Context(), req.Input, lang, voice, path)
	if err != nil {
		s.log.Error("synthesis failed",
			slog.String("id", id),
			slog.String("voice", voice),
			slog.String("language", lang),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "synthesis failed"})
		return
	}

	if s.opts.Ledger != nil {
		_, err := s.opts.Ledger.Record(r.Context(), artifact.Artifact{
			ID:       id,
			Path:     res.Path,
			Voice:    voice,
			Language: lang,
			Chars:    len([]rune(req.Input)),
			Samples:  res.Samples,
			Duration: res.AudioDuration,
			Elapsed:  res.Elapsed,
		})
		if err != nil {
			s.log.Warn("artifact record failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, SpeechResponse{
		Status:   "success",
		FilePath: res.Path,
		ID:       id,
		Duration: res.AudioDuration.Seconds(),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	a, err := s.opts.Ledger.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, artifact.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		s.log.Error("artifact lookup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, a.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// cors allows any origin, method and header.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "*")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("speech server listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
