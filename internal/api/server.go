// Package api exposes the HTTP interface for the ingestion and retrieval
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/ai"
	"github.com/teamindigo/ragline/internal/config"
	"github.com/teamindigo/ragline/internal/crawl"
	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/retrieve"
)

// maxAudioBytes caps speech-to-text uploads.
const maxAudioBytes = 25 << 20

// Answerer resolves a user query into an answer with supporting context.
type Answerer interface {
	Answer(ctx context.Context, query string) (retrieve.Answer, error)
}

// Server wires HTTP handlers to the retrieval orchestrator and the crawl
// service.
type Server struct {
	router      chi.Router
	answerer    Answerer
	crawls      *crawl.Service
	transcriber ai.Transcriber
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. transcriber may
// be nil, in which case the speech endpoint reports unavailability.
func NewServer(
	answerer Answerer,
	crawls *crawl.Service,
	transcriber ai.Transcriber,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answerer:    answerer,
		crawls:      crawls,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.query)
		r.Post("/speech-to-text", s.speechToText)
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/status", s.crawlStatus)
				r.Post("/cancel", s.cancelCrawl)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	answer, err := s.answerer.Answer(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("query failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type crawlRequest struct {
	Seeds []pipeline.Seed `json:"seeds"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = s.cfg.Seeds
	}
	if len(seeds) == 0 {
		writeError(w, http.StatusBadRequest, "at least one seed required")
		return
	}
	runID, err := s.crawls.Start(seeds)
	if err != nil {
		if errors.Is(err, crawl.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) crawlStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	status, err := s.crawls.Status(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.crawls.Cancel(runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "state": string(crawl.RunStateCancelled)})
}

// speechToText accepts a recorded audio clip, either as a multipart "audio"
// part or as the raw request body, and returns the transcription.
func (s *Server) speechToText(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "speech-to-text not configured")
		return
	}
	audio, err := readAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := s.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func readAudio(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxAudioBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
			return nil, errors.New("invalid multipart body")
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, errors.New("missing audio part")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, errors.New("failed to read audio part")
		}
		return data, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		return nil, errors.New("missing audio body")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
