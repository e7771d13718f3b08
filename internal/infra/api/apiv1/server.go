// Package apiv1 is the worker HTTP API used by the controller.
package apiv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type Server struct {
	training usecase.TrainingUseCase
	host     usecase.HostUseCase
	shutdown func()
	auth     func(http.Handler) http.Handler
	trainMW  func(http.Handler) http.Handler
	now      func() time.Time
	log      *zerolog.Logger
}

type Option func(*Server)

// WithShutdown sets the function POST /shutdown triggers after replying.
func WithShutdown(fn func()) Option { return func(s *Server) { s.shutdown = fn } }

// WithAuth guards every route except /health.
func WithAuth(mw func(http.Handler) http.Handler) Option { return func(s *Server) { s.auth = mw } }

// WithTrainGuard wraps POST /train only.
func WithTrainGuard(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.trainMW = mw }
}

func WithLogger(l *zerolog.Logger) Option { return func(s *Server) { s.log = l } }

func NewServer(training usecase.TrainingUseCase, host usecase.HostUseCase, opts ...Option) *Server {
	nop := zerolog.Nop()
	s := &Server{training: training, host: host, now: time.Now, log: &nop}
	for _, o := range opts {
		o(s)
	}
	return s
}

func passthrough(next http.Handler) http.Handler { return next }

// RegisterAPIV1 mounts the worker routes on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	auth := s.auth
	if auth == nil {
		auth = passthrough
	}
	trainMW := s.trainMW
	if trainMW == nil {
		trainMW = passthrough
	}

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/info", s.handleInfo)
		r.Get("/resources", s.handleResources)
		r.With(trainMW).Post("/train", s.handleTrain)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/job/{job_id}/status", s.handleJobStatus)
		r.Post("/job/{job_id}/cancel", s.handleCancelJob)
		r.Post("/shutdown", s.handleShutdown)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewHealth(s.host.Health(r.Context())))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.host.Info(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	snap, err := s.host.Resources(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewResources(snap))
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req model.TrainRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.training.Start(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TrainAccepted{
		Status:  "started",
		JobID:   rec.JobID,
		Message: fmt.Sprintf("training started for job %s (%d epochs)", rec.JobID, rec.TotalEpochs),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	recs, err := s.training.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()
	out := JobList{Items: make([]JobRecord, 0, len(recs))}
	for _, rec := range recs {
		out.Items = append(out.Items, NewJobRecord(rec, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.training.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewJobRecord(rec, s.now()))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.training.Cancel(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewJobRecord(rec, s.now()))
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	logging.With(r.Context(), s.log).Warn().Msg("shutdown requested")
	writeJSON(w, http.StatusOK, StatusMessage{Status: "shutting down"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if s.shutdown != nil {
		s.shutdown()
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: missing request body", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed json: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// StatusCode maps domain errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	l := logging.With(r.Context(), s.log)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		l.Error().Err(err).Msg("request failed")
	} else {
		l.Debug().Err(err).Int("status", code).Msg("request rejected")
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
