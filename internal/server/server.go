// Package server exposes the narration HTTP API: job submission, status
// polling, and a health probe.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/submission"
)

// Submitter accepts a prepared narration request and returns its receipt.
type Submitter interface {
	Submit(ctx context.Context, request core.GenerationRequest) (submission.Receipt, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server holds the API's dependencies and builds its router.
type Server struct {
	submitter Submitter
	statuses  core.StatusStore
	checks    map[string]HealthCheck
	authToken string
	log       *logger.Logger
}

// New creates a server. An empty authToken disables authentication; the
// health endpoint is always open so probes do not need credentials.
func New(
	submitter Submitter,
	statuses core.StatusStore,
	checks map[string]HealthCheck,
	authToken string,
	log *logger.Logger,
) *Server {
	return &Server{
		submitter: submitter,
		statuses:  statuses,
		checks:    checks,
		authToken: authToken,
		log:       log,
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.CleanPath)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.handleHealth)

	router.Group(func(api chi.Router) {
		if s.authToken != "" {
			api.Use(s.requireToken)
		}

		api.Post("/api/narration/process-text", s.handleProcessText)
		api.Get("/api/narration/job-status", s.handleJobStatus)
	})

	return router
}

type processTextRequest struct {
	Text                 string `json:"text"`
	VoiceID              string `json:"voiceId"`
	VoiceModel           string `json:"voiceModel"`
	ElementID            any    `json:"elementId"`
	EntryTitle           string `json:"entryTitle"`
	FileNamePrefix       string `json:"fileNamePrefix"`
	PronunciationRuleSet string `json:"pronunciationRuleSet"`
}

type processTextResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"jobId,omitempty"`
	BespokenJobID string `json:"bespokenJobId,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (s *Server) handleProcessText(writer http.ResponseWriter, request *http.Request) {
	var payload processTextRequest

	err := json.NewDecoder(request.Body).Decode(&payload)
	if err != nil {
		s.writeJSON(writer, http.StatusBadRequest, processTextResponse{
			Success: false,
			Message: "Invalid request body",
		})

		return
	}

	receipt, err := s.submitter.Submit(request.Context(), core.GenerationRequest{
		ElementID:            castToInt(payload.ElementID),
		Text:                 payload.Text,
		VoiceID:              payload.VoiceID,
		VoiceModel:           payload.VoiceModel,
		PronunciationRuleSet: payload.PronunciationRuleSet,
		EntryTitle:           payload.EntryTitle,
		FileNamePrefix:       payload.FileNamePrefix,
	})
	if err != nil {
		s.log.Error("Failed to submit narration job: %v", err)

		// Submission failures still answer 200 so the caller can show
		// the message instead of a generic transport error.
		s.writeJSON(writer, http.StatusOK, processTextResponse{
			Success: false,
			Message: err.Error(),
		})

		return
	}

	s.writeJSON(writer, http.StatusOK, processTextResponse{
		Success:       true,
		JobID:         receipt.JobID,
		BespokenJobID: receipt.CorrelationID,
		Filename:      receipt.Filename,
		Message:       "Job queued successfully",
	})
}

type jobStatusResponse struct {
	Success  bool    `json:"success"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

func (s *Server) handleJobStatus(writer http.ResponseWriter, request *http.Request) {
	jobID := request.URL.Query().Get("jobId")
	if jobID == "" {
		s.writeJSON(writer, http.StatusBadRequest, jobStatusResponse{
			Success: false,
			Message: "Job ID is required",
		})

		return
	}

	snapshot, err := s.statuses.Get(request.Context(), jobID)
	if err != nil {
		if errors.Is(err, core.ErrStatusNotFound) {
			// A submitted job may not have its first snapshot yet, so
			// pollers treat this answer as "keep waiting".
			s.writeJSON(writer, http.StatusOK, jobStatusResponse{
				Success: false,
				Message: "Job ID not found in cache",
			})

			return
		}

		s.log.Error("Failed to read status for job %s: %v", jobID, err)
		s.writeJSON(writer, http.StatusInternalServerError, jobStatusResponse{
			Success: false,
			Message: "Error reading job status",
		})

		return
	}

	s.writeJSON(writer, http.StatusOK, jobStatusResponse{
		Success:  snapshot.Success,
		Progress: snapshot.Progress,
		Message:  snapshot.Message,
	})
}

func (s *Server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	failures := make(map[string]string)

	for name, check := range s.checks {
		err := check(request.Context())
		if err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.writeJSON(writer, http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"failures": failures,
		})

		return
	}

	s.writeJSON(writer, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		token := strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeJSON(writer, http.StatusUnauthorized, map[string]any{
				"success": false,
				"message": "Unauthorized",
			})

			return
		}

		next.ServeHTTP(writer, request)
	})
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	err := json.NewEncoder(writer).Encode(payload)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}

// castToInt tolerates the loose element id typing of form submissions, where
// the id may arrive as a number or a numeric string. Anything else is zero.
func castToInt(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}

		return parsed
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}

		return int(parsed)
	default:
		return 0
	}
}
