// Package submission turns narration requests into queued audio jobs.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/pronounce"
)

// PlaceholderText is narrated when a request's text collapses to nothing, so
// the job still produces an audible result instead of a silent file.
const PlaceholderText = "The text was not received as expected."

const titleRuneLimit = 56

// ErrAPIKeyMissing indicates the vendor API key is not configured. Submission
// fails before anything is enqueued, because every queued job would fail.
var ErrAPIKeyMissing = errors.New("the ElevenLabs API key is not set")

// Receipt identifies an accepted job. CorrelationID is what clients poll
// with; JobID is the queue's internal task id, returned for logging only.
type Receipt struct {
	JobID         string
	CorrelationID string
	Filename      string
}

// Service prepares and enqueues narration jobs. Preparation is synchronous
// and cheap; all slow work happens later in the worker.
type Service struct {
	queue           core.Queue
	substituter     *pronounce.Substituter
	apiKeyAvailable bool
	log             *logger.Logger
	now             func() time.Time
}

// New creates a submission service. apiKeyAvailable reflects whether the
// vendor API key is configured, checked per submission so misconfiguration
// surfaces immediately rather than in the worker.
func New(
	jobQueue core.Queue,
	substituter *pronounce.Substituter,
	apiKeyAvailable bool,
	log *logger.Logger,
) *Service {
	return &Service{
		queue:           jobQueue,
		substituter:     substituter,
		apiKeyAvailable: apiKeyAvailable,
		log:             log,
		now:             time.Now,
	}
}

// Submit prepares the request's text and file name, assigns the job its
// correlation id, and enqueues it. The returned receipt is the client's only
// handle on the job.
func (s *Service) Submit(ctx context.Context, request core.GenerationRequest) (Receipt, error) {
	if !s.apiKeyAvailable {
		return Receipt{}, ErrAPIKeyMissing
	}

	text := s.prepareText(request.PronunciationRuleSet, request.Text)

	voiceModel := request.VoiceModel
	if voiceModel == "" {
		voiceModel = config.DefaultVoiceModel
	}

	title := pronounce.CleanTitle(request.EntryTitle, titleRuneLimit)
	filename := pronounce.Filename(request.FileNamePrefix+title, s.now())
	correlationID := uuid.NewString()

	job := core.AudioJob{
		Header: events.EventHeader{
			Timestamp:  s.now(),
			WorkflowID: correlationID,
			EventID:    uuid.NewString(),
		},
		ElementID:  request.ElementID,
		Text:       text,
		VoiceID:    request.VoiceID,
		VoiceModel: voiceModel,
		EntryTitle: title,
		Filename:   filename,
	}

	taskID, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to enqueue narration job: %w", err)
	}

	s.log.Info("Queued narration job %s (task %s) for element %d as %s",
		correlationID, taskID, request.ElementID, filename)

	return Receipt{
		JobID:         taskID,
		CorrelationID: correlationID,
		Filename:      filename,
	}, nil
}

func (s *Service) prepareText(ruleSet, text string) string {
	text = s.substituter.Apply(ruleSet, text)
	text = pronounce.CollapseWhitespace(text)

	if text == "" {
		return PlaceholderText
	}

	return text
}
