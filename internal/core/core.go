// Package core defines the domain types and ports for the narration service.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/book-expert/events"
)

// ErrStatusNotFound indicates that no progress snapshot exists for a job id,
// either because the job was never submitted or because its entry expired.
var ErrStatusNotFound = errors.New("job status not found")

// ProgressSnapshot is the sole unit of job-status communication. A progress
// of 1.0 is the only terminal signal; both success and failure reach it, and
// Success only distinguishes the two for display.
type ProgressSnapshot struct {
	Progress float64 `json:"progress"`
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
}

// Terminal reports whether polling clients should stop after this snapshot.
func (s ProgressSnapshot) Terminal() bool {
	return s.Progress >= 1.0
}

// PronunciationRule replaces a literal word with its spoken form. Rules
// belong to a named rule set so different voices can narrate the same text
// with different substitutions.
type PronunciationRule struct {
	Word          string
	Pronunciation string
	RuleSet       string
}

// GenerationRequest is one narration submission as received from a client.
type GenerationRequest struct {
	ElementID            int
	Text                 string
	VoiceID              string
	VoiceModel           string
	PronunciationRuleSet string
	EntryTitle           string
	FileNamePrefix       string
}

// AudioJob is the queue payload for one narration job. The correlation id
// that clients poll with rides in Header.WorkflowID; the queue's own task id
// never leaves the queue package.
type AudioJob struct {
	Header     events.EventHeader `json:"Header"`
	ElementID  int                `json:"ElementID"`
	Text       string             `json:"Text"`
	VoiceID    string             `json:"VoiceID"`
	VoiceModel string             `json:"VoiceModel"`
	EntryTitle string             `json:"EntryTitle"`
	Filename   string             `json:"Filename"`
}

// CorrelationID returns the client-facing job identity.
func (j AudioJob) CorrelationID() string {
	return j.Header.WorkflowID
}

// GeneratedAsset is a finished audio file waiting to be persisted into a
// storage volume.
type GeneratedAsset struct {
	TempPath     string
	Filename     string
	Title        string
	VolumeHandle string
}

// StatusStore persists progress snapshots with a per-key TTL. Exactly one
// worker writes a given key; arbitrarily many readers poll it concurrently.
type StatusStore interface {
	Set(ctx context.Context, key string, snapshot ProgressSnapshot, ttl time.Duration) error
	Get(ctx context.Context, key string) (ProgressSnapshot, error)
}

// Queue durably holds pending narration jobs. Enqueue returns the queue's
// own task id, which callers may log but must not expose for polling.
type Queue interface {
	Enqueue(ctx context.Context, job AudioJob) (string, error)
}

// Synthesizer converts text to raw audio bytes via the vendor API.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, modelID string) ([]byte, error)
}

// AssetStore persists a generated audio file into the volume named by the
// asset's handle, returning the stored asset's id.
type AssetStore interface {
	Save(ctx context.Context, asset GeneratedAsset) (string, error)
}
