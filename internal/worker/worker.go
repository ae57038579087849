// Package worker runs narration jobs: synthesize audio, stage it in a temp
// file, and persist it as an asset, reporting progress after every step.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/elevenlabs"
)

// Progress milestones reported over a job's lifetime. Failure jumps straight
// to 1.0 with Success false; 1.0 is the only value that stops a poller.
const (
	progressStarted   = 0.1
	progressAudio     = 0.5
	progressStaged    = 0.65
	progressSaving    = 0.75
	progressSaved     = 0.9
	progressCompleted = 1.0
)

// Generator processes one audio job at a time. It is the only writer of a
// job's status key; everything else only reads.
type Generator struct {
	statuses     core.StatusStore
	assets       core.AssetStore
	synthesizer  core.Synthesizer
	volumeHandle string
	tempDir      string
	statusTTL    time.Duration
	log          *logger.Logger
}

// New creates a generator that saves audio into the volume named by
// volumeHandle and stages temp files under tempDir.
func New(
	statuses core.StatusStore,
	assets core.AssetStore,
	synthesizer core.Synthesizer,
	volumeHandle, tempDir string,
	statusTTL time.Duration,
	log *logger.Logger,
) *Generator {
	return &Generator{
		statuses:     statuses,
		assets:       assets,
		synthesizer:  synthesizer,
		volumeHandle: volumeHandle,
		tempDir:      tempDir,
		statusTTL:    statusTTL,
		log:          log,
	}
}

// Process runs one job end to end. It never returns an error to the queue:
// every failure is terminal for the job and is reported through the status
// store, because requeueing would re-bill the synthesis call.
func (g *Generator) Process(ctx context.Context, job core.AudioJob) {
	jobID := job.CorrelationID()

	g.report(ctx, jobID, progressStarted, true,
		fmt.Sprintf("Generating audio for %s", job.EntryTitle))

	audio, err := g.synthesizer.Synthesize(ctx, job.Text, job.VoiceID, job.VoiceModel)
	if err != nil {
		g.fail(ctx, jobID, synthesisFailureMessage(err))

		return
	}

	g.report(ctx, jobID, progressAudio, true, "Processing the audio file")

	tempPath, err := g.stageAudio(job.Filename, audio)
	if err != nil {
		g.log.Error("Failed to stage audio for job %s: %v", jobID, err)
		g.fail(ctx, jobID, fmt.Sprintf("Error processing the audio file. Details: %v", err))

		return
	}

	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			g.log.Error("Failed to remove temp file %s: %v", tempPath, removeErr)
		}
	}()

	g.report(ctx, jobID, progressStaged, true, "Audio file processed in temporary directory")
	g.report(ctx, jobID, progressSaving, true, "Saving the file to the assets")

	assetID, err := g.assets.Save(ctx, core.GeneratedAsset{
		TempPath:     tempPath,
		Filename:     job.Filename,
		Title:        job.EntryTitle + " (audio)",
		VolumeHandle: g.volumeHandle,
	})
	if err != nil {
		g.log.Error("Failed to save asset for job %s: %v", jobID, err)
		g.fail(ctx, jobID, fmt.Sprintf("Error saving the audio file to the assets. %v", err))

		return
	}

	g.report(ctx, jobID, progressSaved, true, fmt.Sprintf("Asset created with ID: %s", assetID))
	g.report(ctx, jobID, progressCompleted, true,
		fmt.Sprintf("✅ Audio file: %s - %s", job.EntryTitle, job.Filename))

	g.log.Info("Completed narration job %s: %s", jobID, job.Filename)
}

// stageAudio writes the audio bytes to a unique file under tempDir. The
// caller owns removal of the returned path.
func (g *Generator) stageAudio(filename string, audio []byte) (string, error) {
	file, err := os.CreateTemp(g.tempDir, "narration-*-"+filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, writeErr := file.Write(audio)
	closeErr := file.Close()

	if writeErr != nil {
		_ = os.Remove(file.Name())

		return "", fmt.Errorf("failed to write temp file '%s': %w", file.Name(), writeErr)
	}

	if closeErr != nil {
		_ = os.Remove(file.Name())

		return "", fmt.Errorf("failed to close temp file '%s': %w", file.Name(), closeErr)
	}

	return file.Name(), nil
}

// synthesisFailureMessage distinguishes vendor rejections, which carry a
// message worth showing, from transport failures, which do not.
func synthesisFailureMessage(err error) string {
	var vendorErr *elevenlabs.VendorError
	if errors.As(err, &vendorErr) {
		return fmt.Sprintf("Error in response from ElevenLabs API. Details: %s", vendorErr.Message)
	}

	return fmt.Sprintf("Error contacting the ElevenLabs API. Details: %v", err)
}

func (g *Generator) fail(ctx context.Context, jobID, message string) {
	g.report(ctx, jobID, progressCompleted, false, message)
}

func (g *Generator) report(ctx context.Context, jobID string, progress float64, success bool, message string) {
	snapshot := core.ProgressSnapshot{
		Progress: progress,
		Success:  success,
		Message:  message,
	}

	err := g.statuses.Set(ctx, jobID, snapshot, g.statusTTL)
	if err != nil {
		// Status writes are best effort; the job itself keeps going.
		g.log.Error("Failed to write status for job %s at %.2f: %v", jobID, progress, err)
	}
}
