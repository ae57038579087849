// Package worker_test tests the audio generation pipeline with mocked ports.
package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/elevenlabs"
	"github.com/book-expert/narration-service/internal/worker"
)

var errNetworkDown = errors.New("dial tcp: connection refused")

type recordingStatusStore struct {
	mu        sync.Mutex
	snapshots []core.ProgressSnapshot
	keys      []string
}

func (s *recordingStatusStore) Set(_ context.Context, key string, snapshot core.ProgressSnapshot, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snapshot)
	s.keys = append(s.keys, key)

	return nil
}

func (s *recordingStatusStore) Get(_ context.Context, _ string) (core.ProgressSnapshot, error) {
	return core.ProgressSnapshot{}, core.ErrStatusNotFound
}

func (s *recordingStatusStore) last() core.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshots[len(s.snapshots)-1]
}

type mockSynthesizer struct {
	audio []byte
	err   error
	calls int
}

func (m *mockSynthesizer) Synthesize(_ context.Context, _, _, _ string) ([]byte, error) {
	m.calls++

	if m.err != nil {
		return nil, m.err
	}

	return m.audio, nil
}

type mockAssetStore struct {
	assetID  string
	err      error
	saved    []core.GeneratedAsset
	tempData []byte
}

func (m *mockAssetStore) Save(_ context.Context, asset core.GeneratedAsset) (string, error) {
	m.saved = append(m.saved, asset)

	// Capture the temp file while it still exists; the worker removes it
	// after Save returns.
	data, readErr := os.ReadFile(asset.TempPath)
	if readErr == nil {
		m.tempData = data
	}

	if m.err != nil {
		return "", m.err
	}

	return m.assetID, nil
}

func testJob() core.AudioJob {
	return core.AudioJob{
		Header:     events.EventHeader{WorkflowID: "corr-1"},
		ElementID:  42,
		Text:       "Narrate this",
		VoiceID:    "voice-1",
		VoiceModel: "eleven_multilingual_v2",
		EntryTitle: "My Entry",
		Filename:   "my-entry-audio-20260901-120000.mp3",
	}
}

func newGenerator(
	t *testing.T,
	statuses core.StatusStore,
	assets core.AssetStore,
	synthesizer core.Synthesizer,
) *worker.Generator {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	return worker.New(statuses, assets, synthesizer, "audioFiles", t.TempDir(), 30*time.Minute, testLogger)
}

func TestProcessReportsFullProgressSequence(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatusStore{}
	assets := &mockAssetStore{assetID: "asset-123"}
	synthesizer := &mockSynthesizer{audio: []byte("mp3-bytes")}

	generator := newGenerator(t, statuses, assets, synthesizer)
	generator.Process(context.Background(), testJob())

	require.Len(t, statuses.snapshots, 6)

	expected := []core.ProgressSnapshot{
		{Progress: 0.1, Success: true, Message: "Generating audio for My Entry"},
		{Progress: 0.5, Success: true, Message: "Processing the audio file"},
		{Progress: 0.65, Success: true, Message: "Audio file processed in temporary directory"},
		{Progress: 0.75, Success: true, Message: "Saving the file to the assets"},
		{Progress: 0.9, Success: true, Message: "Asset created with ID: asset-123"},
		{Progress: 1, Success: true, Message: "✅ Audio file: My Entry - my-entry-audio-20260901-120000.mp3"},
	}
	assert.Equal(t, expected, statuses.snapshots)

	for _, key := range statuses.keys {
		assert.Equal(t, "corr-1", key, "all snapshots belong to the correlation id")
	}

	require.Len(t, assets.saved, 1)
	assert.Equal(t, "My Entry (audio)", assets.saved[0].Title)
	assert.Equal(t, "audioFiles", assets.saved[0].VolumeHandle)
	assert.Equal(t, []byte("mp3-bytes"), assets.tempData)
	assert.Equal(t, 1, synthesizer.calls)
}

func TestProcessRemovesTempFileAfterSave(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatusStore{}
	assets := &mockAssetStore{assetID: "asset-123"}
	synthesizer := &mockSynthesizer{audio: []byte("mp3-bytes")}

	generator := newGenerator(t, statuses, assets, synthesizer)
	generator.Process(context.Background(), testJob())

	require.Len(t, assets.saved, 1)
	_, err := os.Stat(assets.saved[0].TempPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessVendorErrorFailsTerminally(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatusStore{}
	assets := &mockAssetStore{assetID: "asset-123"}
	synthesizer := &mockSynthesizer{err: &elevenlabs.VendorError{
		StatusCode: 401,
		Message:    "Invalid API key.",
	}}

	generator := newGenerator(t, statuses, assets, synthesizer)
	generator.Process(context.Background(), testJob())

	last := statuses.last()
	assert.InDelta(t, 1.0, last.Progress, 0)
	assert.False(t, last.Success)
	assert.Equal(t, "Error in response from ElevenLabs API. Details: Invalid API key.", last.Message)

	assert.Equal(t, 1, synthesizer.calls, "a failed synthesis call is never retried")
	assert.Empty(t, assets.saved)
}

func TestProcessTransportErrorFailsTerminally(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatusStore{}
	synthesizer := &mockSynthesizer{err: errNetworkDown}

	generator := newGenerator(t, statuses, &mockAssetStore{}, synthesizer)
	generator.Process(context.Background(), testJob())

	last := statuses.last()
	assert.InDelta(t, 1.0, last.Progress, 0)
	assert.False(t, last.Success)
	assert.Contains(t, last.Message, "Error contacting the ElevenLabs API. Details:")
	assert.Contains(t, last.Message, errNetworkDown.Error())
	assert.Equal(t, 1, synthesizer.calls)
}

func TestProcessAssetSaveFailureFailsTerminally(t *testing.T) {
	t.Parallel()

	statuses := &recordingStatusStore{}
	assets := &mockAssetStore{err: errors.New("volume not found with handle: audioFiles")}
	synthesizer := &mockSynthesizer{audio: []byte("mp3-bytes")}

	generator := newGenerator(t, statuses, assets, synthesizer)
	generator.Process(context.Background(), testJob())

	last := statuses.last()
	assert.InDelta(t, 1.0, last.Progress, 0)
	assert.False(t, last.Success)
	assert.Contains(t, last.Message, "Error saving the audio file to the assets.")
	assert.Contains(t, last.Message, "volume not found with handle")

	require.Len(t, assets.saved, 1)
	_, err := os.Stat(assets.saved[0].TempPath)
	require.ErrorIs(t, err, os.ErrNotExist, "temp files are removed on failure too")
}
