// Package config_test tests the configuration loading for the narration-service.
package config_test

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narration-service/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[elevenlabs]
api_key = "xi-test-key"
base_url = "https://api.elevenlabs.io"
voice_model = "eleven_multilingual_v2"
stability = 0.5
similarity_boost = 0.75
style = 0.0
use_speaker_boost = true
timeout_seconds = 300

[nats]
url = "nats://127.0.0.1:4222"
job_stream_name = "NARRATION_JOBS"
job_consumer_name = "narration-workers"
job_subject = "narration.jobs"

[redis]
addr = "127.0.0.1:6379"
status_ttl_seconds = 1800

[http]
listen_addr = ":8080"

[assets]
volume_handle = "audioFiles"

[[assets.volumes]]
handle = "audioFiles"
bucket = "AUDIO_FILES"

[[pronunciations]]
word = "DDEV"
pronunciation = "deedev"
rule_set = "language1"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "xi-test-key", cfg.ElevenLabs.APIKey)
	assert.Equal(t, "https://api.elevenlabs.io", cfg.ElevenLabs.BaseURL)
	assert.Equal(t, "eleven_multilingual_v2", cfg.ElevenLabs.VoiceModel)
	assert.InEpsilon(t, 0.5, cfg.ElevenLabs.Stability, 0.001)
	assert.InEpsilon(t, 0.75, cfg.ElevenLabs.SimilarityBoost, 0.001)
	assert.True(t, cfg.ElevenLabs.UseSpeakerBoost)
	assert.Equal(t, 5*time.Minute, cfg.ElevenLabs.Timeout())

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "NARRATION_JOBS", cfg.NATS.JobStreamName)
	assert.Equal(t, "narration-workers", cfg.NATS.JobConsumerName)
	assert.Equal(t, "narration.jobs", cfg.NATS.JobSubject)

	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Redis.StatusTTL())

	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, "audioFiles", cfg.Assets.VolumeHandle)
	assert.Equal(t, map[string]string{"audioFiles": "AUDIO_FILES"}, cfg.Assets.BucketsByHandle())
}

func TestRulesNormalizeLegacyEntries(t *testing.T) {
	t.Parallel()

	tomlData := `
[[pronunciations]]
word = "DDEV"
pronunciation = "deedev"

[[pronunciations]]
word = "colonel"
pronunciation = "kernel"
rule_set = "language2"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	rules := cfg.Rules()
	require.Len(t, rules, 2)

	assert.Equal(t, "language1", rules[0].RuleSet, "legacy entries default to language1")
	assert.Equal(t, "language2", rules[1].RuleSet)
}

func TestDurationDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	assert.Equal(t, 30*time.Minute, cfg.Redis.StatusTTL())
	assert.Equal(t, 5*time.Minute, cfg.ElevenLabs.Timeout())
}
