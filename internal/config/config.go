// Package config provides the configuration structure for the narration-service.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/narration-service/internal/core"
)

// Defaults applied when the corresponding setting is absent.
const (
	DefaultVoiceModel       = "eleven_multilingual_v2"
	DefaultRuleSet          = "language1"
	defaultStatusTTLSeconds = 1800
	defaultTimeoutSeconds   = 300
)

// ElevenLabsConfig holds the vendor API credentials and voice settings.
// The voice settings are passed through to the API unmodified.
type ElevenLabsConfig struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	VoiceModel      string  `toml:"voice_model"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	Style           float64 `toml:"style"`
	UseSpeakerBoost bool    `toml:"use_speaker_boost"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// Timeout returns the vendor call timeout. Synthesis of long text is slow,
// so the default is minutes-scale.
func (c ElevenLabsConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds <= 0 {
		seconds = defaultTimeoutSeconds
	}

	return time.Duration(seconds) * time.Second
}

// NATSConfig holds the configuration for the job queue.
type NATSConfig struct {
	URL             string `toml:"url"`
	JobStreamName   string `toml:"job_stream_name"`
	JobConsumerName string `toml:"job_consumer_name"`
	JobSubject      string `toml:"job_subject"`
}

// RedisConfig holds the configuration for the job status store.
type RedisConfig struct {
	Addr             string `toml:"addr"`
	StatusTTLSeconds int    `toml:"status_ttl_seconds"`
}

// StatusTTL returns how long a job's status entry survives after its last
// write. Clients only poll while actively waiting, so expiry is acceptable.
func (c RedisConfig) StatusTTL() time.Duration {
	seconds := c.StatusTTLSeconds
	if seconds <= 0 {
		seconds = defaultStatusTTLSeconds
	}

	return time.Duration(seconds) * time.Second
}

// HTTPConfig holds the configuration for the API surface.
type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
	AuthToken  string `toml:"auth_token"`
}

// VolumeConfig maps a storage volume handle to its backing bucket.
type VolumeConfig struct {
	Handle string `toml:"handle"`
	Bucket string `toml:"bucket"`
}

// AssetsConfig holds the configuration for asset persistence.
type AssetsConfig struct {
	VolumeHandle string         `toml:"volume_handle"`
	Volumes      []VolumeConfig `toml:"volumes"`
}

// BucketsByHandle returns the volume handle to bucket mapping.
func (c AssetsConfig) BucketsByHandle() map[string]string {
	buckets := make(map[string]string, len(c.Volumes))
	for _, volume := range c.Volumes {
		buckets[volume.Handle] = volume.Bucket
	}

	return buckets
}

// PronunciationConfig is one configured word substitution. RuleSet may be
// omitted by configurations written before rule sets existed.
type PronunciationConfig struct {
	Word          string `toml:"word"`
	Pronunciation string `toml:"pronunciation"`
	RuleSet       string `toml:"rule_set"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	TempDir     string `toml:"temp_dir"`
}

// Config is the root configuration structure.
type Config struct {
	ElevenLabs     ElevenLabsConfig      `toml:"elevenlabs"`
	NATS           NATSConfig            `toml:"nats"`
	Redis          RedisConfig           `toml:"redis"`
	HTTP           HTTPConfig            `toml:"http"`
	Assets         AssetsConfig          `toml:"assets"`
	Pronunciations []PronunciationConfig `toml:"pronunciations"`
	Paths          PathsConfig           `toml:"paths"`
}

// Rules converts the configured pronunciation table into domain rules.
// Legacy two-field entries are normalized onto the default rule set at load
// time, so nothing downstream branches on the legacy form.
func (c *Config) Rules() []core.PronunciationRule {
	rules := make([]core.PronunciationRule, 0, len(c.Pronunciations))

	for _, entry := range c.Pronunciations {
		ruleSet := entry.RuleSet
		if ruleSet == "" {
			ruleSet = DefaultRuleSet
		}

		rules = append(rules, core.PronunciationRule{
			Word:          entry.Word,
			Pronunciation: entry.Pronunciation,
			RuleSet:       ruleSet,
		})
	}

	return rules
}

// Load loads the configuration for the narration-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	if cfg.ElevenLabs.VoiceModel == "" {
		cfg.ElevenLabs.VoiceModel = DefaultVoiceModel
	}

	return &cfg, nil
}
