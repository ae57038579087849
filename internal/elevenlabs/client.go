// Package elevenlabs provides the synchronous client for the ElevenLabs
// text-to-speech API.
//
// The API signals errors as JSON bodies and audio as raw bytes. The client
// disambiguates on the HTTP status code and Content-Type header first, and
// only falls back to a parse attempt when neither is conclusive.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API endpoints and headers.
const (
	DefaultBaseURL = "https://api.elevenlabs.io"

	synthesizePathPrefix = "/v1/text-to-speech/"

	headerContentType = "Content-Type"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeAudio  = "audio/"
)

// Static errors.
var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrVoiceIDEmpty       = errors.New("voice id cannot be empty")
	ErrReceivedEmptyAudio = errors.New("received empty audio data")
)

// VoiceSettings is the voice_settings object passed through to the API
// unmodified from configuration.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// synthesisRequest is the JSON body of one synthesis call.
type synthesisRequest struct {
	Text          string        `json:"text"`
	VoiceID       string        `json:"voice_id"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// VendorError is a structured error reported by the API itself, as opposed
// to a transport failure reaching it. Message carries the most specific
// human-readable detail the response offered.
type VendorError struct {
	StatusCode int
	Message    string
}

func (e *VendorError) Error() string {
	return e.Message
}

// errorDetail is the nested detail object of an API error body.
type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// errorPayload is the envelope of an API error body. Detail may be an
// object, a bare string, or something else entirely, so it is parsed lazily.
type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

// Client is a synchronous HTTP client for the text-to-speech endpoint. One
// call per job; no retry or backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	settings   VoiceSettings
}

// NewClient creates a client for the API at baseURL. The timeout applies to
// the whole synthesis call and should be minutes-scale; callers run off the
// request/response cycle, so blocking here is acceptable.
func NewClient(baseURL, apiKey string, settings VoiceSettings, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		settings:   settings,
	}
}

// Synthesize sends text to the per-voice endpoint and returns the raw audio
// bytes. API-reported failures come back as *VendorError; anything else is a
// transport failure.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, modelID string) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	if voiceID == "" {
		return nil, ErrVoiceIDEmpty
	}

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		VoiceID:       voiceID,
		ModelID:       modelID,
		VoiceSettings: c.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := c.baseURL + synthesizePathPrefix + voiceID

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to ElevenLabs API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return c.interpretResponse(resp, payload)
}

// interpretResponse classifies a response as audio or vendor error. Status
// code wins, then Content-Type; a JSON parse attempt is the last resort for
// responses that declare neither.
func (c *Client) interpretResponse(resp *http.Response, payload []byte) ([]byte, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, c.vendorError(resp.StatusCode, payload)
	}

	contentType := resp.Header.Get(headerContentType)

	switch {
	case strings.HasPrefix(contentType, contentTypeAudio):
		// Declared audio.
	case strings.HasPrefix(contentType, contentTypeJSON):
		return nil, c.vendorError(resp.StatusCode, payload)
	case json.Valid(payload) && len(payload) > 0:
		return nil, c.vendorError(resp.StatusCode, payload)
	}

	if len(payload) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return payload, nil
}

// vendorError extracts the most specific message available from an API
// error body: the nested detail.message field, then a bare string detail,
// then a dump of the whole payload.
func (c *Client) vendorError(statusCode int, payload []byte) *VendorError {
	var envelope errorPayload

	err := json.Unmarshal(payload, &envelope)
	if err == nil && len(envelope.Detail) > 0 {
		var detail errorDetail
		if json.Unmarshal(envelope.Detail, &detail) == nil && detail.Message != "" {
			return &VendorError{StatusCode: statusCode, Message: detail.Message}
		}

		var message string
		if json.Unmarshal(envelope.Detail, &message) == nil && message != "" {
			return &VendorError{StatusCode: statusCode, Message: message}
		}
	}

	return &VendorError{StatusCode: statusCode, Message: string(payload)}
}
