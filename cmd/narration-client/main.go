// main package for the narration command-line client
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/book-expert/narration-service/internal/core"
)

// Polling cadence: one status fetch per second, giving up only after a long
// unbroken run of fetch failures. A single flaky fetch resets nothing.
const (
	pollInterval           = time.Second
	maxConsecutiveFailures = 100
	requestTimeout         = 30 * time.Second
)

const fetchFailureMessage = "Error fetching job status. This may be an issue with the job queue."

var (
	errSubmissionRejected = errors.New("submission rejected")
	errJobFailed          = errors.New("job failed")
	errStatusFetchFailed  = errors.New("status fetch failed")
	errTooManyFetchErrors = errors.New(fetchFailureMessage)
)

type appFlags struct {
	serverURL string
	authToken string
	text      string
	voiceID   string
	title     string
	prefix    string
	ruleSet   string
	elementID int
}

// Client talks to the narration service's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
}

// NewClient creates an API client for the service at baseURL.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		authToken:  authToken,
	}
}

type submitRequest struct {
	Text                 string `json:"text"`
	VoiceID              string `json:"voiceId"`
	ElementID            int    `json:"elementId"`
	EntryTitle           string `json:"entryTitle"`
	FileNamePrefix       string `json:"fileNamePrefix"`
	PronunciationRuleSet string `json:"pronunciationRuleSet"`
}

type submitResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"jobId"`
	BespokenJobID string `json:"bespokenJobId"`
	Filename      string `json:"filename"`
	Message       string `json:"message"`
}

// Submit queues one narration job and returns the service's receipt.
func (c *Client) Submit(ctx context.Context, payload submitRequest) (submitResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return submitResponse{}, fmt.Errorf("failed to marshal submission: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/narration/process-text", bytes.NewReader(body))
	if err != nil {
		return submitResponse{}, fmt.Errorf("failed to build submission request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return submitResponse{}, fmt.Errorf("failed to submit job: %w", err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return submitResponse{}, fmt.Errorf("%w: unexpected status %d", errSubmissionRejected, response.StatusCode)
	}

	var decoded submitResponse

	err = json.NewDecoder(response.Body).Decode(&decoded)
	if err != nil {
		return submitResponse{}, fmt.Errorf("failed to decode submission response: %w", err)
	}

	if !decoded.Success {
		return submitResponse{}, fmt.Errorf("%w: %s", errSubmissionRejected, decoded.Message)
	}

	return decoded, nil
}

// JobStatus fetches the job's current progress snapshot.
func (c *Client) JobStatus(ctx context.Context, jobID string) (core.ProgressSnapshot, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/narration/job-status?jobId="+url.QueryEscape(jobID), nil)
	if err != nil {
		return core.ProgressSnapshot{}, fmt.Errorf("failed to build status request: %w", err)
	}

	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return core.ProgressSnapshot{}, fmt.Errorf("%w: %w", errStatusFetchFailed, err)
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return core.ProgressSnapshot{}, fmt.Errorf("%w: unexpected status %d", errStatusFetchFailed, response.StatusCode)
	}

	var snapshot core.ProgressSnapshot

	err = json.NewDecoder(response.Body).Decode(&snapshot)
	if err != nil {
		return core.ProgressSnapshot{}, fmt.Errorf("%w: %w", errStatusFetchFailed, err)
	}

	return snapshot, nil
}

func (c *Client) authorize(request *http.Request) {
	if c.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// Poller watches one job until it reaches its terminal snapshot.
type Poller struct {
	client   *Client
	interval time.Duration
	out      io.Writer
}

// NewPoller creates a poller writing progress lines to out.
func NewPoller(client *Client, interval time.Duration, out io.Writer) *Poller {
	return &Poller{client: client, interval: interval, out: out}
}

// Poll fetches the job's status on every tick until the progress reaches 1.0
// or the consecutive-failure budget runs out. A "not found yet" answer is a
// successful fetch and keeps the poller waiting.
func (p *Poller) Poll(ctx context.Context, jobID string) (core.ProgressSnapshot, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	lastMessage := ""

	for {
		select {
		case <-ctx.Done():
			return core.ProgressSnapshot{}, fmt.Errorf("polling cancelled: %w", ctx.Err())
		case <-ticker.C:
		}

		snapshot, err := p.client.JobStatus(ctx, jobID)
		if err != nil {
			failures++
			if failures >= maxConsecutiveFailures {
				return core.ProgressSnapshot{}, errTooManyFetchErrors
			}

			continue
		}

		failures = 0

		if snapshot.Message != "" && snapshot.Message != lastMessage {
			fmt.Fprintf(p.out, "[%3.0f%%] %s\n", snapshot.Progress*100, snapshot.Message)
			lastMessage = snapshot.Message
		}

		if snapshot.Terminal() {
			return snapshot, nil
		}
	}
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.serverURL, "server", "http://localhost:8080", "Narration service base URL")
	flag.StringVar(&flags.authToken, "token", "", "API auth token, if the service requires one")
	flag.StringVar(&flags.text, "text", "", "Text to narrate")
	flag.StringVar(&flags.voiceID, "voice", "", "ElevenLabs voice id")
	flag.StringVar(&flags.title, "title", "", "Entry title used for the file name")
	flag.StringVar(&flags.prefix, "prefix", "", "File name prefix")
	flag.StringVar(&flags.ruleSet, "rule-set", "", "Pronunciation rule set")
	flag.IntVar(&flags.elementID, "element", 0, "Element id the narration belongs to")
	flag.Parse()

	return flags
}

func run() error {
	flags := parseFlags()

	if flags.text == "" {
		flag.Usage()

		return errors.New("--text is required")
	}

	if flags.voiceID == "" {
		flag.Usage()

		return errors.New("--voice is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(flags.serverURL, flags.authToken)

	receipt, err := client.Submit(ctx, submitRequest{
		Text:                 flags.text,
		VoiceID:              flags.voiceID,
		ElementID:            flags.elementID,
		EntryTitle:           flags.title,
		FileNamePrefix:       flags.prefix,
		PronunciationRuleSet: flags.ruleSet,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Queued job %s (file %s)\n", receipt.BespokenJobID, receipt.Filename)

	final, err := NewPoller(client, pollInterval, os.Stdout).Poll(ctx, receipt.BespokenJobID)
	if err != nil {
		return err
	}

	if !final.Success {
		return fmt.Errorf("%w: %s", errJobFailed, final.Message)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
