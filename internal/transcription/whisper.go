package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/fault"
)

const stageTranscribe = "transcribe"

// Config contains Whisper client configuration
type Config struct {
	BaseURL  string // OpenAI-compatible API root, e.g. https://api.openai.com/v1
	APIKey   string
	Model    string
	Language string
	Prompt   string
	Timeout  time.Duration
}

// Client transcribes utterances with the Whisper API
type Client struct {
	config Config
	api    *openai.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	emptyResults    uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

var _ Provider = (*Client)(nil)

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	EmptyResults    uint64        `json:"empty_results"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a Whisper client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		config: config,
		api:    openai.NewClientWithConfig(apiConfig),
	}, nil
}

// Transcribe uploads the utterance and returns the recognized text
func (c *Client) Transcribe(ctx context.Context, utterance *audio.Utterance) (string, error) {
	wav, err := utterance.WAV()
	if err != nil {
		return "", fault.New(fault.KindRecognition, stageTranscribe, fmt.Errorf("failed to encode utterance: %w", err))
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.Model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   c.config.Prompt,
		Language: c.config.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.incrementFailedRequests()
		return "", classify(err)
	}

	c.updateAvgResponseTime(time.Since(startTime))

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		c.incrementEmptyResults()
		return "", fault.Newf(fault.KindUnintelligible, stageTranscribe,
			"no words recognized in %s of audio", utterance.Duration())
	}

	c.incrementSuccessRequests()
	return text, nil
}

// classify maps API client errors to recognition faults
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fault.New(fault.KindRecognition, stageTranscribe,
			fmt.Errorf("API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fault.New(fault.KindRecognition, stageTranscribe,
			fmt.Errorf("request failed (status %d): %w", reqErr.HTTPStatusCode, err))
	}

	return fault.New(fault.KindRecognition, stageTranscribe, fmt.Errorf("service unavailable: %w", err))
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementEmptyResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emptyResults++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		EmptyResults:    c.emptyResults,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
