package turn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/skypro1111/voiceloop/internal/fault"
)

const (
	stageTurn = "turn"

	// maxErrorBody limits how much of a failed response is kept for the log
	maxErrorBody = 512
)

// Config contains turn service client configuration
type Config struct {
	Endpoint  string
	Timeout   time.Duration // bounds the request including the streamed reply
	UserAgent string
}

// Request is the JSON body of a turn
type Request struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Client sends turns to the conversational service
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a turn service client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "voiceloop/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// SendTurn posts message for the session and returns the reply body. The
// caller must close the stream. Connection failures and non-2xx statuses
// are transport faults, as are read failures on the returned stream.
func (c *Client) SendTurn(ctx context.Context, message, sessionID string) (io.ReadCloser, error) {
	if message == "" {
		return nil, fmt.Errorf("turn message cannot be empty")
	}

	body, err := sonic.Marshal(Request{Message: message, ID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav, audio/mpeg, application/octet-stream")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fault.New(fault.KindTransport, stageTurn, fmt.Errorf("HTTP request failed: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fault.Newf(fault.KindTransport, stageTurn, "HTTP error %d: %s",
			resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return &replyStream{body: resp.Body}, nil
}

// replyStream classifies read failures of a reply body as transport faults
type replyStream struct {
	body io.ReadCloser
	read int64
}

func (r *replyStream) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.read += int64(n)

	if err != nil && !errors.Is(err, io.EOF) {
		return n, fault.New(fault.KindTransport, stageTurn,
			fmt.Errorf("reply stream interrupted after %d bytes: %w", r.read, err))
	}
	return n, err
}

func (r *replyStream) Close() error {
	return r.body.Close()
}
