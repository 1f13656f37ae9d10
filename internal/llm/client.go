package llm

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

	"expense-audit/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks transport-level failures (connection errors,
	// non-2xx statuses). These are retriable by the queue.
	ErrUnavailable = errors.New("llm service unavailable")

	// ErrInvalidResponse marks responses that came back but could not be
	// parsed or failed schema validation. Not retriable at this layer.
	ErrInvalidResponse = errors.New("invalid llm response")
)

// Client talks to an OpenAI-compatible chat/completions endpoint (Groq).
type Client struct {
	cfg        *config.GroqConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.GroqConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete sends one chat/completions request and returns the first choice's
// content. Callers own parsing and validation of the content.
func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body := map[string]interface{}{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]interface{}{"type": "json_object"},
		"messages":        messages,
	}

	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("llm request",
		zap.String("req_id", reqID),
		zap.String("model", c.cfg.Model),
		zap.Int("content_length", len(bs)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.String("req_id", reqID),
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("llm response",
		zap.String("req_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrInvalidResponse, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", ErrInvalidResponse)
	}

	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
