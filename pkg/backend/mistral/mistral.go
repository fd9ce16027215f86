// Package mistral is a chat backend for the Mistral chat completions API.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/stream"
)

const (
	DefaultBaseURL     = "https://api.mistral.ai/v1"
	DefaultModel       = "mistral-large-latest"
	DefaultVisionModel = "pixtral-12b-2409"
)

// Config is the Mistral backend configuration.
type Config struct {
	APIKey string

	// BaseURL of the API, without the /chat/completions suffix.
	BaseURL string

	// Model is used for text turns, VisionModel when an image is attached.
	Model       string
	VisionModel string

	// SystemPrompt is sent as the first message of every request.
	SystemPrompt string

	Options llm.Options

	// Stream requests a server-sent event response.
	Stream bool
}

// Client sends conversations to Mistral.
type Client struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a Client, filling unset config values with defaults.
func New(config Config, l *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.VisionModel == "" {
		config.VisionModel = DefaultVisionModel
	}

	return &Client{
		config: config,
		logger: logger.OrNop(l),
		httpClient: &http.Client{
			// LLM requests can be slow; streamed bodies are bounded by the context
			Timeout: 5 * time.Minute,
		},
	}
}

// Name identifies the backend.
func (c *Client) Name() string {
	return "mistral"
}

// Send posts history plus prompt and returns the reply as a stream of
// snapshots. A non-success status is returned as *llm.APIError before any
// content is read.
func (c *Client) Send(ctx context.Context, history []llm.Message, prompt llm.Prompt) (*stream.Stream, error) {
	req := c.buildRequest(history, prompt)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	c.logger.Debug("sending chat request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, c.apiError(httpResp)
	}

	if req.Stream {
		return stream.Start(ctx, httpResp.Body, stream.WithLogger(c.logger)), nil
	}

	defer httpResp.Body.Close()

	var resp llm.ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return stream.FromText(resp.Text()), nil
}

func (c *Client) buildRequest(history []llm.Message, prompt llm.Prompt) *llm.ChatRequest {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	if c.config.SystemPrompt != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: c.config.SystemPrompt})
	}
	for _, msg := range history {
		// Mistral rejects empty turns, e.g. a stored reply that never arrived.
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: msg.Role(), Content: msg.Text})
	}

	model := c.config.Model
	switch p := prompt.(type) {
	case llm.ImagePrompt:
		model = c.config.VisionModel
		messages = append(messages, llm.ChatMessage{
			Role: llm.RoleUser,
			Content: []llm.ContentPart{
				{Type: "text", Text: p.Text},
				{Type: "image_url", ImageURL: &llm.ImageURL{URL: p.DataURL()}},
			},
		})
	default:
		messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: prompt.PromptText()})
	}

	return &llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      c.config.Stream,
		Temperature: c.config.Options.Temperature,
		MaxTokens:   c.config.Options.MaxTokens,
	}
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	c.logger.Error("upstream returned error",
		zap.Int("status", resp.StatusCode),
		zap.String("body", logger.Truncate(string(body), 200)),
	)

	var errResp llm.ErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg = errResp.Text()
	}

	return &llm.APIError{Backend: c.Name(), StatusCode: resp.StatusCode, Message: msg}
}
