// Package gemini is a chat backend for the Google Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/stream"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel       = "gemini-pro"
	DefaultVisionModel = "gemini-pro-vision"
)

// Config is the Gemini backend configuration.
type Config struct {
	APIKey  string
	BaseURL string

	Model       string
	VisionModel string

	// SystemPrompt is sent as an opening user turn.
	SystemPrompt string

	Options llm.Options

	// Stream uses streamGenerateContent with server-sent events instead of
	// a single generateContent response.
	Stream bool
}

// Client sends conversations to Gemini.
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
			Timeout: 5 * time.Minute,
		},
	}
}

// Name identifies the backend.
func (c *Client) Name() string {
	return "gemini"
}

// Send posts history plus prompt. Non-streaming replies are returned as an
// already finished stream.
func (c *Client) Send(ctx context.Context, history []llm.Message, prompt llm.Prompt) (*stream.Stream, error) {
	model, req := c.buildRequest(history, prompt)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.endpoint(model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending generate request",
		zap.String("model", model),
		zap.Int("content_count", len(req.Contents)),
		zap.Bool("stream", c.config.Stream),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, c.apiError(httpResp)
	}

	if c.config.Stream {
		return stream.Start(ctx, httpResp.Body,
			stream.WithLogger(c.logger),
			stream.WithDeltaFunc(llm.ExtractGeminiDelta),
		), nil
	}

	defer httpResp.Body.Close()

	var resp llm.GenerateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return stream.FromText(resp.Text()), nil
}

func (c *Client) endpoint(model string) string {
	method := ":generateContent"
	query := url.Values{"key": {c.config.APIKey}}
	if c.config.Stream {
		method = ":streamGenerateContent"
		query.Set("alt", "sse")
	}

	return c.config.BaseURL + "/models/" + url.PathEscape(model) + method + "?" + query.Encode()
}

func (c *Client) buildRequest(history []llm.Message, prompt llm.Prompt) (string, *llm.GenerateRequest) {
	contents := make([]llm.Content, 0, len(history)+2)
	if c.config.SystemPrompt != "" {
		contents = append(contents, llm.Content{
			Role:  "user",
			Parts: []llm.Part{{Text: c.config.SystemPrompt}},
		})
	}
	for _, msg := range history {
		// An empty text part serializes as {} and is rejected.
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := "model"
		if msg.IsUser {
			role = "user"
		}
		contents = append(contents, llm.Content{Role: role, Parts: []llm.Part{{Text: msg.Text}}})
	}

	model := c.config.Model
	final := llm.Content{Role: "user", Parts: []llm.Part{{Text: prompt.PromptText()}}}
	if p, ok := prompt.(llm.ImagePrompt); ok {
		model = c.config.VisionModel
		final.Parts = append(final.Parts, llm.Part{
			InlineData: &llm.InlineData{MIMEType: p.MIMEType(), Data: p.Base64()},
		})
	}
	contents = append(contents, final)

	return model, &llm.GenerateRequest{
		Contents: contents,
		GenerationConfig: &llm.GenerationConfig{
			Temperature:     c.config.Options.Temperature,
			MaxOutputTokens: c.config.Options.MaxTokens,
		},
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
