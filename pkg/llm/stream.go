package llm

import "encoding/json"

// StreamChunk represents the JSON payload of a single streamed frame.
// Mistral and OpenAI-compatible providers send choices[].delta; simpler
// providers send a top-level delta string.
type StreamChunk struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    Role   `json:"role,omitempty"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices,omitempty"`

	Delta string `json:"delta,omitempty"`
}

// Text returns the incremental text carried by the chunk.
func (c *StreamChunk) Text() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return c.Delta
}

// ExtractDelta parses a frame payload and returns its incremental text.
func ExtractDelta(payload []byte) (string, error) {
	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", err
	}
	return chunk.Text(), nil
}
