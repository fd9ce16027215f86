package llm

// ChatRequest represents a chat completion request (Mistral / OpenAI-compatible).
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatMessage is one role-tagged message of a ChatRequest.
// Content is either a string or a []ContentPart for multimodal turns.
type ChatMessage struct {
	Role    Role `json:"role"`
	Content any  `json:"content"`
}

// ContentPart is one element of a multimodal content list.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, usually by data: URL.
type ImageURL struct {
	URL string `json:"url"`
}
