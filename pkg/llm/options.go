package llm

// Options contains model inference parameters shared by the backends.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty" toml:"temperature"` // Creativity (0.0-2.0); nil leaves the backend default
	MaxTokens   int      `json:"max_tokens,omitempty" toml:"max_tokens"`   // Max tokens to generate
}

// DefaultOptions returns the generation parameters used by the chat client.
func DefaultOptions() Options {
	temperature := 0.7
	return Options{
		Temperature: &temperature,
		MaxTokens:   1000,
	}
}
