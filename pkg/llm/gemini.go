package llm

import "encoding/json"

// GenerateRequest represents a Gemini generateContent request.
type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one role-tagged turn of a Gemini conversation ("user" or "model").
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64-encoded bytes.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig holds Gemini generation parameters.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// GenerateResponse represents a Gemini generateContent response, and also
// each frame of streamGenerateContent.
type GenerateResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

// Text returns the text of the first part of the first candidate.
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// ExtractGeminiDelta parses a streamGenerateContent frame payload.
func ExtractGeminiDelta(payload []byte) (string, error) {
	var resp GenerateResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", err
	}
	return resp.Text(), nil
}
