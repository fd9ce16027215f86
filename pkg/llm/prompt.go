package llm

import "encoding/base64"

// Prompt is the final user turn sent to a backend. It is either a TextPrompt
// or an ImagePrompt.
type Prompt interface {
	PromptText() string
	isPrompt()
}

// TextPrompt is a plain text user turn.
type TextPrompt struct {
	Text string
}

func (p TextPrompt) PromptText() string { return p.Text }
func (TextPrompt) isPrompt()            {}

// ImagePrompt is a user turn carrying text and one image.
type ImagePrompt struct {
	Text  string
	Image *Image
}

func (p ImagePrompt) PromptText() string { return p.Text }
func (ImagePrompt) isPrompt()            {}

// Base64 returns the standard base64 encoding of the image bytes.
func (p ImagePrompt) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Image.Data)
}

// MIMEType returns the image media type, defaulting to JPEG.
func (p ImagePrompt) MIMEType() string {
	if p.Image.MIMEType == "" {
		return "image/jpeg"
	}
	return p.Image.MIMEType
}

// DataURL returns the image as a data: URL.
func (p ImagePrompt) DataURL() string {
	return "data:" + p.MIMEType() + ";base64," + p.Base64()
}

// NewPrompt returns an ImagePrompt when image is set, otherwise a TextPrompt.
func NewPrompt(text string, image *Image) Prompt {
	if image != nil && len(image.Data) > 0 {
		return ImagePrompt{Text: text, Image: image}
	}
	return TextPrompt{Text: text}
}
