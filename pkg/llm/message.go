package llm

// Role is the speaker role of a message on the wire.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation transcript.
// Only two speakers exist locally: the user and the assistant.
type Message struct {
	Text   string `json:"text" yaml:"text"`     // Message content, sanitized before display or storage
	IsUser bool   `json:"isUser" yaml:"isUser"` // Speaker, fixed at construction

	// Image is a transient attachment reference for the active session.
	// It is never persisted.
	Image *Image `json:"-" yaml:"-"`
}

// UserMessage creates a user message with an optional image attachment.
func UserMessage(text string, image *Image) Message {
	return Message{Text: text, IsUser: true, Image: image}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text string) Message {
	return Message{Text: text}
}

// Role returns the wire role for the message speaker.
func (m Message) Role() Role {
	if m.IsUser {
		return RoleUser
	}
	return RoleAssistant
}

// Image is an in-memory image attachment.
type Image struct {
	Name     string // Display name, usually the source file name
	MIMEType string // e.g. "image/jpeg"
	Data     []byte
}
