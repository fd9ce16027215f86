// Package storage defines how conversation snapshots are persisted locally.
package storage

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/papercomputeco/zyra/pkg/llm"
)

// SchemaVersion is the version tag written to persistent stores.
const SchemaVersion = 1

// Conversation is an immutable snapshot of a session's messages at save time.
type Conversation struct {
	// ID is assigned by the driver, increases monotonically and is never reused.
	ID int64 `json:"id" yaml:"id"`

	// Messages in insertion order. The first one is used as the list preview.
	Messages []llm.Message `json:"messages" yaml:"messages"`

	// Timestamp is set at save time and is the only list sort key.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Preview returns the text of the opening message.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Text
}

// Driver persists conversations. Every method is atomic on its own; there
// are no transactions spanning calls.
type Driver interface {
	// Append stores messages as a new conversation with a fresh id and
	// timestamp. Existing records are never overwritten.
	Append(ctx context.Context, messages []llm.Message) (*Conversation, error)

	// List returns every conversation, most recent first.
	List(ctx context.Context) ([]*Conversation, error)

	// Get returns one conversation or ErrNotFound.
	Get(ctx context.Context, id int64) (*Conversation, error)

	// Delete removes one conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error

	// Clear removes every conversation.
	Clear(ctx context.Context) error

	// Close releases the driver's resources.
	Close() error
}

// ErrNotFound is returned when a conversation doesn't exist.
type ErrNotFound struct {
	ID int64
}

func (e ErrNotFound) Error() string {
	if e.ID == 0 {
		return "conversation not found"
	}

	return "conversation not found: " + strconv.FormatInt(e.ID, 10)
}

// SortByRecency orders conversations by descending timestamp, newest id
// first on ties.
func SortByRecency(convs []*Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].Timestamp.Equal(convs[j].Timestamp) {
			return convs[i].Timestamp.After(convs[j].Timestamp)
		}
		return convs[i].ID > convs[j].ID
	})
}

// StripImages returns a copy of messages without image attachments.
func StripImages(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Text: m.Text, IsUser: m.IsUser}
	}
	return out
}
