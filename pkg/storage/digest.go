package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/zyra/pkg/llm"
)

// Digest returns the content hash (SHA-256, hex-encoded) of a message list.
// Two snapshots with the same messages have the same digest, regardless of
// id or timestamp.
func Digest(messages []llm.Message) string {
	data, err := json.Marshal(StripImages(messages))
	if err != nil {
		panic("failed to marshal digest input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Duplicates maps the id of every conversation whose messages are identical
// to an older conversation onto the id of the oldest such conversation.
func Duplicates(convs []*Conversation) map[int64]int64 {
	oldest := make(map[string]*Conversation, len(convs))
	for _, c := range convs {
		d := Digest(c.Messages)
		if o, ok := oldest[d]; !ok || c.ID < o.ID {
			oldest[d] = c
		}
	}

	dups := make(map[int64]int64)
	for _, c := range convs {
		if o := oldest[Digest(c.Messages)]; o.ID != c.ID {
			dups[c.ID] = o.ID
		}
	}
	return dups
}
