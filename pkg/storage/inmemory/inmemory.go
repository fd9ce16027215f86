// Package inmemory implements storage.Driver in process memory.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/storage"
)

var _ storage.Driver = (*Driver)(nil)

// Driver keeps conversations in a map. Nothing survives a restart.
type Driver struct {
	mu     sync.RWMutex
	convs  map[int64]*storage.Conversation
	nextID int64
	now    func() time.Time
}

// NewDriver creates an empty Driver.
func NewDriver() *Driver {
	return &Driver{
		convs:  make(map[int64]*storage.Conversation),
		nextID: 1,
		now:    time.Now,
	}
}

// NewDriverWithClock creates an empty Driver stamping records with now.
func NewDriverWithClock(now func() time.Time) *Driver {
	d := NewDriver()
	d.now = now
	return d
}

func (d *Driver) Append(_ context.Context, messages []llm.Message) (*storage.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conv := &storage.Conversation{
		ID:        d.nextID,
		Messages:  storage.StripImages(messages),
		Timestamp: d.now().UTC(),
	}
	d.nextID++
	d.convs[conv.ID] = conv

	return clone(conv), nil
}

func (d *Driver) List(_ context.Context) ([]*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	convs := make([]*storage.Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		convs = append(convs, clone(c))
	}

	storage.SortByRecency(convs)
	return convs, nil
}

func (d *Driver) Get(_ context.Context, id int64) (*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.convs[id]
	if !ok {
		return nil, storage.ErrNotFound{ID: id}
	}
	return clone(c), nil
}

func (d *Driver) Delete(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.convs, id)
	return nil
}

func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.convs)
	return nil
}

func (d *Driver) Close() error {
	return nil
}

func clone(c *storage.Conversation) *storage.Conversation {
	out := *c
	out.Messages = append([]llm.Message(nil), c.Messages...)
	return &out
}
