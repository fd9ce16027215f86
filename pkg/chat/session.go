// Package chat drives one conversation against an LLM backend: it keeps the
// transcript, streams replies into it and saves finished exchanges.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/sanitize"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/stream"
)

// Backend sends a conversation to an LLM and returns the reply stream.
type Backend interface {
	Name() string
	Send(ctx context.Context, history []llm.Message, prompt llm.Prompt) (*stream.Stream, error)
}

// Input is one user turn.
type Input struct {
	Text  string
	Image *llm.Image
}

// Session owns the transcript of the active conversation. Turns are
// serialized: Submit returns ErrBusy while a reply is open.
type Session struct {
	id        string
	backend   Backend
	store     storage.Driver
	sanitizer *sanitize.Sanitizer
	limiter   *sanitize.RateLimiter
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	err        error
	transcript []llm.Message // sanitized, what is displayed and stored
	history    []llm.Message // raw text, what the backend sees
	currentID  int64         // id of the loaded conversation, 0 for a new one
	lastSaved  string        // digest of the last snapshot this session stored
}

// Option configures a Session.
type Option func(*Session)

// WithSanitizer replaces the default sanitizer.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(sess *Session) {
		sess.sanitizer = s
	}
}

// WithRateLimiter admits turns through l, keyed by the backend name.
func WithRateLimiter(l *sanitize.RateLimiter) Option {
	return func(sess *Session) {
		sess.limiter = l
	}
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(sess *Session) {
		sess.logger = logger.OrNop(l)
	}
}

// NewSession creates an idle session with an empty transcript.
func NewSession(backend Backend, store storage.Driver, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		backend:   backend,
		store:     store,
		sanitizer: sanitize.New(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		zap.String("session_id", s.id),
		zap.String("backend", backend.Name()),
	)

	return s
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current turn state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed turn, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transcript returns a copy of the displayed messages.
func (s *Session) Transcript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

// CurrentID returns the id of the loaded conversation, or 0.
func (s *Session) CurrentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Submit sends one user turn and blocks until the reply has ended.
//
// Each sanitized reply snapshot is sent on updates when it is non-nil;
// Submit closes updates before returning. Empty input is ignored. A
// failure before any reply content arrives is returned as *TransportError
// and the turn is not saved; a reply cut short is saved as it stands.
// Storage failures are logged and never returned.
func (s *Session) Submit(ctx context.Context, in Input, updates chan<- string) error {
	if updates != nil {
		defer close(updates)
	}

	if strings.TrimSpace(in.Text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.limiter != nil && !s.limiter.Allow(s.backend.Name()) {
		s.err = ErrRateLimited
		s.mu.Unlock()
		s.logger.Warn("turn rejected by rate limiter")
		return ErrRateLimited
	}

	history := slices.Clone(s.history)
	s.state = Sending
	s.err = nil
	s.transcript = append(s.transcript, llm.UserMessage(s.sanitizer.Sanitize(in.Text), in.Image))
	s.history = append(s.history, llm.UserMessage(in.Text, nil))
	s.mu.Unlock()

	startTime := time.Now()
	s.logger.Debug("sending message",
		zap.Int("history_len", len(history)),
		zap.Bool("image", in.Image != nil),
		zap.String("text", logger.Truncate(in.Text, 50)),
	)

	st, err := s.backend.Send(ctx, history, llm.NewPrompt(in.Text, in.Image))
	if err != nil {
		return s.fail(err)
	}

	streaming := false
	for snapshot := range st.Updates() {
		clean := s.sanitizer.Sanitize(snapshot)

		s.mu.Lock()
		if !streaming {
			streaming = true
			s.state = Streaming
			s.transcript = append(s.transcript, llm.AssistantMessage(clean))
		} else {
			s.transcript[len(s.transcript)-1].Text = clean
		}
		s.mu.Unlock()

		if updates != nil {
			select {
			case updates <- clean:
			case <-ctx.Done():
			}
		}
	}

	res := st.Result()
	if res.Err != nil && res.Bytes == 0 {
		return s.fail(res.Err)
	}

	s.mu.Lock()
	s.state = Settled
	if !streaming {
		s.transcript = append(s.transcript, llm.AssistantMessage(""))
	}
	emptyReply := strings.TrimSpace(res.Text) == ""
	if emptyReply {
		// Backends reject empty assistant turns; drop the unanswered question.
		s.history = s.history[:len(s.history)-1]
	} else {
		s.history = append(s.history, llm.AssistantMessage(res.Text))
	}
	snapshot := slices.Clone(s.transcript)
	s.mu.Unlock()

	if emptyReply {
		s.logger.Warn("reply settled without text", zap.Int64("bytes", res.Bytes))
	}

	if res.Partial {
		s.logger.Warn("reply cut short, saving partial text",
			zap.Error(res.Err),
			zap.Int("reply_len", len(res.Text)),
		)
	}

	s.logger.Debug("reply complete",
		zap.String("content_preview", logger.Truncate(res.Text, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	// Persist with a context that outlives a cancelled turn.
	s.save(context.WithoutCancel(ctx), snapshot)

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()

	return nil
}

// fail ends a turn that produced no reply. The user message stays in the
// transcript; the raw history drops it so the backend never sees a turn
// without an answer.
func (s *Session) fail(err error) error {
	terr := &TransportError{Backend: s.backend.Name(), Err: err}
	s.logger.Error("request failed", zap.Error(err))

	s.mu.Lock()
	s.state = Idle
	s.err = terr
	s.history = s.history[:len(s.history)-1]
	s.mu.Unlock()

	return terr
}

// save appends a transcript snapshot to the store. Failures are logged only.
func (s *Session) save(ctx context.Context, messages []llm.Message) {
	if len(messages) == 0 {
		return
	}

	digest := storage.Digest(messages)
	if digest == s.lastDigest() {
		s.logger.Debug("saving a snapshot identical to the previous one", zap.String("digest", digest[:16]))
	}

	conv, err := s.store.Append(ctx, messages)
	if err != nil {
		s.logger.Error("failed to store conversation", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastSaved = digest
	s.mu.Unlock()

	s.logger.Debug("conversation stored",
		zap.Int64("id", conv.ID),
		zap.Int("message_count", len(conv.Messages)),
	)
}

// saveIfChanged saves messages unless they are what this session stored last.
func (s *Session) saveIfChanged(ctx context.Context, messages []llm.Message) {
	if len(messages) == 0 || storage.Digest(messages) == s.lastDigest() {
		return
	}
	s.save(ctx, messages)
}

func (s *Session) lastDigest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// NewChat saves the transcript if it changed since the last save and
// starts an empty one.
func (s *Session) NewChat(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	snapshot := slices.Clone(s.transcript)
	s.mu.Unlock()

	s.saveIfChanged(ctx, snapshot)

	s.mu.Lock()
	s.reset(nil, 0)
	s.mu.Unlock()
	return nil
}

// Load replaces the transcript with a stored conversation. The current
// transcript is saved first if it changed since the last save.
func (s *Session) Load(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	snapshot := slices.Clone(s.transcript)
	currentID := s.currentID
	s.mu.Unlock()

	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %d: %w", id, err)
	}

	if currentID != id {
		s.saveIfChanged(ctx, snapshot)
	}

	s.mu.Lock()
	s.reset(conv.Messages, conv.ID)
	s.lastSaved = storage.Digest(conv.Messages)
	s.mu.Unlock()

	s.logger.Debug("loaded conversation", zap.Int64("id", id), zap.Int("message_count", len(conv.Messages)))
	return nil
}

// reset replaces the transcript. Callers hold s.mu.
func (s *Session) reset(messages []llm.Message, id int64) {
	s.transcript = slices.Clone(messages)
	s.history = slices.Clone(messages)
	s.currentID = id
	s.err = nil
}

// Conversations lists stored conversations, most recent first. A storage
// failure is logged and yields an empty list.
func (s *Session) Conversations(ctx context.Context) []*storage.Conversation {
	convs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("failed to list conversations", zap.Error(err))
		return []*storage.Conversation{}
	}
	return convs
}

// Delete removes a stored conversation and reports whether it succeeded.
func (s *Session) Delete(ctx context.Context, id int64) bool {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete conversation", zap.Int64("id", id), zap.Error(err))
		return false
	}

	s.mu.Lock()
	if s.currentID == id {
		s.currentID = 0
	}
	s.mu.Unlock()
	return true
}

// ClearAll empties the transcript and removes every stored conversation.
// It reports whether the store was cleared.
func (s *Session) ClearAll(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return false, ErrBusy
	}
	s.reset(nil, 0)
	s.lastSaved = ""
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("failed to clear conversations", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// IsTransportError reports whether err is a turn that failed before any
// reply content arrived.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
