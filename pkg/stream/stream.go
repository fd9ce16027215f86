package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/logger"
)

// Result is the outcome of a finished stream.
type Result struct {
	// Text is the full reply accumulated before the stream ended.
	Text string

	// Bytes is the number of body bytes received.
	Bytes int64

	// Partial is set when the stream ended on a read error or cancellation
	// rather than on [DONE] or a clean close.
	Partial bool

	// Err is the read error that cut the stream short, if any.
	Err error
}

// Stream publishes full-text snapshots of an incrementally arriving reply.
// It has a single writer goroutine; chunks are processed in arrival order.
type Stream struct {
	updates chan string
	done    chan struct{}
	result  Result
}

// Start reads body on a new goroutine, decoding frames as they arrive.
// The caller must drain Updates (or call Wait) until it is closed, or cancel
// ctx. Start takes ownership of body and closes it.
func Start(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	c := newConfig(opts)
	s := &Stream{
		updates: make(chan string),
		done:    make(chan struct{}),
	}

	go s.run(ctx, body, c)
	return s
}

// FromText returns an already finished stream carrying a single snapshot.
// It is used for non-streaming responses.
func FromText(text string) *Stream {
	s := &Stream{
		updates: make(chan string, 1),
		done:    make(chan struct{}),
		result:  Result{Text: text, Bytes: int64(len(text))},
	}
	if text != "" {
		s.updates <- text
	}
	close(s.updates)
	close(s.done)

	return s
}

// Updates returns the snapshot channel. Each value is the full reply so far.
// The channel is closed when the stream ends.
func (s *Stream) Updates() <-chan string {
	return s.updates
}

// Done is closed once the Result is available.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Result blocks until the stream has ended and returns its outcome.
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}

// Wait discards unread snapshots and returns the Result.
func (s *Stream) Wait() Result {
	for range s.updates {
	}
	return s.Result()
}

func (s *Stream) run(ctx context.Context, body io.ReadCloser, c *config) {
	startTime := time.Now()
	dec := &Decoder{delta: c.delta, logger: c.logger}

	defer close(s.done)
	defer close(s.updates)
	defer body.Close()

	var (
		received int64
		readErr  error
		buf      = make([]byte, c.readSize)
	)

	for !dec.Done() {
		n, err := body.Read(buf)
		if n > 0 {
			received += int64(n)
			for _, snapshot := range dec.Feed(buf[:n]) {
				if !s.publish(ctx, snapshot) {
					readErr = ctx.Err()
					break
				}
			}
		}

		if readErr != nil {
			break
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	last := dec.Text()
	text := dec.Finish()
	if readErr == nil && text != last {
		if !s.publish(ctx, text) {
			readErr = ctx.Err()
		}
	}

	if readErr != nil {
		c.logger.Warn("stream ended early",
			zap.Error(readErr),
			zap.Int("accumulated_len", len(text)),
		)
	}

	c.logger.Debug("stream finished",
		zap.Int64("bytes", received),
		zap.Bool("done_sentinel", dec.Done()),
		zap.String("content_preview", logger.Truncate(text, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	s.result = Result{
		Text:    text,
		Bytes:   received,
		Partial: readErr != nil,
		Err:     readErr,
	}
}

func (s *Stream) publish(ctx context.Context, snapshot string) bool {
	select {
	case s.updates <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}
