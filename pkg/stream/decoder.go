// Package stream decodes incremental LLM responses delivered as
// newline-delimited "data: " frames.
package stream

import (
	"bytes"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
)

// MaxFrameSize bounds the unterminated tail buffered between chunks.
// A frame larger than this is discarded.
const MaxFrameSize = 1 << 20

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// DeltaFunc extracts the incremental text from one frame payload.
type DeltaFunc func(payload []byte) (string, error)

// Option configures a Decoder or a Stream.
type Option func(*config)

type config struct {
	delta    DeltaFunc
	logger   *zap.Logger
	readSize int
}

func newConfig(opts []Option) *config {
	c := &config{
		delta:    llm.ExtractDelta,
		logger:   zap.NewNop(),
		readSize: 4096,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithDeltaFunc sets the payload parser. The default is llm.ExtractDelta.
func WithDeltaFunc(fn DeltaFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.delta = fn
		}
	}
}

// WithLogger sets the logger used for skipped frames and stream events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger.OrNop(l)
	}
}

// WithReadSize sets the buffer size used to read the response body.
func WithReadSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// Decoder reassembles frames split across arbitrary chunk boundaries and
// accumulates the reply text. A Decoder serves a single response.
type Decoder struct {
	pending     []byte
	accumulated strings.Builder
	done        bool

	delta  DeltaFunc
	logger *zap.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	c := newConfig(opts)
	return &Decoder{
		delta:  c.delta,
		logger: c.logger,
	}
}

// Feed consumes one chunk and returns the full accumulated text after each
// delta it completed, in frame order. Input after the [DONE] sentinel is
// ignored.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}

	d.pending = append(d.pending, chunk...)

	var snapshots []string
	consumed := false
	for !d.done {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}

		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		consumed = true

		if snapshot, ok := d.processLine(line); ok {
			snapshots = append(snapshots, snapshot)
		}
	}

	switch {
	case d.done:
		d.pending = nil
	case len(d.pending) > MaxFrameSize:
		d.logger.Warn("discarding oversized frame", zap.Int("size", len(d.pending)))
		d.pending = nil
	case consumed:
		d.pending = bytes.Clone(d.pending)
	}

	return snapshots
}

// Finish treats the end of the transport as the terminator of any buffered
// tail, processes it, and returns the final accumulated text.
func (d *Decoder) Finish() string {
	if !d.done && len(d.pending) > 0 {
		d.processLine(d.pending)
	}
	d.pending = nil

	return d.accumulated.String()
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Text returns the text accumulated so far.
func (d *Decoder) Text() string {
	return d.accumulated.String()
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// processLine handles one complete frame. It returns the new accumulated
// text when the frame carried a non-empty delta.
func (d *Decoder) processLine(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false
	}

	payload, ok := bytes.CutPrefix(line, dataPrefix)
	if !ok {
		d.logger.Debug("skipping non-data line", zap.String("line", logger.Truncate(string(line), 80)))
		return "", false
	}

	payload = bytes.TrimSpace(payload)
	if bytes.Equal(payload, doneSentinel) {
		d.done = true
		return "", false
	}

	text, err := d.delta(payload)
	if err != nil {
		d.logger.Warn("failed to parse frame",
			zap.Error(err),
			zap.String("payload", logger.Truncate(string(payload), 80)),
		)
		return "", false
	}

	if text == "" {
		return "", false
	}

	d.accumulated.WriteString(text)
	return d.accumulated.String(), true
}
