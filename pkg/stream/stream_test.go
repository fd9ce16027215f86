package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/zyra/pkg/stream"
)

// chunkedBody returns its chunks one Read at a time.
type chunkedBody struct {
	chunks []string
	err    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

func collect(s *stream.Stream) []string {
	var out []string
	for snapshot := range s.Updates() {
		out = append(out, snapshot)
	}
	return out
}

var _ = Describe("Stream", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("publishes snapshots in arrival order and closes the body", func() {
		body := &chunkedBody{chunks: []string{
			"data: {\"delta\":\"Hel",
			"lo\"}\n\ndata: {\"delta\":\", wor",
			"ld\"}\n\ndata: [DONE]\n\n",
		}}

		s := stream.Start(ctx, body)
		Expect(collect(s)).To(Equal([]string{"Hello", "Hello, world"}))

		res := s.Result()
		Expect(res.Text).To(Equal("Hello, world"))
		Expect(res.Partial).To(BeFalse())
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Bytes).To(BeNumerically(">", 0))
		Expect(body.closed).To(BeTrue())
	})

	It("treats connection close as termination", func() {
		body := &chunkedBody{chunks: []string{"data: {\"delta\":\"a\"}\n", "data: {\"delta\":\"b\"}"}}

		s := stream.Start(ctx, body)
		Expect(collect(s)).To(Equal([]string{"a", "ab"}))
		Expect(s.Result().Partial).To(BeFalse())
	})

	It("returns the partial reply on a read error", func() {
		readErr := errors.New("connection reset")
		body := &chunkedBody{
			chunks: []string{"data: {\"delta\":\"par\"}\n", "data: {\"delta\":\"tial\"}\n"},
			err:    readErr,
		}

		s := stream.Start(ctx, body)
		Expect(collect(s)).To(Equal([]string{"par", "partial"}))

		res := s.Result()
		Expect(res.Text).To(Equal("partial"))
		Expect(res.Partial).To(BeTrue())
		Expect(res.Err).To(MatchError(readErr))
	})

	It("works with one-byte reads", func() {
		body := io.NopCloser(iotest.OneByteReader(strings.NewReader("data: {\"delta\":\"x\"}\ndata: {\"delta\":\"y\"}\ndata: [DONE]\n")))

		s := stream.Start(ctx, body, stream.WithReadSize(1))
		Expect(collect(s)).To(Equal([]string{"x", "xy"}))
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		body := &chunkedBody{chunks: []string{"data: {\"delta\":\"a\"}\n"}}

		s := stream.Start(cctx, body)
		cancel()

		res := s.Result()
		Expect(res.Partial).To(BeTrue())
		Expect(res.Err).To(MatchError(context.Canceled))
	})

	It("discards unread snapshots on Wait", func() {
		body := &chunkedBody{chunks: []string{"data: {\"delta\":\"a\"}\ndata: {\"delta\":\"b\"}\n"}}

		res := stream.Start(ctx, body).Wait()
		Expect(res.Text).To(Equal("ab"))
	})

	Describe("FromText", func() {
		It("yields the text once and finishes", func() {
			s := stream.FromText("whole reply")
			Expect(collect(s)).To(Equal([]string{"whole reply"}))
			Expect(s.Result().Text).To(Equal("whole reply"))
		})

		It("yields nothing for an empty reply", func() {
			s := stream.FromText("")
			Expect(collect(s)).To(BeEmpty())
		})
	})
})
