package stream_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/stream"
)

var _ = Describe("Decoder", func() {
	var dec *stream.Decoder

	BeforeEach(func() {
		dec = stream.NewDecoder()
	})

	Context("when a frame is split across chunks", func() {
		It("emits exactly one snapshot once the frame is complete", func() {
			Expect(dec.Feed([]byte(`data: {"delta":"Hel`))).To(BeEmpty())
			Expect(dec.Pending()).To(BeNumerically(">", 0))

			Expect(dec.Feed([]byte("lo\"}\n"))).To(Equal([]string{"Hello"}))
			Expect(dec.Pending()).To(Equal(0))
		})

		It("handles a split inside the line terminator of a CRLF stream", func() {
			Expect(dec.Feed([]byte("data: {\"delta\":\"a\"}\r"))).To(BeEmpty())
			Expect(dec.Feed([]byte("\ndata: {\"delta\":\"b\"}\r\n"))).To(Equal([]string{"a", "ab"}))
		})

		It("handles a split inside a multi-byte character", func() {
			frame := []byte("data: {\"delta\":\"héllo\"}\n")
			Expect(dec.Feed(frame[:18])).To(BeEmpty())
			Expect(dec.Feed(frame[18:])).To(Equal([]string{"héllo"}))
		})
	})

	Context("when several frames arrive in one chunk", func() {
		It("emits the running concatenation after each delta", func() {
			chunk := "data: {\"delta\":\"a\"}\n\ndata: {\"delta\":\"b\"}\n\ndata: {\"delta\":\"c\"}\n\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"a", "ab", "abc"}))
			Expect(dec.Text()).To(Equal("abc"))
		})
	})

	Context("with provider frames", func() {
		It("extracts choices[0].delta.content", func() {
			chunk := `data: {"id":"x","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"},"finish_reason":null}]}` + "\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"Hi"}))
		})

		It("does not emit for frames with an empty delta", func() {
			chunk := `data: {"choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}` + "\n"
			Expect(dec.Feed([]byte(chunk))).To(BeEmpty())
		})

		It("uses a custom delta function", func() {
			dec = stream.NewDecoder(stream.WithDeltaFunc(llm.ExtractGeminiDelta))
			chunk := `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Halo"}]}}]}` + "\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"Halo"}))
		})
	})

	Context("when the [DONE] sentinel arrives", func() {
		It("terminates without emitting", func() {
			Expect(dec.Feed([]byte("data: [DONE]\n"))).To(BeEmpty())
			Expect(dec.Done()).To(BeTrue())
		})

		It("ignores frames after the sentinel", func() {
			chunk := "data: {\"delta\":\"a\"}\ndata: [DONE]\ndata: {\"delta\":\"b\"}\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"a"}))
			Expect(dec.Feed([]byte("data: {\"delta\":\"c\"}\n"))).To(BeEmpty())
			Expect(dec.Finish()).To(Equal("a"))
		})
	})

	Context("with malformed input", func() {
		It("skips an unparseable frame and keeps going", func() {
			chunk := "data: {not json}\ndata: {\"delta\":\"ok\"}\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"ok"}))
		})

		It("skips lines without a data prefix", func() {
			chunk := ": keep-alive\nevent: message\nid: 7\ndata: {\"delta\":\"x\"}\n"
			Expect(dec.Feed([]byte(chunk))).To(Equal([]string{"x"}))
		})

		It("discards an oversized unterminated frame", func() {
			big := make([]byte, stream.MaxFrameSize+1)
			for i := range big {
				big[i] = 'a'
			}
			Expect(dec.Feed(big)).To(BeEmpty())
			Expect(dec.Pending()).To(Equal(0))
		})
	})

	Describe("Finish", func() {
		It("processes a final frame left unterminated by the transport", func() {
			dec.Feed([]byte("data: {\"delta\":\"a\"}\ndata: {\"delta\":\"b\"}"))
			Expect(dec.Text()).To(Equal("a"))
			Expect(dec.Finish()).To(Equal("ab"))
		})

		It("drops an incomplete tail", func() {
			dec.Feed([]byte("data: {\"delta\":\"a\"}\ndata: {\"del"))
			Expect(dec.Finish()).To(Equal("a"))
		})

		It("returns an empty string for an empty stream", func() {
			Expect(dec.Finish()).To(BeEmpty())
		})
	})
})
