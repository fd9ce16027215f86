package chatcmder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/chat"
	"github.com/papercomputeco/zyra/pkg/config"
	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/storage/sqlite"
	"github.com/papercomputeco/zyra/pkg/stream"
)

// echoBackend streams the prompt back in two frames.
type echoBackend struct {
	err     error
	prompts []llm.Prompt
}

func (b *echoBackend) Name() string { return "echo" }

func (b *echoBackend) Send(ctx context.Context, _ []llm.Message, prompt llm.Prompt) (*stream.Stream, error) {
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return nil, b.err
	}

	body := fmt.Sprintf(
		"data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\ndata: [DONE]\n\n",
		"echo: ", prompt.PromptText(),
	)
	return stream.Start(ctx, io.NopCloser(strings.NewReader(body))), nil
}

var _ = Describe("Chat Command", func() {
	var (
		ctx        context.Context
		tmpDir     string
		dbPath     string
		configPath string
		be         *echoBackend
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "zyra-chat-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "zyra.db")
		configPath = filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(configPath, []byte("backend = \"mistral\"\n[mistral]\napi_key = \"test\"\n"), 0o600)).To(Succeed())
		be = &echoBackend{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	run := func(input string, args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newChatCmd(&chatCommander{
			newBackend: func(*config.Config, *zap.Logger) (chat.Backend, error) { return be, nil },
			isTerminal: func() bool { return false },
		})
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", configPath, "--sqlite", dbPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	stored := func() int {
		d, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		convs, err := d.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return len(convs)
	}

	It("streams replies and saves each exchange", func() {
		out, err := run("hello\nhow are you\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("assistant> echo: hello\n"))
		Expect(out).To(ContainSubstring("assistant> echo: how are you\n"))
		Expect(stored()).To(Equal(2))
	})

	It("shows sanitized replies", func() {
		out, err := run("<b>hi</b>\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("echo: &lt;b&gt;hi&lt;/b&gt;"))
		Expect(be.prompts[0].PromptText()).To(Equal("<b>hi</b>"))
	})

	It("stops at /quit", func() {
		out, err := run("/quit\nnever sent\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(ContainSubstring("never sent"))
		Expect(be.prompts).To(BeEmpty())
	})

	It("reports transport failures and keeps going", func() {
		be.err = errors.New("connection refused")
		out, err := run("hello\n/history\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Could not reach the backend"))
		Expect(out).To(ContainSubstring("No conversations stored."))
	})

	It("lists, loads and deletes conversations", func() {
		out, err := run("first\n/new\nsecond\n/history\n/load 1\n/delete 2\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Started a new conversation."))
		Expect(out).To(ContainSubstring("Loaded conversation 1."))
		Expect(out).To(ContainSubstring("you> first"))
		Expect(out).To(ContainSubstring("Deleted conversation 2."))
		Expect(stored()).To(Equal(1))
	})

	It("clears the history", func() {
		out, err := run("one\n/clear\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Cleared every conversation."))
		Expect(stored()).To(Equal(0))
	})

	It("sends images with /image", func() {
		png := []byte("\x89PNG\r\n\x1a\n0000")
		imgPath := filepath.Join(tmpDir, "pic.png")
		Expect(os.WriteFile(imgPath, png, 0o600)).To(Succeed())

		_, err := run("/image " + imgPath + " describe this\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(be.prompts).To(HaveLen(1))
		img, ok := be.prompts[0].(llm.ImagePrompt)
		Expect(ok).To(BeTrue())
		Expect(img.Image.MIMEType).To(Equal("image/png"))
		Expect(img.PromptText()).To(Equal("describe this"))
	})

	It("rejects unknown commands", func() {
		out, err := run("/dance\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("unknown command /dance"))
	})

	It("fails without an API key", func() {
		Expect(os.WriteFile(configPath, []byte("backend = \"gemini\"\n"), 0o600)).To(Succeed())
		GinkgoT().Setenv(config.EnvGeminiKey, "")
		GinkgoT().Setenv(config.EnvBackend, "")

		_, err := run("")
		Expect(err).To(MatchError(ContainSubstring("gemini backend needs an API key")))
	})
})
