package historycmder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/storage/sqlite"
)

var _ = Describe("History Command", func() {
	var (
		ctx    context.Context
		tmpDir string
		dbPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "zyra-history-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "zyra.db")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	exchange := func(user, assistant string) []llm.Message {
		return []llm.Message{
			llm.UserMessage(user, nil),
			llm.AssistantMessage(assistant),
		}
	}

	seed := func(convs ...[]llm.Message) []int64 {
		d, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		var ids []int64
		for _, msgs := range convs {
			conv, err := d.Append(ctx, msgs)
			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, conv.ID)
		}
		return ids
	}

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewHistoryCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--sqlite", dbPath))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	count := func() int {
		d, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		convs, err := d.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return len(convs)
	}

	Describe("list", func() {
		It("reports an empty store", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("No conversations stored."))
		})

		It("lists the most recent conversation first", func() {
			seed(exchange("first question", "a"), exchange("second question", "b"))

			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("first question"))
			Expect(bytes.Index([]byte(out), []byte("second question"))).
				To(BeNumerically("<", bytes.Index([]byte(out), []byte("first question"))))
		})

		It("marks repeated snapshots", func() {
			ids := seed(exchange("same", "reply"), exchange("same", "reply"))

			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("(same as #1)"))
			Expect(ids).To(Equal([]int64{1, 2}))
		})
	})

	Describe("show", func() {
		It("prints a conversation as text", func() {
			ids := seed(exchange("what is go", "a language"))

			out, err := run("show", "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(HaveLen(1))
			Expect(out).To(ContainSubstring("Conversation 1"))
			Expect(out).To(ContainSubstring("[user]\nwhat is go"))
			Expect(out).To(ContainSubstring("[assistant]\na language"))
		})

		It("prints a conversation as JSON", func() {
			seed(exchange("json please", "ok"))

			out, err := run("show", "1", "--output", "json")
			Expect(err).NotTo(HaveOccurred())

			var conv storage.Conversation
			Expect(json.Unmarshal([]byte(out), &conv)).To(Succeed())
			Expect(conv.ID).To(Equal(int64(1)))
			Expect(conv.Messages).To(Equal(exchange("json please", "ok")))
		})

		It("prints a conversation as YAML", func() {
			seed(exchange("yaml please", "ok"))

			out, err := run("show", "1", "-o", "yaml")
			Expect(err).NotTo(HaveOccurred())

			var conv storage.Conversation
			Expect(yaml.Unmarshal([]byte(out), &conv)).To(Succeed())
			Expect(conv.Messages).To(Equal(exchange("yaml please", "ok")))
		})

		It("fails for a missing conversation", func() {
			seed(exchange("x", "y"))

			_, err := run("show", "99")
			Expect(err).To(MatchError(ContainSubstring("conversation not found: 99")))
		})

		It("rejects an unknown format", func() {
			seed(exchange("x", "y"))

			_, err := run("show", "1", "-o", "xml")
			Expect(err).To(MatchError(ContainSubstring("unknown output format")))
		})

		It("rejects a malformed id", func() {
			_, err := run("show", "abc")
			Expect(err).To(MatchError(ContainSubstring("invalid conversation id")))
		})
	})

	Describe("delete", func() {
		It("removes one conversation", func() {
			seed(exchange("keep", "a"), exchange("drop", "b"))

			out, err := run("delete", "2")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Deleted conversation 2"))
			Expect(count()).To(Equal(1))
		})

		It("reports a missing conversation without failing", func() {
			seed(exchange("keep", "a"))

			out, err := run("delete", "7")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Conversation 7 not found, nothing deleted"))
			Expect(count()).To(Equal(1))
		})
	})

	Describe("clear", func() {
		It("requires confirmation", func() {
			seed(exchange("a", "b"))

			_, err := run("clear")
			Expect(err).To(MatchError(ContainSubstring("--yes")))
			Expect(count()).To(Equal(1))
		})

		It("removes every conversation", func() {
			seed(exchange("a", "b"), exchange("c", "d"))

			_, err := run("clear", "--yes")
			Expect(err).NotTo(HaveOccurred())
			Expect(count()).To(Equal(0))
		})
	})
})
