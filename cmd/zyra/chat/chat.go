package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/zyra/cmd/zyra/sqlitepath"
	"github.com/papercomputeco/zyra/pkg/backend"
	"github.com/papercomputeco/zyra/pkg/chat"
	"github.com/papercomputeco/zyra/pkg/config"
	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/sanitize"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/storage/sqlite"
)

const chatLongDesc string = `Chat with an LLM backend from the terminal.

Each line you type is sent as one message. Replies stream in as they
arrive and every finished exchange is saved to the local history.

Commands:
  /new                  save the current conversation and start a new one
  /image <path> <text>  send text with an attached image
  /history              list stored conversations
  /load <id>            continue a stored conversation
  /delete <id>          delete a stored conversation
  /clear                delete every stored conversation
  /help                 show this help
  /quit                 leave

Examples:
  zyra chat
  zyra chat --backend gemini
  MISTRAL_API_KEY=... zyra chat --sqlite /tmp/scratch.db`

const chatShortDesc string = "Start an interactive chat"

type chatCommander struct {
	configPath string
	sqlitePath string
	backend    string
	debug      bool

	newBackend func(*config.Config, *zap.Logger) (chat.Backend, error)
	isTerminal func() bool

	styles styles
}

type styles struct {
	prompt    lipgloss.Style
	assistant lipgloss.Style
	info      lipgloss.Style
	err       lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		prompt:    r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		info:      r.NewStyle().Foreground(lipgloss.Color("8")),
		err:       r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func NewChatCmd() *cobra.Command {
	return newChatCmd(&chatCommander{
		newBackend: backend.New,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	})
}

func newChatCmd(cmder *chatCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default ~/.zyra/config.toml)")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().StringVarP(&cmder.backend, "backend", "b", "", "Backend to use: mistral or gemini")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logOpts := []logger.Option{logger.WithOutput(cmd.ErrOrStderr())}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		logOpts = append(logOpts, logger.WithoutColor())
	}
	log := logger.NewLogger(c.debug, logOpts...)
	defer func() { _ = log.Sync() }()

	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	store := sqlite.OpenOrFallback(ctx, dbPath, log)
	defer store.Close()

	b, err := c.newBackend(cfg, log)
	if err != nil {
		return err
	}

	window, err := cfg.Window()
	if err != nil {
		return err
	}

	session := chat.NewSession(b, store,
		chat.WithLogger(log),
		chat.WithSanitizer(&sanitize.Sanitizer{MaxLength: cfg.Sanitize.MaxLength}),
		chat.WithRateLimiter(sanitize.NewRateLimiter(cfg.RateLimit.Requests, window)),
	)

	log.Debug("chat session started",
		zap.String("session_id", session.ID()),
		zap.String("backend", b.Name()),
		zap.String("db", dbPath),
	)

	c.styles = newStyles(lipgloss.NewRenderer(cmd.OutOrStdout()))

	var input lineReader
	interactive := c.isTerminal()
	if interactive {
		input = newLinerInput(historyFile())
	} else {
		input = newScannerInput(cmd.InOrStdin())
	}
	defer input.Close()

	return c.loop(ctx, input, interactive, cmd.OutOrStdout(), session)
}

func (c *chatCommander) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.backend != "" {
		cfg.Backend = c.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *chatCommander) loop(ctx context.Context, input lineReader, interactive bool, out io.Writer, session *chat.Session) error {
	if interactive {
		fmt.Fprintln(out, c.styles.info.Render("Type a message, /help for commands, /quit to leave."))
	}

	for {
		raw, err := input.ReadLine("you> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(ctx, out, session, line)
			if err != nil {
				fmt.Fprintln(out, c.styles.err.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		c.send(ctx, out, session, chat.Input{Text: line})
	}
}

// send submits one turn and prints the reply as it grows.
func (c *chatCommander) send(ctx context.Context, out io.Writer, session *chat.Session, in chat.Input) {
	updates := make(chan string)
	printed := make(chan struct{})

	go func() {
		defer close(printed)
		shown := ""
		started := false
		for snapshot := range updates {
			if !started {
				fmt.Fprint(out, c.styles.assistant.Render("assistant> "))
				started = true
			}
			if strings.HasPrefix(snapshot, shown) {
				fmt.Fprint(out, snapshot[len(shown):])
			} else {
				fmt.Fprint(out, "\n"+snapshot)
			}
			shown = snapshot
		}
		if started {
			fmt.Fprintln(out)
		}
	}()

	err := session.Submit(ctx, in, updates)
	<-printed

	switch {
	case err == nil:
	case errors.Is(err, chat.ErrRateLimited):
		fmt.Fprintln(out, c.styles.err.Render(err.Error()))
	case chat.IsTransportError(err):
		fmt.Fprintln(out, c.styles.err.Render("Could not reach the backend: "+err.Error()))
	default:
		fmt.Fprintln(out, c.styles.err.Render(err.Error()))
	}
}

func (c *chatCommander) command(ctx context.Context, out io.Writer, session *chat.Session, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(out, c.styles.info.Render(chatLongDesc))

	case "/new":
		if err := session.NewChat(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, c.styles.info.Render("Started a new conversation."))

	case "/image":
		path, text, _ := strings.Cut(rest, " ")
		if path == "" || strings.TrimSpace(text) == "" {
			return false, errors.New("usage: /image <path> <text>")
		}
		img, err := readImage(path)
		if err != nil {
			return false, err
		}
		c.send(ctx, out, session, chat.Input{Text: text, Image: img})

	case "/history":
		c.printConversations(out, session.Conversations(ctx))

	case "/load":
		id, err := parseID(rest)
		if err != nil {
			return false, err
		}
		if err := session.Load(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintln(out, c.styles.info.Render(fmt.Sprintf("Loaded conversation %d.", id)))
		c.printTranscript(out, session.Transcript())

	case "/delete":
		id, err := parseID(rest)
		if err != nil {
			return false, err
		}
		if !session.Delete(ctx, id) {
			return false, fmt.Errorf("could not delete conversation %d", id)
		}
		fmt.Fprintln(out, c.styles.info.Render(fmt.Sprintf("Deleted conversation %d.", id)))

	case "/clear":
		cleared, err := session.ClearAll(ctx)
		if err != nil {
			return false, err
		}
		if !cleared {
			return false, errors.New("could not clear the history")
		}
		fmt.Fprintln(out, c.styles.info.Render("Cleared every conversation."))

	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}

	return false, nil
}

func (c *chatCommander) printConversations(out io.Writer, convs []*storage.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(out, c.styles.info.Render("No conversations stored."))
		return
	}
	for _, conv := range convs {
		fmt.Fprintf(out, "%5d  %s  %s\n",
			conv.ID,
			c.styles.info.Render(conv.Timestamp.Local().Format(time.DateTime)),
			logger.Truncate(conv.Preview(), 60),
		)
	}
}

func (c *chatCommander) printTranscript(out io.Writer, messages []llm.Message) {
	for _, msg := range messages {
		label := c.styles.prompt.Render("you> ")
		if !msg.IsUser {
			label = c.styles.assistant.Render("assistant> ")
		}
		fmt.Fprintln(out, label+msg.Text)
	}
}

// historyFile is where typed lines are kept between runs.
func historyFile() string {
	path, err := config.DefaultPath()
	if err != nil {
		return filepath.Join(os.TempDir(), "zyra_chat_history")
	}
	return filepath.Join(filepath.Dir(path), "chat_history")
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", arg)
	}
	return id, nil
}

func readImage(path string) (*llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mimeType)
	}

	return &llm.Image{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Data:     data,
	}, nil
}
