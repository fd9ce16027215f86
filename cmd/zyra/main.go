package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/zyra/cmd/zyra/chat"
	historycmder "github.com/papercomputeco/zyra/cmd/zyra/history"
	mergecmder "github.com/papercomputeco/zyra/cmd/zyra/merge"
)

const rootLongDesc string = `zyra is a terminal chat client for hosted LLMs.

It talks to Mistral or Gemini, streams replies as they arrive and keeps
a local SQLite history of your conversations.

Configuration is read from ~/.zyra/config.toml. API keys can also be
set with MISTRAL_API_KEY and GEMINI_API_KEY, and the backend with
ZYRA_BACKEND.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "zyra",
		Short:         "Chat with hosted LLMs from the terminal",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
