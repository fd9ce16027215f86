package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/zyra/cmd/zyra/sqlitepath"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/storage/sqlite"
)

const historyLongDesc string = `Inspect and manage stored conversations.

Conversations are listed most recent first. A conversation whose
messages are identical to an older one is marked with the id of the
original.

Examples:
  zyra history list
  zyra history show 12 --output yaml
  zyra history delete 12
  zyra history clear --yes`

const historyShortDesc string = "Manage stored conversations"

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type historyCommander struct {
	sqlitePath string
	output     string
	yes        bool
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
	}

	cmd.PersistentFlags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.withDriver(cmd, cmder.list)
		},
	})

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return cmder.withDriver(cmd, func(ctx context.Context, cmd *cobra.Command, d storage.Driver) error {
				return cmder.show(ctx, cmd, d, id)
			})
		},
	}
	showCmd.Flags().StringVarP(&cmder.output, "output", "o", outputText, "Output format: text, json or yaml")
	cmd.AddCommand(showCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one conversation (a missing id is reported, not an error)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return cmder.withDriver(cmd, func(ctx context.Context, cmd *cobra.Command, d storage.Driver) error {
				return cmder.delete(ctx, cmd, d, id)
			})
		},
	})

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmder.yes {
				return fmt.Errorf("refusing to delete every conversation without --yes")
			}
			return cmder.withDriver(cmd, cmder.clear)
		},
	}
	clearCmd.Flags().BoolVarP(&cmder.yes, "yes", "y", false, "Confirm deleting every conversation")
	cmd.AddCommand(clearCmd)

	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", arg)
	}
	return id, nil
}

func (c *historyCommander) withDriver(cmd *cobra.Command, fn func(context.Context, *cobra.Command, storage.Driver) error) error {
	ctx := cmd.Context()

	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	driver, err := sqlite.NewDriver(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("could not open database %s: %w", dbPath, err)
	}
	defer driver.Close()

	return fn(ctx, cmd, driver)
}

func (c *historyCommander) list(ctx context.Context, cmd *cobra.Command, d storage.Driver) error {
	convs, err := d.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list conversations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations stored.")
		return nil
	}

	dups := storage.Duplicates(convs)
	for _, conv := range convs {
		line := fmt.Sprintf("%5d  %s  %3d msgs  %s",
			conv.ID,
			conv.Timestamp.Local().Format(time.DateTime),
			len(conv.Messages),
			logger.Truncate(conv.Preview(), 60),
		)
		if orig, ok := dups[conv.ID]; ok {
			line += fmt.Sprintf("  (same as #%d)", orig)
		}
		fmt.Fprintln(out, line)
	}

	return nil
}

func (c *historyCommander) show(ctx context.Context, cmd *cobra.Command, d storage.Driver, id int64) error {
	conv, err := d.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("could not load conversation: %w", err)
	}

	out := cmd.OutOrStdout()
	switch c.output {
	case outputText:
		writeText(out, conv)
		return nil
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(conv); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", c.output)
	}
}

func writeText(w io.Writer, conv *storage.Conversation) {
	fmt.Fprintf(w, "Conversation %d (%s)\n", conv.ID, conv.Timestamp.Local().Format(time.DateTime))
	for _, msg := range conv.Messages {
		fmt.Fprintf(w, "\n[%s]\n%s\n", msg.Role(), strings.TrimSpace(msg.Text))
	}
}

func (c *historyCommander) delete(ctx context.Context, cmd *cobra.Command, d storage.Driver, id int64) error {
	if _, err := d.Get(ctx, id); err != nil {
		var notFoundErr storage.ErrNotFound
		if errors.As(err, &notFoundErr) {
			// Deleting a missing id is a no-op for the store too.
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %d not found, nothing deleted\n", id)
			return nil
		}
		return fmt.Errorf("could not delete conversation: %w", err)
	}
	if err := d.Delete(ctx, id); err != nil {
		return fmt.Errorf("could not delete conversation: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %d\n", id)
	return nil
}

func (c *historyCommander) clear(ctx context.Context, cmd *cobra.Command, d storage.Driver) error {
	if err := d.Clear(ctx); err != nil {
		return fmt.Errorf("could not clear conversations: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Deleted every conversation")
	return nil
}
