package mergecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/zyra/cmd/zyra/sqlitepath"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/storage/sqlite"
)

const mergeLongDesc string = `Merge the conversations of one or more zyra databases into a target.

Conversations keep their original timestamps and get new ids in the
target. A conversation whose messages already exist in the target is
skipped.

Examples:
  zyra merge ~/backup/zyra.db
  zyra merge --sqlite /tmp/merged.db ~/laptop/zyra.db ~/desktop/zyra.db`

const mergeShortDesc string = "Merge conversation databases"

type mergeCommander struct {
	sqlitePath string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to target SQLite database")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	targetPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve target database: %w", err)
	}

	target, err := sqlite.NewDriver(ctx, targetPath)
	if err != nil {
		return fmt.Errorf("could not open target database %s: %w", targetPath, err)
	}
	defer target.Close()

	existing, err := target.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list target conversations: %w", err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, conv := range existing {
		seen[storage.Digest(conv.Messages)] = struct{}{}
	}

	var totalNew, totalDuped int

	for _, srcPath := range sources {
		srcNew, srcDuped, err := c.mergeSource(ctx, target, srcPath, seen)
		if err != nil {
			return err
		}

		totalNew += srcNew
		totalDuped += srcDuped

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, srcNew, srcDuped)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new conversations from %d sources (%d already existed) into %s\n",
		totalNew, len(sources), totalDuped, targetPath)

	return nil
}

func (c *mergeCommander) mergeSource(ctx context.Context, target *sqlite.Driver, srcPath string, seen map[string]struct{}) (int, int, error) {
	source, err := sqlite.NewDriver(ctx, srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("could not open source database %s: %w", srcPath, err)
	}
	defer source.Close()

	convs, err := source.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list conversations from %s: %w", srcPath, err)
	}

	var srcNew, srcDuped int
	for _, conv := range convs {
		digest := storage.Digest(conv.Messages)
		if _, ok := seen[digest]; ok {
			srcDuped++
			continue
		}

		if _, err := target.Import(ctx, conv); err != nil {
			return srcNew, srcDuped, fmt.Errorf("could not import conversation %d from %s: %w", conv.ID, srcPath, err)
		}
		seen[digest] = struct{}{}
		srcNew++
	}

	return srcNew, srcDuped, nil
}
