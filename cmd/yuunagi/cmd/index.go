package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lynzrand/yuunagi/internal/indexer"
	"github.com/lynzrand/yuunagi/internal/storage"
)

var (
	flagRelativeTo string
	flagQuiet      bool
)

var indexCmd = &cobra.Command{
	Use:   "index SOURCE...",
	Short: "Index one or more filesystem subtrees into the path database",
	Long: `Index walks each SOURCE subtree, hashes file contents with SHA-256 and
records every node in the path database. Files whose modification time is
older than their last index pass are skipped without re-reading, so a
second identical invocation resumes an interrupted run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		relRoot := flagRelativeTo
		if relRoot == "" {
			relRoot, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
		}

		opts := []indexer.Option{indexer.WithLogger(log)}
		var progress *consoleProgress
		if !flagQuiet {
			progress = newConsoleProgress(os.Stderr)
			opts = append(opts, indexer.WithProgress(progress))
		}
		ix := indexer.New(store, opts...)

		ctx := cmd.Context()
		var total indexer.Summary
		for _, source := range args {
			sum, scanErr := ix.Scan(ctx, relRoot, source)
			total.Files += sum.Files
			total.Dirs += sum.Dirs
			total.Links += sum.Links
			total.Skipped += sum.Skipped
			total.HashedBytes += sum.HashedBytes
			total.AccessErrors += sum.AccessErrors
			if scanErr != nil {
				if progress != nil {
					progress.Finish()
				}
				if errors.Is(scanErr, context.Canceled) {
					color.Yellow("Scan interrupted. Committed entries are kept; restart with the same arguments to resume.")
					return nil
				}
				return scanErr
			}
		}
		if progress != nil {
			progress.Finish()
		}

		counts, err := store.CountByKind(ctx)
		if err != nil {
			return err
		}

		color.Green("Scan completed.")
		fmt.Printf("This run: %d files hashed (%s), %d skipped, %d directories, %d links\n",
			total.Files, units.BytesSize(float64(total.HashedBytes)),
			total.Skipped, total.Dirs, total.Links)
		fmt.Printf("Index now holds %d files and %d directories.\n",
			counts[storage.KindFile], counts[storage.KindDirectory])
		if total.AccessErrors > 0 {
			color.Yellow("%d subtrees could not be read; see the log for details.", total.AccessErrors)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&flagRelativeTo, "relative-to", "",
		"store paths relative to this directory (default: working directory)")
	indexCmd.Flags().BoolVar(&flagQuiet, "quiet", false,
		"disable the progress display and the estimation pass")
	rootCmd.AddCommand(indexCmd)
}
