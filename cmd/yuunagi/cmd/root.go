package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lynzrand/yuunagi/internal/config"
	"github.com/lynzrand/yuunagi/internal/logging"
	"github.com/lynzrand/yuunagi/internal/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "yuunagi",
	Short: "Offline backup planner: index trees, group paths, pack volumes",
	Long: `Yuunagi plans offline backups onto fixed-capacity media.

It walks filesystem trees and records content hashes in a durable SQLite
index, lets an operator group related paths and label the groups with
categories, and packs the groups onto sequentially numbered volumes with a
bounded-lookahead bin-packing heuristic. Interrupted runs are safe: work
already committed to the index survives, and re-running the same command
resumes where the previous run stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRun()
	},
}

var (
	cfg config.Config
	log *zap.Logger

	flagDB       string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "",
		"path of the index database (default from config file)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"log level: debug, info or none")
}

// initRun loads the config file and applies its defaults to flags that
// were not given on the command line.
func initRun() error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	if flagDB == "" {
		flagDB = cfg.Database
	}
	if flagLogLevel == "" {
		flagLogLevel = cfg.LogLevel
	}

	log, err = logging.New(flagLogLevel)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	return nil
}

// openStore opens the index database selected by flags and config.
func openStore() (*sqlite.Store, error) {
	store, err := sqlite.Open(flagDB)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return store, nil
}

// Execute runs the root command. Interrupts cancel the command context so
// in-flight work stops at the next unit boundary with its progress
// committed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
