package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/callbus/pkg/callbus/config"
	"github.com/randalmurphal/callbus/pkg/callbus/record"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	driver     string
	dbPath     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "callbus",
		Short: "Inspect recorded callback bus activity",
		Long: `callbus reads the tasks, events, and executions persisted by a callbus
recorder and reports statistics, execution history, and active tasks.

The store is selected with --driver and --db, or with store.driver and
store.path in the config file. Flags take precedence.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (.yaml, .json, or .toml)")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "store driver: sqlite, bolt, or memory")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to the store database")

	root.AddCommand(
		newStatsCmd(opts),
		newHistoryCmd(opts),
		newTasksCmd(opts),
		newCleanupCmd(opts),
	)
	return root
}

// settings merges the config file, if any, with flag overrides.
func (o *globalOptions) settings() (config.Settings, error) {
	s := config.DefaultSettings()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return config.Settings{}, fmt.Errorf("load config: %w", err)
		}
		s = loaded
	}
	if o.driver != "" {
		s.StoreDriver = strings.ToLower(o.driver)
	}
	if o.dbPath != "" {
		s.StorePath = o.dbPath
		if s.StoreDriver == "" {
			s.StoreDriver = driverFromPath(o.dbPath)
		}
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// driverFromPath guesses the driver from a database file extension.
func driverFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".bolt"), strings.HasSuffix(path, ".bbolt"):
		return config.DriverBolt
	default:
		return config.DriverSQLite
	}
}

func (o *globalOptions) openStore() (record.Store, *slog.Logger, error) {
	s, err := o.settings()
	if err != nil {
		return nil, nil, err
	}
	if s.StoreDriver == "" {
		return nil, nil, errors.New("no store configured: pass --db or set store.driver in the config file")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.SlogLevel()}))
	store, err := record.Open(s.StoreDriver, s.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", s.StoreDriver, err)
	}
	logger.Debug("store opened", slog.String("driver", s.StoreDriver), slog.String("path", s.StorePath))
	return store, logger, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("─", 50))
}
