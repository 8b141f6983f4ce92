// Command worksplit runs split, merge, dashboard and registration jobs
// against a workbook store from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/worksplit/internal/app"
	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/core"
	"github.com/JonMunkholm/worksplit/internal/logging"
)

// cli holds the global flags and the app opened for one command.
type cli struct {
	configPath string
	dbURL      string
	sqlitePath string
	memory     bool
	verbose    bool

	cfg *config.Config
	app *app.App
}

func main() {
	// .env values never override the real environment here
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "worksplit",
		Short: "Split a survey workbook into per-key sheets and merge them back",
		Long: `worksplit partitions the master sheet of a survey workbook by a key
column (prefecture by default), merges the partition sheets back into one,
builds a progress dashboard and processes registration form responses.

The store is PostgreSQL (--db), a SQLite file (--file) or, with --memory,
a workbook that lives only for the command. Without flags the store comes
from DATABASE_URL or SQLITE_PATH.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", os.Getenv(config.FileEnv), "YAML config file")
	pf.StringVar(&c.dbURL, "db", "", "PostgreSQL URL (overrides DATABASE_URL)")
	pf.StringVar(&c.sqlitePath, "file", "", "SQLite workbook file (overrides SQLITE_PATH)")
	pf.BoolVar(&c.memory, "memory", false, "use a throwaway in-memory workbook")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.MarkFlagsMutuallyExclusive("db", "file", "memory")

	root.AddCommand(
		newSheetsCmd(c),
		newImportCmd(c),
		newExportCmd(c),
		newSplitCmd(c),
		newMergeCmd(c),
		newCleanupCmd(c),
		newDashboardCmd(c),
		newRegisterCmd(c),
		newAuditCmd(c),
	)
	return root
}

// open loads configuration, applies the store flags and opens the app.
func (c *cli) open(ctx context.Context) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return err
	}

	switch {
	case c.dbURL != "":
		cfg.Database.URL = c.dbURL
	case c.sqlitePath != "":
		cfg.Database.URL = ""
		cfg.Database.SQLitePath = c.sqlitePath
	case c.memory:
		cfg.Database.URL = ""
		cfg.Database.SQLitePath = ""
	}

	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	// stdout carries command output
	slog.SetDefault(logging.New(os.Stderr, level, cfg.Logging.Format))

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// runE closes the app when a command fails, since cobra skips the post-run
// hook on error.
func (c *cli) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			c.close()
		}
		return err
	}
}

func (c *cli) service() *core.Service {
	return c.app.Service
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
