package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/config"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
	mbserver "github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/server"
)

func newModesCmd(opts *rootOptions) *cobra.Command {
	var createMissing bool

	cmd := &cobra.Command{
		Use:   "modes",
		Short: "Load the rule files and list the available modes",
		Long: "Searches the project directory, the home directory and the temp directory " +
			"for .clinerules-<mode> files, validates them and prints each mode with its " +
			"source file and trigger targets.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store := mbserver.NewRuleStore(cfg, logger)
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if createMissing {
				res, err := store.ValidateRequired(cmd.Context())
				if err != nil && !errors.Is(err, rules.ErrNoWritableDir) {
					return err
				}
				if err != nil {
					logger.Warn("no writable rules directory", zap.Strings("roots", store.Roots()))
				}
				for _, f := range res.CreatedFiles {
					fmt.Fprintf(out, "created %s\n", f)
				}
			}

			if _, err := store.Load(cmd.Context()); err != nil {
				return err
			}
			return printModes(out, cfg, store)
		},
	}

	cmd.Flags().BoolVar(&createMissing, "create-missing", false, "write built-in templates for missing rule files")
	return cmd
}

// printModes writes one row per configured mode. It fails when no mode
// could be loaded.
func printModes(w io.Writer, cfg *config.Config, store *rules.Store) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tSTATUS\tUMB\tTRIGGERS\tFILE")

	loaded := 0
	for _, m := range cfg.Modes {
		def, ok := store.Rules(m)
		if !ok {
			fmt.Fprintf(tw, "%s\tmissing\t-\t-\t-\n", m)
			continue
		}
		loaded++

		path, _ := store.Path(m)
		umb := "no"
		if def.HasUMB() {
			umb = "yes"
		}
		targets := "-"
		if t := def.ModeTriggers.Targets(); len(t) > 0 {
			targets = strings.Join(t, ",")
		}
		fmt.Fprintf(tw, "%s\tloaded\t%s\t%s\t%s\n", m, umb, targets, path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if loaded == 0 {
		return fmt.Errorf("no rule files found in %s; run with --create-missing", strings.Join(store.Roots(), ", "))
	}
	return nil
}
