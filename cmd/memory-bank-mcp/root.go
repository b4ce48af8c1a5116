package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/config"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/logging"
)

// rootOptions holds flags that are not config keys.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Memory bank and mode rules MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "",
		"config file (default is ./"+config.AppName+".yaml or $XDG_CONFIG_HOME/"+config.AppName+"/"+config.AppName+".yaml)")
	pf.String("project-dir", "", "project directory (default is the working directory)")
	pf.String("memory-bank-path", "", "memory bank location, absolute or relative to the project directory")
	pf.String("initial-mode", "", "mode to start in (default is the first available mode)")
	pf.StringSlice("modes", nil, "known modes, in discovery order")
	pf.String("storage.backend", "", "storage backend: local or sftp")
	pf.Bool("journal.enabled", true, "record mode history in SQLite")
	pf.String("log.level", "", "log level: debug, info, warn, error")
	pf.String("log.format", "", "log format: json or console")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newModesCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig reads the configuration with the command's flags applied on
// top and returns it with a logger built from it.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *zap.Logger, error) {
	loader := config.NewLoader(opts.configFile)
	if err := loader.BindFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, nil, err
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Info("config loaded", zap.String("file", used))
	}
	return cfg, logger, nil
}
