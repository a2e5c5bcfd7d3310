package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/digitalkontroll/qaregister/internal/app"
	"github.com/digitalkontroll/qaregister/internal/config"
	"github.com/spf13/cobra"
)

// commandContext carries state shared by all subcommands.
type commandContext struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	c.cfg = &cfg
	return cfg, nil
}

// newApp loads config, builds the logger and wires an App. stdio mode keeps
// stdout clean for the protocol.
func (c *commandContext) newApp(stdioSafe bool) (*app.App, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	logWriter := io.Writer(os.Stdout)
	if stdioSafe {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("QAREGISTER_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			c.logCloser = file
			logWriter = fileWriter
		}
	}
	logger := newLogger(logWriter, cfg.Log)

	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
		c.logCloser = nil
	}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "qaregister",
		Short:         "Q&A register service and register workbook sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (defaults to $QAREGISTER_CONFIG_PATH)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRebuildCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newAPIKeyCommand(ctx))

	return rootCmd
}
