package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/ceval/config"
)

func newRootCommand(a *app) *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "ceval",
		Short:         "Chess engine analysis in a WebAssembly sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// The TUI owns the terminal, so its logs go to a file.
			var outputs []string
			if cmd.Name() == "interactive" {
				outputs = []string{logFile(cfg)}
			}
			logger, err := newLogger(cfg.LogLevel, outputs...)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./ceval.yaml)")
	_ = config.RegisterFlags(v, cmd.PersistentFlags())

	cmd.AddCommand(newAnalyzeCommand(a))
	cmd.AddCommand(newInteractiveCommand(a))
	cmd.AddCommand(newCacheCommand(a))

	return cmd
}
