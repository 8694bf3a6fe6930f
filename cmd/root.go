package main

import (
	"github.com/ALEYI17/InfraSight_gpuview/internal/config"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        *config.Config
}

// rootCmd is the root Cobra command. Sub-commands are registered here.
func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "perfview",
		Short: "perfview replays profiling experiments through the viewer core.",
		Long: `perfview loads profiling experiments (SQLite .openss/.db or YAML) and drives
the metric tables, periodic sample plots and CUDA event snapshots the viewer
would show, logging every notification.

Settings come from an optional YAML file (--config), PERFVIEW_* environment
variables and flags, in increasing priority.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		loadCmd(a),
		convertCmd(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := logutil.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
