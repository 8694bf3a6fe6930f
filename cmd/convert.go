package main

import (
	"os"

	"github.com/ALEYI17/InfraSight_gpuview/internal/loaders"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Convert a YAML experiment into an experiment database.
func convertCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "convert <experiment.yaml> <experiment.openss>",
		Short: "Write a YAML experiment as an SQLite experiment database.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logutil.GetLogger()
			in, out := args[0], args[1]

			data, err := os.ReadFile(in)
			if err != nil {
				return errors.Wrap(err, "reading experiment")
			}
			exp, err := loaders.ParseExperiment(data)
			if err != nil {
				return errors.Wrapf(err, "parsing %s", in)
			}
			if exp.Name == "" {
				exp.Name = loaders.ExperimentName(in)
			}

			if _, err := os.Stat(out); err == nil {
				if !force {
					return errors.Errorf("%s already exists, use --force to replace it", out)
				}
				if err := os.Remove(out); err != nil {
					return errors.Wrap(err, "removing previous database")
				}
			}
			if err := loaders.WriteSQLite(cmd.Context(), out, exp); err != nil {
				return errors.Wrapf(err, "writing %s", out)
			}

			st, err := os.Stat(out)
			if err != nil {
				return err
			}
			logger.Info("experiment converted",
				zap.String("experiment", exp.Name),
				zap.String("output", out),
				zap.Int("threads", len(exp.Threads)),
				zap.String("size", humanize.IBytes(uint64(st.Size()))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing output file")
	return cmd
}
