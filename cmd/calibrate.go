package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-ssvep/configs"
	"github.com/RyanBlaney/sonido-ssvep/logging"
)

var calibrateOut string

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Learn per-target baseline distributions",
	Long: `Present every target in turn and fit a Gaussian to the canonical
correlation score of each target. The result is written as YAML and can be
used by the statistics predictor through session.baseline_file.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	addSessionFlags(calibrateCmd)

	calibrateCmd.Flags().Int("calibration", 20, "number of calibration trials")
	calibrateCmd.Flags().StringVar(&calibrateOut, "out", "baseline.yaml", "baseline output file")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	runner, classifier, cleanup, err := newRunner(appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := appConfig.Session.CalibrationTrials
	logging.Info("Starting calibration", logging.Fields{
		"trials":  n,
		"targets": len(classifier.Groups()),
	})

	baseline, err := runner.Calibrate(ctx, n)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}

	groups := classifier.Groups()
	freqs := make([]float64, len(groups))
	for i, g := range groups {
		freqs[i] = g.Frequency
	}

	if err := configs.SaveBaseline(calibrateOut, freqs, baseline); err != nil {
		return err
	}

	logging.Info("Baseline written", logging.Fields{"path": calibrateOut})
	return printBaseline(cmd.OutOrStdout(), appConfig.OutputFormat, freqs, baseline)
}
