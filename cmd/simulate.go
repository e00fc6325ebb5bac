package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-ssvep/configs"
	"github.com/RyanBlaney/sonido-ssvep/internal/metrics"
	"github.com/RyanBlaney/sonido-ssvep/internal/session"
	"github.com/RyanBlaney/sonido-ssvep/linalg"
	"github.com/RyanBlaney/sonido-ssvep/logging"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Classify trials of a synthetic SSVEP recording",
	Long: `Run a series of trials against a synthetic recording flickering at
--frequency. Every trial arms the classifier, feeds one settling delay plus
one window of samples (or streams them at the sampling rate with --realtime)
and classifies the window.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	addSessionFlags(simulateCmd)

	simulateCmd.Flags().Int("trials", 10, "number of trials")
	simulateCmd.Flags().Float64("frequency", 15, "stimulus frequency in Hz")
	simulateCmd.Flags().Float64("threshold", 0.5, "minimum feature score of the max-score predictor")
	simulateCmd.Flags().String("predictor", string(ssvep.PredictorMaxScore),
		"decision rule (max_score, statistics)")
	simulateCmd.Flags().String("baseline", "", "baseline file written by calibrate (statistics predictor)")
	simulateCmd.Flags().Bool("features", false, "print the feature vector of every trial")
}

// addSessionFlags registers the flags shared by simulate and calibrate
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("noise", 0.1, "standard deviation of the background noise")
	cmd.Flags().Uint64("seed", 1, "random seed of the synthetic recording")
	cmd.Flags().Bool("realtime", false, "stream samples at the sampling rate")
	cmd.Flags().Duration("rest", time.Second, "pause between realtime trials")
	cmd.Flags().Int("harmonics", 3, "harmonics per reference")
	cmd.Flags().Int("parallelism", 0, "feature workers (0 uses every CPU)")
	cmd.Flags().String("statsd", "", "DogStatsD address for trial metrics (disabled when empty)")
}

// newRunner builds the classifier, metrics recorder and session runner from
// the loaded configuration. The returned function releases all of them.
func newRunner(config *configs.Config) (*session.Runner, *ssvep.Classifier, func(), error) {
	if err := configs.ValidateConfig(config); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.GetGlobalLogger()

	classifier, err := ssvep.New(config.Classifier, linalg.NewGonumBackend(), ssvep.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	recorder, err := metrics.New(config.Metrics, logger)
	if err != nil {
		_ = classifier.Close()
		return nil, nil, nil, err
	}

	runner := session.NewRunner(classifier, config.Simulation, session.Config{
		Realtime: config.Session.Realtime,
		Rest:     config.Session.Rest,
	}, recorder, logger)

	cleanup := func() {
		if err := recorder.Close(); err != nil {
			logger.Warn("Failed to flush metrics", logging.Fields{"error": err.Error()})
		}
		if err := classifier.Close(); err != nil {
			logger.Error(err, "Failed to release classifier")
		}
	}

	return runner, classifier, cleanup, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	showFeatures, _ := cmd.Flags().GetBool("features")

	runner, _, cleanup, err := newRunner(appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logging.Info("Starting simulation", logging.Fields{
		"trials":    appConfig.Session.Trials,
		"frequency": appConfig.Simulation.Frequency,
		"predictor": appConfig.Classifier.Predictor,
		"realtime":  appConfig.Session.Realtime,
	})

	trials, err := runner.Run(ctx, appConfig.Session.Trials, session.Fixed(appConfig.Simulation.Frequency))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return printTrials(cmd.OutOrStdout(), appConfig.OutputFormat, trials, showFeatures)
}
