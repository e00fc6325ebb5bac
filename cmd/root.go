package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-ssvep/configs"
	"github.com/RyanBlaney/sonido-ssvep/logging"
)

var (
	configFile   string
	logLevel     string
	outputFormat string

	// appConfig is loaded before every command runs
	appConfig *configs.Config
)

// flagKeys maps command line flags onto nested configuration keys.
// Flags not listed bind to their own name.
var flagKeys = map[string]string{
	"log-level":   "log_level",
	"output":      "output_format",
	"trials":      "session.trials",
	"calibration": "session.calibration_trials",
	"rest":        "session.rest",
	"realtime":    "session.realtime",
	"baseline":    "session.baseline_file",
	"frequency":   "simulation.frequency",
	"noise":       "simulation.noise",
	"seed":        "simulation.seed",
	"threshold":   "classifier.threshold",
	"predictor":   "classifier.predictor",
	"harmonics":   "classifier.harmonics",
	"parallelism": "classifier.parallelism",
	"statsd":      "metrics.address",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ssvep",
	Short: "SSVEP target classification with CCA, FBCCA and MEC",
	Long: `Streaming Steady-State Visually Evoked Potential classifier.

Samples from a multichannel stream fill a sliding window that is scored
against sine/cosine references of every flickering target using canonical
correlation (optionally across a filter bank) and minimum energy
combination. The simulate and calibrate commands drive the classifier with
a synthetic recording.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/ssvep/ssvep.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"output format (table, json, yaml)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ssvep"))
		}
		viper.AddConfigPath("/etc/ssvep")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("ssvep")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(configs.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// initializeConfig binds flags, reads the config file and sets up logging
func initializeConfig(cmd *cobra.Command) error {
	v := viper.GetViper()

	if err := bindFlags(cmd, v); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	config, err := configs.LoadConfig(v)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}

	logger := logging.NewDefaultLogger()
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file", logging.Fields{"path": used})
	}

	appConfig = config
	return nil
}

// bindFlags binds each cobra flag to its associated viper configuration key
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}

		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})

	return lastErr
}
