package configs

import (
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-ssvep/internal/synth"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("output_format", "table")

	setClassifierDefaults(v)
	setSimulationDefaults(v)

	// Session defaults
	v.SetDefault("session.trials", 10)
	v.SetDefault("session.calibration_trials", 20)
	v.SetDefault("session.rest", time.Second)
	v.SetDefault("session.realtime", false)
	v.SetDefault("session.baseline_file", "")

	// Metrics are disabled unless an agent address is given
	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.tags", []string{})
}

// setClassifierDefaults mirrors ssvep.DefaultConfig
func setClassifierDefaults(v *viper.Viper) {
	d := ssvep.DefaultConfig()

	patterns := make([]map[string]any, len(d.Patterns))
	for i, p := range d.Patterns {
		patterns[i] = map[string]any{
			"name":        p.Name,
			"frequencies": p.Frequencies,
		}
	}

	v.SetDefault("classifier.patterns", patterns)
	v.SetDefault("classifier.harmonics", d.Harmonics)
	v.SetDefault("classifier.mixing.a", d.Mixing.A)
	v.SetDefault("classifier.mixing.b", d.Mixing.B)
	v.SetDefault("classifier.channels", d.Channels)
	v.SetDefault("classifier.sampling_rate", d.SamplingRate)
	v.SetDefault("classifier.trial_duration", d.TrialDuration)
	v.SetDefault("classifier.settling_delay", d.SettlingDelay)
	v.SetDefault("classifier.poll_interval", d.PollInterval)
	v.SetDefault("classifier.predictor", string(d.Predictor))
	v.SetDefault("classifier.threshold", d.Threshold)
	v.SetDefault("classifier.parallelism", d.Parallelism)
}

func setSimulationDefaults(v *viper.Viper) {
	d := synth.DefaultConfig()

	v.SetDefault("simulation.sample_rate", d.SampleRate)
	v.SetDefault("simulation.channels", d.Channels)
	v.SetDefault("simulation.frequency", d.Frequency)
	v.SetDefault("simulation.amplitude", d.Amplitude)
	v.SetDefault("simulation.harmonics", d.Harmonics)
	v.SetDefault("simulation.phase_step", d.PhaseStep)
	v.SetDefault("simulation.noise", d.Noise)
	v.SetDefault("simulation.seed", d.Seed)
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		OutputFormat: "table",
		Classifier:   ssvep.DefaultConfig(),
		Simulation:   synth.DefaultConfig(),
		Session: SessionConfig{
			Trials:            10,
			CalibrationTrials: 20,
			Rest:              time.Second,
		},
	}
}
