package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/spectral"
	"github.com/RyanBlaney/sonido-ssvep/configs"
	"github.com/RyanBlaney/sonido-ssvep/internal/synth"
)

var inspectNeighbors int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the spectral SNR of every target in one synthetic window",
	Long: `Generate one window of the synthetic recording and report, for every
target frequency, the Hann-windowed power at that frequency relative to the
surrounding bins, averaged over the classifier channels.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Float64("frequency", 15, "stimulus frequency in Hz")
	inspectCmd.Flags().Float64("noise", 0.1, "standard deviation of the background noise")
	inspectCmd.Flags().Uint64("seed", 1, "random seed of the synthetic recording")
	inspectCmd.Flags().IntVar(&inspectNeighbors, "neighbors", 4, "noise bins on each side of a target")
}

// TargetSNR is the mean narrow-band SNR of one target across channels
type TargetSNR struct {
	Frequency float64 `json:"frequency" yaml:"frequency"`
	SNR       float64 `json:"snr" yaml:"snr"`
	Decibels  float64 `json:"db" yaml:"db"`
}

// inspectWindow computes the per-target SNR of one generated window
func inspectWindow(config *configs.Config, neighbors int) ([]TargetSNR, error) {
	freqs, err := config.Classifier.Frequencies()
	if err != nil {
		return nil, err
	}

	src, err := synth.NewSource(config.Simulation)
	if err != nil {
		return nil, err
	}

	rows := config.Classifier.WindowSize()
	cols := config.Simulation.Channels
	window := src.Window(rows)

	ps := spectral.NewPowerSpectrum(config.Classifier.SamplingRate, neighbors)
	column := make([]float64, rows)

	out := make([]TargetSNR, len(freqs))
	for i, f := range freqs {
		var sum float64
		for _, ch := range config.Classifier.Channels {
			for r := range rows {
				column[r] = window[r*cols+ch]
			}
			snr, err := ps.SNR(column, f)
			if err != nil {
				return nil, fmt.Errorf("target %.2f Hz: %w", f, err)
			}
			sum += snr
		}
		mean := sum / float64(len(config.Classifier.Channels))
		out[i] = TargetSNR{Frequency: f, SNR: mean, Decibels: spectral.SNRDecibels(mean)}
	}
	return out, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := configs.ValidateConfig(appConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	targets, err := inspectWindow(appConfig, inspectNeighbors)
	if err != nil {
		return err
	}
	return printSNR(cmd.OutOrStdout(), appConfig.OutputFormat, targets)
}

func printSNR(w io.Writer, format string, targets []TargetSNR) error {
	if format != "table" {
		return encode(w, format, targets)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FREQUENCY\tSNR\tDB")
	for _, t := range targets {
		fmt.Fprintf(tw, "%s Hz\t%s\t%.1f\n",
			humanize.FtoaWithDigits(t.Frequency, 2), humanize.FtoaWithDigits(t.SNR, 1), t.Decibels)
	}
	return tw.Flush()
}
