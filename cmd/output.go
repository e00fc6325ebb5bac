package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-ssvep/algorithms/stats"
	"github.com/RyanBlaney/sonido-ssvep/internal/session"
	"github.com/RyanBlaney/sonido-ssvep/ssvep"
)

// encode writes v as JSON or YAML
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func formatScores(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = humanize.FtoaWithDigits(v, 3)
	}
	return strings.Join(parts, " ")
}

func formatOutcome(r *ssvep.TrialResult) string {
	if r.Matched() {
		return fmt.Sprintf("%d (%s Hz)", r.Outcome, humanize.FtoaWithDigits(r.Frequency, 2))
	}
	return ssvep.OutcomeString(r.Outcome)
}

// printTrials renders trial outcomes followed by a summary
func printTrials(w io.Writer, format string, trials []session.Trial, showFeatures bool) error {
	summary := session.Summarize(trials)

	if format != "table" {
		return encode(w, format, struct {
			Trials  []session.Trial `json:"trials" yaml:"trials"`
			Summary session.Summary `json:"summary" yaml:"summary"`
		}{trials, summary})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "TRIAL\tSTIMULUS\tOUTCOME\tCORRECT\tWAITED\tCOMPUTE"
	if showFeatures {
		header += "\tFEATURES"
	}
	fmt.Fprintln(tw, header)

	for _, t := range trials {
		row := fmt.Sprintf("%d\t%s Hz\t%s\t%t\t%s\t%s",
			t.Number,
			humanize.FtoaWithDigits(t.Stimulus, 2),
			formatOutcome(t.Result),
			t.Correct,
			t.Result.Waited.Round(1e6),
			t.Result.Computed.Round(1e3),
		)
		if showFeatures && t.Result.Features != nil {
			row += "\t" + formatScores(t.Result.Features.Features)
		}
		fmt.Fprintln(tw, row)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s trials: %d correct, %d wrong, %d no match, %d timeouts (accuracy %s%%)\n",
		humanize.Comma(int64(summary.Trials)),
		summary.Correct, summary.Wrong, summary.NoMatch, summary.Timeouts,
		humanize.FtoaWithDigits(summary.Accuracy*100, 1),
	)
	return err
}

// printBaseline renders per-target baseline distributions
func printBaseline(w io.Writer, format string, freqs []float64, baseline []stats.Gaussian) error {
	if format != "table" {
		type entry struct {
			Frequency float64 `json:"frequency" yaml:"frequency"`
			stats.Gaussian `yaml:",inline"`
		}
		entries := make([]entry, len(baseline))
		for i, g := range baseline {
			entries[i] = entry{Frequency: freqs[i], Gaussian: g}
		}
		return encode(w, format, entries)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tFREQUENCY\tMEAN\tSTD DEV")
	for i, g := range baseline {
		fmt.Fprintf(tw, "%d\t%s Hz\t%.4f\t%.4f\n", i, humanize.FtoaWithDigits(freqs[i], 2), g.Mean, g.StdDev)
	}
	return tw.Flush()
}
