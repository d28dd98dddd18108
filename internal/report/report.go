package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/benchtrace/internal/result"
	"github.com/signalnine/benchtrace/internal/trace"
)

type BenchmarkSummary struct {
	Name            string         `json:"name"`
	Launches        int            `json:"launches"`
	Passed          bool           `json:"passed"`
	MeanMS          float64        `json:"mean_ms"`
	RunMode         string         `json:"run_mode,omitempty"`
	Artifact        string         `json:"artifact,omitempty"`
	DiagnosticError string         `json:"diagnostic_error,omitempty"`
	Metrics         []trace.Metric `json:"metrics,omitempty"`
}

// Generate reads benchmark results and produces a summary report.
func Generate(runDir, format string, w io.Writer) error {
	metas, err := result.CollectBenchmarkMeta(runDir)
	if err != nil {
		return err
	}
	summaries := summarize(metas)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func summarize(metas []*result.BenchmarkMeta) []BenchmarkSummary {
	summaries := make([]BenchmarkSummary, 0, len(metas))
	for _, m := range metas {
		summaries = append(summaries, BenchmarkSummary{
			Name:            m.Benchmark,
			Launches:        len(m.TimingLaunches()),
			Passed:          m.Passed(),
			MeanMS:          float64(m.MeanDuration().Microseconds()) / 1000,
			RunMode:         m.RunMode,
			Artifact:        m.Artifact,
			DiagnosticError: m.DiagnosticError,
			Metrics:         m.Metrics,
		})
	}
	return summaries
}

func status(s BenchmarkSummary) string {
	if s.Passed {
		return "ok"
	}
	return "FAILED"
}

func diagnostics(s BenchmarkSummary) string {
	switch {
	case s.DiagnosticError != "":
		return "error"
	case s.Artifact != "":
		return fmt.Sprintf("%d metric(s)", len(s.Metrics))
	default:
		return "-"
	}
}

func writeTable(summaries []BenchmarkSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tLAUNCHES\tSTATUS\tMEAN\tDIAGNOSTICS")
	fmt.Fprintln(tw, strings.Repeat("-", 64))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.3f ms\t%s\n", s.Name, s.Launches, status(s), s.MeanMS, diagnostics(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range summaries {
		if len(s.Metrics) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", s.Name)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "METRIC\tVALUE\tUNIT\t")
		for _, m := range s.Metrics {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", m.Name, formatValue(m.Value), m.Unit)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkdown(summaries []BenchmarkSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Benchmark | Launches | Status | Mean | Diagnostics |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %s | %.3f ms | %s |\n", s.Name, s.Launches, status(s), s.MeanMS, diagnostics(s))
	}
	for _, s := range summaries {
		if len(s.Metrics) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n### %s\n\n", s.Name)
		fmt.Fprintln(w, "| Metric | Value | Unit |")
		fmt.Fprintln(w, "|---|---:|---|")
		for _, m := range s.Metrics {
			fmt.Fprintf(w, "| %s | %s | %s |\n", m.Name, formatValue(m.Value), m.Unit)
		}
	}
	return nil
}

func writeJSON(summaries []BenchmarkSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// formatValue prints integral values without decimals and per-operation
// fractions with four.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4f", v)
}
