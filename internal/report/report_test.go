package report_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/benchtrace/internal/report"
	"github.com/signalnine/benchtrace/internal/result"
	"github.com/signalnine/benchtrace/internal/trace"
)

func writeRun(t *testing.T) string {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "runs", "test-run")
	metas := []*result.BenchmarkMeta{
		{
			Benchmark: "sort-ints",
			RunMode:   "extra-run",
			Launches: []result.Launch{
				{Index: 1, DurationNS: 2_000_000, ExitReason: "completed"},
				{Index: 2, DurationNS: 4_000_000, ExitReason: "completed"},
				{Index: 3, Diagnosed: true, DurationNS: 9_000_000, ExitReason: "completed"},
			},
			Artifact: "/traces/sort-ints.trace.zst",
			Metrics: []trace.Metric{
				{Name: "cache-misses", Value: 50000, Unit: "events"},
				{Name: "cache-misses/op", Value: 0.05, Unit: "events"},
			},
		},
		{
			Benchmark:       "hash-map",
			RunMode:         "no-overhead",
			Launches:        []result.Launch{{Index: 1, Diagnosed: true, DurationNS: 1_000_000, ExitCode: 1, ExitReason: "failed"}},
			DiagnosticError: "perf_event_open: EACCES",
		},
	}
	for _, m := range metas {
		if err := result.WriteBenchmarkMeta(result.BenchmarkDir(runDir, m.Benchmark), m); err != nil {
			t.Fatal(err)
		}
	}
	return runDir
}

func TestGenerateTable(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"sort-ints", "hash-map", "3.000 ms", "FAILED", "2 metric(s)", "50000", "0.0500"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Index(output, "hash-map") > strings.Index(output, "sort-ints") {
		t.Error("expected benchmarks sorted by name")
	}
}

func TestGenerateMarkdown(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "| Benchmark |") {
		t.Error("expected markdown table header")
	}
	if !strings.Contains(output, "### sort-ints") {
		t.Error("expected metrics section for sort-ints")
	}
	if strings.Contains(output, "### hash-map") {
		t.Error("hash-map has no metrics section")
	}
}

func TestGenerateJSON(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var summaries []report.BenchmarkSummary
	if err := json.Unmarshal(buf.Bytes(), &summaries); err != nil {
		t.Fatalf("parsing JSON: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	s := summaries[1]
	if s.Name != "sort-ints" || s.Launches != 2 || s.MeanMS != 3 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if summaries[0].DiagnosticError == "" {
		t.Error("expected diagnostic error on hash-map")
	}
}
