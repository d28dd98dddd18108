package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/benchtrace/internal/result"
	"github.com/signalnine/benchtrace/internal/trace"
)

func TestWriteAndReadBenchmarkMeta(t *testing.T) {
	dir := t.TempDir()
	meta := &result.BenchmarkMeta{
		Benchmark: "sort-ints",
		RunMode:   "extra-run",
		Launches: []result.Launch{
			{Index: 1, DurationNS: 100, ExitReason: "completed"},
			{Index: 2, Diagnosed: true, DurationNS: 500, ExitReason: "completed"},
		},
		Metrics:  []trace.Metric{{Name: "cache-misses", Value: 50000}},
		Artifact: "/traces/sort-ints.trace.zst",
	}
	if err := result.WriteBenchmarkMeta(dir, meta); err != nil {
		t.Fatalf("WriteBenchmarkMeta: %v", err)
	}
	got, err := result.ReadBenchmarkMeta(filepath.Join(dir, "meta.json"))
	if err != nil {
		t.Fatalf("ReadBenchmarkMeta: %v", err)
	}
	if got.Benchmark != meta.Benchmark {
		t.Errorf("benchmark: got %q, want %q", got.Benchmark, meta.Benchmark)
	}
	if len(got.Metrics) != 1 || got.Metrics[0].Value != 50000 {
		t.Errorf("metrics: got %+v", got.Metrics)
	}
	if got.Artifact != meta.Artifact {
		t.Errorf("artifact: got %q, want %q", got.Artifact, meta.Artifact)
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestBenchmarkDir(t *testing.T) {
	base := t.TempDir()
	dir := result.BenchmarkDir(base, "Bench/Sort ints")
	expected := filepath.Join(base, "benchmarks", "Bench_Sort_ints")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestCollectBenchmarkMeta(t *testing.T) {
	runDir := t.TempDir()
	for _, name := range []string{"zeta", "alpha"} {
		if err := result.WriteBenchmarkMeta(result.BenchmarkDir(runDir, name), &result.BenchmarkMeta{Benchmark: name}); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(runDir, "meta.json"), []byte("{broken"), 0o644)

	metas, err := result.CollectBenchmarkMeta(runDir)
	if err != nil {
		t.Fatalf("CollectBenchmarkMeta: %v", err)
	}
	if len(metas) != 2 || metas[0].Benchmark != "alpha" || metas[1].Benchmark != "zeta" {
		t.Errorf("unexpected metas: %+v", metas)
	}
}

func TestMeanDurationSkipsExtraRun(t *testing.T) {
	meta := &result.BenchmarkMeta{
		RunMode: "extra-run",
		Launches: []result.Launch{
			{DurationNS: int64(100 * time.Millisecond), ExitReason: "completed"},
			{DurationNS: int64(300 * time.Millisecond), ExitReason: "completed"},
			{Diagnosed: true, DurationNS: int64(time.Second), ExitReason: "completed"},
		},
	}
	if got := meta.MeanDuration(); got != 200*time.Millisecond {
		t.Errorf("mean: got %v, want 200ms", got)
	}
	meta.RunMode = "no-overhead"
	if got := meta.MeanDuration(); got != 1400*time.Millisecond/3 {
		t.Errorf("mean: got %v", got)
	}
	if !meta.Passed() {
		t.Error("expected passed")
	}
	meta.Launches[0].ExitReason = "crashed"
	if meta.Passed() {
		t.Error("expected failure")
	}
}
