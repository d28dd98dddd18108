package trace_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() *trace.Artifact {
	start := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	return &trace.Artifact{
		Header: trace.Header{
			Unit:    "sort/ints",
			Pid:     4242,
			Vendor:  "GenuineIntel",
			Started: start,
			Stopped: start.Add(1500 * time.Millisecond),
			Counters: []counters.Descriptor{
				{ID: counters.CacheMisses, Interval: 10000, Source: counters.SourceInfo{Min: 100, Max: 10000, Nominal: 50000}},
			},
		},
		Records: []trace.Record{
			{Scope: trace.ScopeProcess, Source: "cache-misses", Kind: trace.KindSample, CPU: 0, Value: 30000, Enabled: 10, Running: 10, Samples: 3, Period: 10000},
			{Scope: trace.ScopeProcess, Source: "cache-misses", Kind: trace.KindSample, CPU: 1, Value: 10000, Enabled: 10, Running: 5, Samples: 1, Lost: 2, Period: 10000},
			{Scope: trace.ScopeProcess, Source: "cpu-cycles", Kind: trace.KindSample, CPU: 0, Value: 999},
			{Scope: trace.ScopeProcess, Source: "task-clock", Kind: trace.KindCount, CPU: -1, Value: 1_000_000},
			{Scope: trace.ScopeSystem, Source: "context-switches", Kind: trace.KindCount, CPU: 0, Value: 7},
			{Scope: trace.ScopeSystem, Source: "context-switches", Kind: trace.KindCount, CPU: 1, Value: 5},
		},
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	path := trace.ArtifactPath(t.TempDir(), "sort/ints")
	want := sampleArtifact()
	require.NoError(t, trace.WriteArtifact(path, want))

	got, err := trace.ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, trace.Version, got.Header.Version)
	assert.True(t, want.Header.Started.Equal(got.Header.Started), "sub-second timestamps survive encoding")
	assert.Equal(t, want.Header.Counters, got.Header.Counters)
	assert.Equal(t, want.Records, got.Records)
}

func TestParse(t *testing.T) {
	path := trace.ArtifactPath(t.TempDir(), "u")
	a := sampleArtifact()
	require.NoError(t, trace.WriteArtifact(path, a))

	metrics, err := trace.Parse(path, a.Header.Counters)
	require.NoError(t, err)

	byName := map[string]float64{}
	var names []string
	for _, m := range metrics {
		byName[m.Name] = m.Value
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"cache-misses", "cache-misses/samples", "cache-misses/lost",
		"process/task-clock", "system/context-switches",
	}, names)
	assert.InDelta(t, 50000, byName["cache-misses"], 0.001, "second record is scaled by enabled/running")
	assert.Equal(t, float64(4), byName["cache-misses/samples"])
	assert.Equal(t, float64(2), byName["cache-misses/lost"])
	assert.Equal(t, float64(12), byName["system/context-switches"])
}

func TestParseMissingCounterReportsZero(t *testing.T) {
	a := sampleArtifact()
	metrics := trace.Extract(a, []counters.Descriptor{{ID: counters.BranchMisses, Interval: 100}})
	require.NotEmpty(t, metrics)
	assert.Equal(t, "branch-misses", metrics[0].Name)
	assert.Zero(t, metrics[0].Value)
}

func TestParseRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+trace.ArtifactExt)
	require.NoError(t, os.WriteFile(path, []byte("not a trace"), 0o644))
	_, err := trace.Parse(path, nil)
	assert.Error(t, err)

	_, err = trace.Parse(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := trace.LogPath(dir, "u", trace.ScopeSystem)
	assert.Equal(t, filepath.Join(dir, "u.system.cbor"), path)

	l := &trace.Log{Session: "benchtrace-system-1", Scope: trace.ScopeSystem, Records: sampleArtifact().Records[4:]}
	require.NoError(t, trace.WriteLog(path, l))
	got, err := trace.ReadLog(path)
	require.NoError(t, err)
	assert.Equal(t, l.Records, got.Records)
	assert.Equal(t, l.Session, got.Session)
}

func TestRecordScaled(t *testing.T) {
	assert.Equal(t, 100.0, trace.Record{Value: 100}.Scaled())
	assert.Equal(t, 200.0, trace.Record{Value: 100, Enabled: 4, Running: 2}.Scaled())
	assert.Equal(t, 100.0, trace.Record{Value: 100, Enabled: 4, Running: 4}.Scaled())
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "sort_ints-v2.1", trace.SafeName("sort/ints-v2.1"))
	assert.Equal(t, "_", trace.SafeName(""))
}

func TestPerOperation(t *testing.T) {
	in := []trace.Metric{{Name: "cpu-cycles", Value: 1000}}
	out := trace.PerOperation(in, 10)
	assert.Equal(t, "cpu-cycles/op", out[0].Name)
	assert.Equal(t, 100.0, out[0].Value)
	assert.Equal(t, "cpu-cycles", in[0].Name, "input is not modified")
	assert.Equal(t, in, trace.PerOperation(in, 0))
}
