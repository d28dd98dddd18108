package counters_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultResolverStaysWithinBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		a, b := r.Uint64N(1<<40), r.Uint64N(1<<40)
		src := counters.SourceInfo{Min: min(a, b), Max: max(a, b), Nominal: r.Uint64N(1 << 41)}
		got := counters.DefaultResolver(src)
		if got < src.Min || got > src.Max {
			t.Fatalf("DefaultResolver(%+v) = %d, outside bounds", src, got)
		}
	}
}

func TestDefaultResolver(t *testing.T) {
	tests := []struct {
		name string
		src  counters.SourceInfo
		want uint64
	}{
		{"nominal above max", counters.SourceInfo{Min: 100, Max: 10000, Nominal: 50000}, 10000},
		{"nominal below min", counters.SourceInfo{Min: 100, Max: 10000, Nominal: 5}, 100},
		{"nominal inside", counters.SourceInfo{Min: 100, Max: 10000, Nominal: 4096}, 4096},
		{"degenerate range", counters.SourceInfo{Min: 7, Max: 7, Nominal: 0}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, counters.DefaultResolver(tt.src))
		})
	}
}

func TestResolveClampsToMax(t *testing.T) {
	sources := map[counters.ID]counters.SourceInfo{
		counters.CacheMisses: {Min: 100, Max: 10000, Nominal: 50000},
	}
	descs, err := counters.Resolve([]counters.ID{counters.CacheMisses}, nil, sources)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, counters.CacheMisses, descs[0].ID)
	assert.Equal(t, uint64(10000), descs[0].Interval)
	assert.Equal(t, sources[counters.CacheMisses], descs[0].Source)
}

func TestResolveUsesOverride(t *testing.T) {
	sources := map[counters.ID]counters.SourceInfo{
		counters.CPUCycles:    {Min: 10, Max: 1000, Nominal: 500},
		counters.BranchMisses: {Min: 10, Max: 1000, Nominal: 500},
	}
	overrides := map[counters.ID]counters.Resolver{
		counters.BranchMisses: func(s counters.SourceInfo) uint64 { return s.Min },
	}
	descs, err := counters.Resolve([]counters.ID{counters.CPUCycles, counters.BranchMisses, counters.CPUCycles}, overrides, sources)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, counters.CPUCycles, descs[0].ID)
	assert.Equal(t, uint64(500), descs[0].Interval)
	assert.Equal(t, counters.BranchMisses, descs[1].ID)
	assert.Equal(t, uint64(10), descs[1].Interval)
}

func TestResolveEmpty(t *testing.T) {
	descs, err := counters.Resolve(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestResolveMissingSource(t *testing.T) {
	_, err := counters.Resolve([]counters.ID{counters.RefCycles}, nil, map[counters.ID]counters.SourceInfo{})
	assert.ErrorIs(t, err, counters.ErrUnknownCounter)
}

func TestParse(t *testing.T) {
	ids, err := counters.Parse([]string{"cpu-cycles", "cache-misses"})
	require.NoError(t, err)
	assert.Equal(t, []counters.ID{counters.CPUCycles, counters.CacheMisses}, ids)

	_, err = counters.Parse([]string{"flux-capacitance"})
	assert.ErrorIs(t, err, counters.ErrUnknownCounter)
}

func TestPolicyResolver(t *testing.T) {
	src := counters.SourceInfo{Min: 10, Max: 1000, Nominal: 5000}
	tests := []struct {
		policy string
		value  uint64
		want   uint64
	}{
		{"", 0, 1000},
		{counters.PolicyDefault, 0, 1000},
		{counters.PolicyMin, 0, 10},
		{counters.PolicyMax, 0, 1000},
		{counters.PolicyNominal, 0, 5000},
		{counters.PolicyFixed, 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			r, err := counters.PolicyResolver(tt.policy, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r(src))
		})
	}

	_, err := counters.PolicyResolver(counters.PolicyFixed, 0)
	assert.Error(t, err)
	_, err = counters.PolicyResolver("median", 0)
	assert.Error(t, err)
}

type recordingArmer struct {
	calls [][]counters.Descriptor
	err   error
}

func (a *recordingArmer) ArmCounters(descs []counters.Descriptor) error {
	a.calls = append(a.calls, descs)
	return a.err
}

func TestArmSkipsEmptySet(t *testing.T) {
	a := &recordingArmer{}
	require.NoError(t, counters.Arm(a, nil))
	assert.Empty(t, a.calls)
}

func TestArmPropagatesFailure(t *testing.T) {
	boom := errors.New("pmu busy")
	a := &recordingArmer{err: boom}
	err := counters.Arm(a, []counters.Descriptor{{ID: counters.CPUCycles, Interval: 1000}})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.calls, 1)
}
