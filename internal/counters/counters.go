// Package counters resolves requested hardware counters into armed
// descriptors whose sampling interval fits the bounds reported for the
// running CPU.
package counters

import (
	"errors"
	"fmt"
	"slices"
)

// ID names an abstract hardware counter.
type ID string

const (
	CPUCycles             ID = "cpu-cycles"
	Instructions          ID = "instructions"
	CacheReferences       ID = "cache-references"
	CacheMisses           ID = "cache-misses"
	BranchInstructions    ID = "branch-instructions"
	BranchMisses          ID = "branch-misses"
	BusCycles             ID = "bus-cycles"
	RefCycles             ID = "ref-cycles"
	StalledCyclesFrontend ID = "stalled-cycles-frontend"
	StalledCyclesBackend  ID = "stalled-cycles-backend"
)

var known = []ID{
	CPUCycles,
	Instructions,
	CacheReferences,
	CacheMisses,
	BranchInstructions,
	BranchMisses,
	BusCycles,
	RefCycles,
	StalledCyclesFrontend,
	StalledCyclesBackend,
}

var ErrUnknownCounter = errors.New("unknown hardware counter")

// Known returns every counter identifier benchtrace understands.
func Known() []ID {
	return slices.Clone(known)
}

func (id ID) Valid() bool {
	return slices.Contains(known, id)
}

// Parse converts configuration strings into identifiers.
func Parse(names []string) ([]ID, error) {
	ids := make([]ID, 0, len(names))
	for _, n := range names {
		id := ID(n)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCounter, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Descriptor is a counter resolved to a concrete sampling interval.
// Descriptors are values and are never mutated after Resolve returns them.
type Descriptor struct {
	ID       ID         `json:"id" cbor:"id"`
	Interval uint64     `json:"interval" cbor:"interval"`
	Source   SourceInfo `json:"source" cbor:"source"`
}

// Resolve produces one descriptor per requested counter, in request order.
// Duplicate requests collapse to their first occurrence. The resolver for a
// counter is taken from overrides when present, otherwise DefaultResolver.
func Resolve(requested []ID, overrides map[ID]Resolver, sources map[ID]SourceInfo) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(requested))
	seen := make(map[ID]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true

		src, ok := sources[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q has no interval source on this CPU", ErrUnknownCounter, id)
		}
		resolve := DefaultResolver
		if r, ok := overrides[id]; ok && r != nil {
			resolve = r
		}
		descs = append(descs, Descriptor{
			ID:       id,
			Interval: resolve(src),
			Source:   src,
		})
	}
	return descs, nil
}

// Armer registers resolved counters with the operating system.
type Armer interface {
	ArmCounters(descs []Descriptor) error
}

// Arm hands descs to a. An empty set is not armed at all.
func Arm(a Armer, descs []Descriptor) error {
	if len(descs) == 0 {
		return nil
	}
	if err := a.ArmCounters(descs); err != nil {
		return fmt.Errorf("arming %d hardware counter(s): %w", len(descs), err)
	}
	return nil
}
