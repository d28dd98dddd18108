package trace

import (
	"fmt"
	"slices"

	"github.com/signalnine/benchtrace/internal/counters"
)

// Metric is one named measurement extracted from an artifact.
type Metric struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	Legend string  `json:"legend,omitempty"`
}

// Parser turns an artifact into metrics.
type Parser interface {
	Parse(path string, descs []counters.Descriptor) ([]Metric, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(path string, descs []counters.Descriptor) ([]Metric, error)

func (f ParserFunc) Parse(path string, descs []counters.Descriptor) ([]Metric, error) {
	return f(path, descs)
}

// DefaultParser reads artifacts written by WriteArtifact.
var DefaultParser Parser = ParserFunc(Parse)

var providerUnits = map[string]string{
	"cpu-clock":  "ns",
	"task-clock": "ns",
}

// Parse reads the artifact at path and returns, in order: one metric per
// descriptor (plus its sample and lost counts), then process providers,
// then system providers. Records for counters absent from descs are ignored.
func Parse(path string, descs []counters.Descriptor) ([]Metric, error) {
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return Extract(a, descs), nil
}

// Extract is Parse over an already decoded artifact.
func Extract(a *Artifact, descs []counters.Descriptor) []Metric {
	type total struct {
		value   float64
		samples uint64
		lost    uint64
	}
	hw := make(map[counters.ID]*total)
	providers := map[Scope]map[string]float64{ScopeProcess: {}, ScopeSystem: {}}
	order := map[Scope][]string{}

	for _, r := range a.Records {
		if r.Kind == KindSample {
			t, ok := hw[counters.ID(r.Source)]
			if !ok {
				t = &total{}
				hw[counters.ID(r.Source)] = t
			}
			t.value += r.Scaled()
			t.samples += r.Samples
			t.lost += r.Lost
			continue
		}
		m, ok := providers[r.Scope]
		if !ok {
			continue
		}
		if _, seen := m[r.Source]; !seen {
			order[r.Scope] = append(order[r.Scope], r.Source)
		}
		m[r.Source] += r.Scaled()
	}

	var metrics []Metric
	for _, d := range descs {
		t := hw[d.ID]
		if t == nil {
			t = &total{}
		}
		metrics = append(metrics,
			Metric{Name: string(d.ID), Value: t.value, Unit: "events", Legend: fmt.Sprintf("%s counted for the target process", d.ID)},
			Metric{Name: string(d.ID) + "/samples", Value: float64(t.samples), Unit: "samples", Legend: fmt.Sprintf("overflow samples at interval %d", d.Interval)},
		)
		if t.lost > 0 {
			metrics = append(metrics, Metric{Name: string(d.ID) + "/lost", Value: float64(t.lost), Unit: "samples", Legend: "samples dropped by the ring buffer"})
		}
	}
	for _, scope := range []Scope{ScopeProcess, ScopeSystem} {
		for _, src := range order[scope] {
			metrics = append(metrics, Metric{
				Name:  string(scope) + "/" + src,
				Value: providers[scope][src],
				Unit:  unitFor(src),
			})
		}
	}
	return metrics
}

func unitFor(provider string) string {
	if u, ok := providerUnits[provider]; ok {
		return u
	}
	return "events"
}

// PerOperation divides every metric by ops. Metrics are copied.
func PerOperation(metrics []Metric, ops int64) []Metric {
	out := slices.Clone(metrics)
	if ops <= 0 {
		return out
	}
	for i := range out {
		out[i].Name += "/op"
		out[i].Value /= float64(ops)
	}
	return out
}
