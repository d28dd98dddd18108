package trace

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/signalnine/benchtrace/internal/counters"
)

const Version = 1

// ArtifactExt is appended to the unit name to form the artifact file name.
const ArtifactExt = ".trace.zst"

type Scope string

const (
	ScopeSystem  Scope = "system"
	ScopeProcess Scope = "process"
)

type Kind string

const (
	// KindCount is a counting event read once at stop.
	KindCount Kind = "count"
	// KindSample is a sampling hardware counter; Value holds the exact
	// count and Samples the overflow records drained from its ring.
	KindSample Kind = "sample"
)

// Record is one event's result for one CPU (or -1 for any CPU).
type Record struct {
	Scope   Scope         `cbor:"scope"`
	Source  string        `cbor:"source"`
	Kind    Kind          `cbor:"kind"`
	CPU     int           `cbor:"cpu"`
	Value   uint64        `cbor:"value"`
	Enabled time.Duration `cbor:"enabled"`
	Running time.Duration `cbor:"running"`
	Samples uint64        `cbor:"samples,omitempty"`
	Lost    uint64        `cbor:"lost,omitempty"`
	Period  uint64        `cbor:"period,omitempty"`
}

// Scaled extrapolates Value over the time the event was enabled but not
// scheduled on the PMU.
func (r Record) Scaled() float64 {
	if r.Running <= 0 || r.Running >= r.Enabled {
		return float64(r.Value)
	}
	return float64(r.Value) * float64(r.Enabled) / float64(r.Running)
}

// Log is what one capture session writes when it stops.
type Log struct {
	Session string    `cbor:"session"`
	Scope   Scope     `cbor:"scope"`
	Started time.Time `cbor:"started"`
	Stopped time.Time `cbor:"stopped"`
	Records []Record  `cbor:"records"`
}

type Header struct {
	Version  int                   `cbor:"version"`
	Unit     string                `cbor:"unit"`
	Pid      int                   `cbor:"pid"`
	Host     string                `cbor:"host"`
	Vendor   string                `cbor:"vendor"`
	Model    string                `cbor:"model"`
	Started  time.Time             `cbor:"started"`
	Stopped  time.Time             `cbor:"stopped"`
	Sessions []string              `cbor:"sessions"`
	Counters []counters.Descriptor `cbor:"counters"`
}

type Artifact struct {
	Header  Header   `cbor:"header"`
	Records []Record `cbor:"records"`
}

// ArtifactPath is where the artifact for unit is written inside dir.
func ArtifactPath(dir, unit string) string {
	return filepath.Join(dir, SafeName(unit)+ArtifactExt)
}

// LogPath is where a session of the given scope writes its log.
func LogPath(dir, unit string, scope Scope) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.cbor", SafeName(unit), scope))
}

// SafeName maps a unit key onto a single path element.
func SafeName(unit string) string {
	out := []byte(unit)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func WriteLog(path string, l *Log) error {
	return writeCBOR(path, l, false)
}

func ReadLog(path string) (*Log, error) {
	var l Log
	if err := readCBOR(path, &l, false); err != nil {
		return nil, err
	}
	return &l, nil
}

func WriteArtifact(path string, a *Artifact) error {
	if a.Header.Version == 0 {
		a.Header.Version = Version
	}
	return writeCBOR(path, a, true)
}

func ReadArtifact(path string) (*Artifact, error) {
	var a Artifact
	if err := readCBOR(path, &a, true); err != nil {
		return nil, err
	}
	if a.Header.Version != Version {
		return nil, fmt.Errorf("artifact %s: unsupported version %d", path, a.Header.Version)
	}
	return &a, nil
}
