package counters

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const paranoidPath = "/proc/sys/kernel/perf_event_paranoid"

// Environment describes what the host allows perf_event users to do.
type Environment struct {
	GOOS string
	// Paranoid is kernel.perf_event_paranoid; 2 when unreadable.
	Paranoid   int
	Privileged bool
	Vendor     string
}

// CurrentEnvironment inspects the running host.
func CurrentEnvironment() Environment {
	env := Environment{
		GOOS:       runtime.GOOS,
		Paranoid:   2,
		Privileged: hasPerfmon(),
		Vendor:     DetectVendor(),
	}
	if data, err := os.ReadFile(paranoidPath); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			env.Paranoid = v
		}
	}
	return env
}

// CanSampleProcess reports whether hardware counters may be opened on
// another process of the same user.
func (e Environment) CanSampleProcess() bool {
	return e.Privileged || e.Paranoid <= 1
}

// CanTraceSystem reports whether system-wide per-CPU events may be opened.
func (e Environment) CanTraceSystem() bool {
	return e.Privileged || e.Paranoid <= 0
}

type ValidationError struct {
	Counter ID
	Message string
}

func (v ValidationError) Error() string {
	if v.Counter == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Counter, v.Message)
}

// Validate checks that the requested counters can be armed on env. When
// mandatory is false an empty request is accepted silently.
func Validate(requested []ID, catalog *Catalog, env Environment, mandatory bool) []ValidationError {
	if len(requested) == 0 {
		if mandatory {
			return []ValidationError{{Message: "no hardware counters requested"}}
		}
		return nil
	}
	if env.GOOS != "linux" {
		return []ValidationError{{Message: fmt.Sprintf("hardware counters need Linux perf_event support, running on %s", env.GOOS)}}
	}

	var errs []ValidationError
	if !env.CanSampleProcess() {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("perf_event_paranoid is %d; hardware counters need <= 1 or CAP_PERFMON", env.Paranoid),
		})
	}
	for _, id := range requested {
		if !id.Valid() {
			errs = append(errs, ValidationError{Counter: id, Message: "unknown counter"})
			continue
		}
		src, ok := catalog.Lookup(env.Vendor, id)
		if !ok {
			errs = append(errs, ValidationError{Counter: id, Message: fmt.Sprintf("not supported on %s", env.Vendor)})
			continue
		}
		if src.Min > src.Max {
			errs = append(errs, ValidationError{Counter: id, Message: fmt.Sprintf("interval bounds [%d, %d] are inverted", src.Min, src.Max)})
		}
	}
	return errs
}
