package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/perfsession"
	"github.com/signalnine/benchtrace/internal/trace"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout    = 10 * time.Minute
	DefaultResultsDir = "results"
)

type Config struct {
	Benchmarks []Benchmark `yaml:"benchmarks"`
	Profiler   Profiler    `yaml:"profiler"`
	Results    Results     `yaml:"results"`
}

type Benchmark struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
	Image   string            `yaml:"image"`
	// Launches is the number of timing launches.
	Launches int `yaml:"launches"`
	// Operations is how many benchmark invocations one launch performs.
	Operations int64         `yaml:"operations"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Profiler struct {
	Enabled         bool                `yaml:"enabled"`
	Counters        []string            `yaml:"counters"`
	Intervals       map[string]Interval `yaml:"intervals"`
	KernelProviders []string            `yaml:"kernel_providers"`
	UserProviders   []string            `yaml:"user_providers"`
	ExtraRun        bool                `yaml:"extra_run"`
	Catalog         string              `yaml:"catalog"`
	OutputDir       string              `yaml:"output_dir"`
}

// Interval overrides how one counter's sampling interval is chosen.
type Interval struct {
	Policy string `yaml:"policy"`
	Value  uint64 `yaml:"value"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.Profiler.Catalog != "" && !filepath.IsAbs(cfg.Profiler.Catalog) {
		cfg.Profiler.Catalog = filepath.Join(filepath.Dir(path), cfg.Profiler.Catalog)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Benchmarks) == 0 {
		return fmt.Errorf("no benchmarks defined")
	}
	// Names key artifacts and result dirs on disk, so they must stay
	// distinct after being reduced to a file name.
	seen := make(map[string]string, len(cfg.Benchmarks))
	for i := range cfg.Benchmarks {
		b := &cfg.Benchmarks[i]
		if b.Name == "" {
			return fmt.Errorf("benchmark %d: name is required", i)
		}
		safe := trace.SafeName(b.Name)
		if prev, ok := seen[safe]; ok {
			if prev == b.Name {
				return fmt.Errorf("benchmark %q: duplicate name", b.Name)
			}
			return fmt.Errorf("benchmark %q: name collides with %q on disk (%s)", b.Name, prev, safe)
		}
		seen[safe] = b.Name
		if len(b.Command) == 0 {
			return fmt.Errorf("benchmark %q: command is required", b.Name)
		}
		if b.Launches == 0 {
			b.Launches = 1
		}
		if b.Launches < 0 {
			return fmt.Errorf("benchmark %q: launches must be at least 1", b.Name)
		}
		if b.Operations < 0 {
			return fmt.Errorf("benchmark %q: operations must not be negative", b.Name)
		}
		if b.Timeout == 0 {
			b.Timeout = DefaultTimeout
		}
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = DefaultResultsDir
	}
	return validateProfiler(&cfg.Profiler)
}

func validateProfiler(p *Profiler) error {
	if _, err := p.CounterIDs(); err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	if _, err := p.Overrides(); err != nil {
		return fmt.Errorf("profiler: %w", err)
	}
	if p.KernelProviders == nil {
		p.KernelProviders = perfsession.DefaultKernelProviders
	}
	if p.UserProviders == nil {
		p.UserProviders = perfsession.DefaultUserProviders
	}
	for _, name := range append(append([]string{}, p.KernelProviders...), p.UserProviders...) {
		if !perfsession.IsProvider(name) {
			return fmt.Errorf("profiler: unknown provider %q", name)
		}
	}
	return nil
}

// CounterIDs returns the requested counters in configuration order.
func (p *Profiler) CounterIDs() ([]counters.ID, error) {
	return counters.Parse(p.Counters)
}

// Overrides builds the per-counter interval resolvers.
func (p *Profiler) Overrides() (map[counters.ID]counters.Resolver, error) {
	if len(p.Intervals) == 0 {
		return nil, nil
	}
	out := make(map[counters.ID]counters.Resolver, len(p.Intervals))
	for name, iv := range p.Intervals {
		id := counters.ID(name)
		if !id.Valid() {
			return nil, fmt.Errorf("interval: %w: %q", counters.ErrUnknownCounter, name)
		}
		r, err := counters.PolicyResolver(iv.Policy, iv.Value)
		if err != nil {
			return nil, fmt.Errorf("interval for %s: %w", name, err)
		}
		out[id] = r
	}
	return out, nil
}

// LoadCatalog returns the configured interval catalog or the built-in one.
func (p *Profiler) LoadCatalog() (*counters.Catalog, error) {
	if p.Catalog == "" {
		return counters.DefaultCatalog(), nil
	}
	return counters.LoadCatalog(p.Catalog)
}
