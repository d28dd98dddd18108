package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/signalnine/benchtrace/internal/trace"
)

const metaFile = "meta.json"

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func BenchmarkDir(runDir, benchmark string) string {
	return filepath.Join(runDir, "benchmarks", trace.SafeName(benchmark))
}

// TraceDir is the default location of trace artifacts within a run.
func TraceDir(runDir string) string {
	return filepath.Join(runDir, "traces")
}

func WriteBenchmarkMeta(dir string, meta *BenchmarkMeta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating benchmark dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o644)
}

func ReadBenchmarkMeta(path string) (*BenchmarkMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta BenchmarkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

// CollectBenchmarkMeta reads every meta.json under runDir, sorted by
// benchmark name. Unreadable files are skipped.
func CollectBenchmarkMeta(runDir string) ([]*BenchmarkMeta, error) {
	var metas []*BenchmarkMeta
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == metaFile {
			meta, err := ReadBenchmarkMeta(path)
			if err != nil {
				return nil
			}
			metas = append(metas, meta)
		}
		return nil
	})
	sort.Slice(metas, func(i, j int) bool { return metas[i].Benchmark < metas[j].Benchmark })
	return metas, err
}
