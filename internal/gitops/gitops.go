// Package gitops records which source revision a benchmark was built from.
package gitops

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned for directories outside a git work tree.
var ErrNotRepository = errors.New("not a git work tree")

// Revision returns the commit checked out in dir, suffixed with "-dirty"
// when the work tree has uncommitted changes.
func Revision(dir string) (string, error) {
	inside := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	inside.Dir = dir
	if out, err := inside.Output(); err != nil || strings.TrimSpace(string(out)) != "true" {
		return "", fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}

	head := exec.Command("git", "rev-parse", "HEAD")
	head.Dir = dir
	out, err := head.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %s: %w", out, err)
	}
	rev := strings.TrimSpace(string(out))

	status := exec.Command("git", "status", "--porcelain")
	status.Dir = dir
	changes, err := status.Output()
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	if len(strings.TrimSpace(string(changes))) > 0 {
		rev += "-dirty"
	}
	return rev, nil
}
