//go:build !linux

package launcher

import "context"

// Local needs ptrace and is only available on Linux.
type Local struct{}

func (Local) Prepare(ctx context.Context, spec *Spec) (Process, error) {
	return nil, ErrUnsupported
}
