//go:build !unix

package launcher

import "context"

type Docker struct{}

func (Docker) Prepare(ctx context.Context, spec *Spec) (Process, error) {
	return nil, ErrUnsupported
}
