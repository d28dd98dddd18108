//go:build !linux

package perfsession

import (
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/session"
)

type Backend struct{}

func New(opts Options) (*Backend, error) {
	return nil, ErrUnsupported
}

func (b *Backend) ArmCounters(descs []counters.Descriptor) error {
	return ErrUnsupported
}

func (b *Backend) NewPrivilegedSession(cfg *session.Config) (session.Session, error) {
	return nil, ErrUnsupported
}

func (b *Backend) NewProcessSession(cfg *session.Config) (session.ProcessSession, error) {
	return nil, ErrUnsupported
}
