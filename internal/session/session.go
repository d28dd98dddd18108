// Package session defines the capture-session contract and coordinates the
// privileged and process-scoped sessions that bracket one execution.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalnine/benchtrace/internal/counters"
)

var (
	ErrNotStarted        = errors.New("no capture sessions started for unit")
	ErrAlreadyDisposed   = errors.New("capture session already disposed")
	ErrInvalidTransition = errors.New("invalid capture session transition")
)

// Config is everything a session factory needs to capture one execution.
type Config struct {
	Unit            string
	Pid             int
	Counters        []counters.Descriptor
	KernelProviders []string
	UserProviders   []string
	OutputDir       string
}

// Session is one OS capture channel.
type Session interface {
	Name() string
	EnableProviders() error
	Stop() error
	Dispose() error
}

// ProcessSession is the process-scoped channel. It owns the merge: its
// MergeFiles folds other's captured data into a single artifact and
// returns the artifact path.
type ProcessSession interface {
	Session
	MergeFiles(other Session) (string, error)
}

type Factory interface {
	NewPrivilegedSession(cfg *Config) (Session, error)
	NewProcessSession(cfg *Config) (ProcessSession, error)
}

type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle tracks created, started, stopped and disposed states for session
// implementations. Dispose is legal from every state but only once.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Advance moves from `from` to `to`, failing if the session is elsewhere.
func (l *Lifecycle) Advance(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateDisposed {
		return ErrAlreadyDisposed
	}
	if l.state != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrInvalidTransition, from, to, l.state)
	}
	l.state = to
	return nil
}

// Dispose marks the session disposed and returns the state it left.
func (l *Lifecycle) Dispose() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateDisposed {
		return l.state, ErrAlreadyDisposed
	}
	prev := l.state
	l.state = StateDisposed
	return prev, nil
}
