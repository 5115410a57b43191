package model

import (
	"fmt"
	"time"

	"google.golang.org/grpc"
)

// Options configures backend construction.
type Options struct {
	RemoteAddr    string
	RemoteTimeout time.Duration
	// Conn, when set, is used instead of dialing RemoteAddr.
	Conn grpc.ClientConnInterface
}

// New creates an untrained model for the backend.
func New(backend Backend, spec Spec, o Options) (Model, error) {
	switch backend {
	case BackendDense:
		return NewDense(spec)
	case BackendRemote:
		if o.Conn != nil {
			return NewRemoteWithConn(o.Conn, spec, o.RemoteTimeout)
		}
		return NewRemote(o.RemoteAddr, spec, o.RemoteTimeout)
	default:
		return nil, fmt.Errorf("unknown model backend %q", backend)
	}
}

// Restore rebuilds a trained model from a snapshot.
func Restore(s Snapshot, o Options) (Model, error) {
	switch s.Backend {
	case BackendDense:
		return RestoreDense(s)
	case BackendRemote:
		if s.Checkpoint == "" {
			return nil, fmt.Errorf("restore remote model: %w", ErrNotTrained)
		}
		m, err := New(BackendRemote, s.Spec, o)
		if err != nil {
			return nil, err
		}
		r := m.(*Remote)
		r.checkpoint = s.Checkpoint
		return r, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", s.Backend)
	}
}
