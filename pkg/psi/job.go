package psi

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBadPeers     = errors.New("invalid peers/self configuration")
	ErrNilTransport = errors.New("transport must not be nil")
	ErrJobClosed    = errors.New("job has been closed")
)

// Job2P binds a transport to one side of a two-party run.
type Job2P struct {
	transport Transport
	self      Role
	names     [2]string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJob2P constructs a 2-party job using the provided transport, role, and
// party names. Names must be stable, unique identifiers for each participant.
// This variant uses a background context; see NewJob2PWithContext to provide
// a cancellable context for transport operations.
func NewJob2P(t Transport, self Role, names [2]string) (*Job2P, error) {
	return NewJob2PWithContext(context.Background(), t, self, names)
}

// NewJob2PWithContext constructs a 2-party job with a parent context. A child
// context derived from ctx bounds all transport operations and is canceled
// during Close() to promptly unblock pending receives.
func NewJob2PWithContext(ctx context.Context, t Transport, self Role, names [2]string) (*Job2P, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if !self.Valid() {
		return nil, fmt.Errorf("%w: role %d is not valid", ErrBadPeers, self)
	}
	if names[0] == "" || names[1] == "" {
		return nil, fmt.Errorf("%w: party names must not be empty", ErrBadPeers)
	}
	if names[0] == names[1] {
		return nil, fmt.Errorf("%w: party names must be unique (got %q)", ErrBadPeers, names[0])
	}

	jobCtx, cancel := context.WithCancel(ctx)
	return &Job2P{transport: t, self: self, names: names, ctx: jobCtx, cancel: cancel}, nil
}

// Role returns the caller's protocol position.
func (j *Job2P) Role() Role { return j.self }

// Name returns the caller's party name.
func (j *Job2P) Name() string { return j.names[j.self] }

// PeerName returns the other party's name.
func (j *Job2P) PeerName() string { return j.names[j.self.Peer()] }

// Send delivers msg to the peer. The call is bounded by both ctx and the job
// context.
func (j *Job2P) Send(ctx context.Context, msg []byte) error {
	jobCtx, err := j.context()
	if err != nil {
		return err
	}
	ctx, stop := bind(ctx, jobCtx)
	defer stop()
	return j.transport.Send(ctx, j.self.Peer(), msg)
}

// Receive blocks until the next message from the peer arrives.
func (j *Job2P) Receive(ctx context.Context) ([]byte, error) {
	jobCtx, err := j.context()
	if err != nil {
		return nil, err
	}
	ctx, stop := bind(ctx, jobCtx)
	defer stop()
	return j.transport.Receive(ctx, j.self.Peer())
}

// Close cancels the job context. It is safe to call more than once.
func (j *Job2P) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	return nil
}

func (j *Job2P) context() (context.Context, error) {
	if j == nil {
		return nil, ErrJobClosed
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return nil, ErrJobClosed
	}
	return j.ctx, nil
}

// bind returns a context canceled when either parent is done.
func bind(ctx, jobCtx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(jobCtx, func() { cancel(context.Cause(jobCtx)) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
