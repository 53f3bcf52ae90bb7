package ddhpsi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/blind"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

// abortTimeout bounds the best-effort abort notification.
const abortTimeout = time.Second

// session is the state shared by both roles. Secrets live only here and only
// until the session reaches a terminal state.
type session struct {
	cfg     psi.Config
	b       Backends
	role    psi.Role
	opts    options
	blinder *blind.Builder
	log     logging.Logger

	mu      sync.Mutex
	state   State
	started bool
	k       group.Scalar
	sk      he.PrivateKey
	static  bool
}

func newSession(cfg psi.Config, b Backends, role psi.Role, opts []Option) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.Group == nil || b.Scheme == nil {
		return nil, psi.Errorf("ddhpsi.New", psi.ErrSetup, "backends are not resolved")
	}
	o := buildOptions(opts)
	s := &session{
		cfg:  cfg,
		b:    b,
		role: role,
		opts: o,
		log:  o.logger.With("role", role.String(), "group", b.Group.Name(), "scheme", b.Scheme.Name()),
	}
	s.blinder = blind.New(b.Group, o.rand,
		blind.WithWorkers(cfg.Parallelism()),
		blind.WithMaxSetSize(cfg.MaxSetSize),
		blind.WithShuffle(!cfg.DisableShuffle),
	)
	return s, nil
}

// State returns the current protocol state.
func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HoldsSecrets reports whether the session still references its exponent
// or a session-owned decryption key.
func (s *session) HoldsSecrets() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.k != nil || s.sk != nil
}

func (s *session) begin(job *psi.Job2P) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return psi.Errorf("ddhpsi.Run", psi.ErrSessionUsed, "session is in state %s", s.state)
	}
	s.started = true
	if job == nil {
		s.state = StateFailed
		return psi.Errorf("ddhpsi.Run", psi.ErrSetup, "nil job")
	}
	if job.Role() != s.role {
		s.state = StateFailed
		return psi.Errorf("ddhpsi.Run", psi.ErrSetup, "job role %s does not match session role %s", job.Role(), s.role)
	}
	return nil
}

func (s *session) advance(ctx context.Context, next State, args ...any) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	s.log.Debug(ctx, "state transition", append([]any{"from", prev.String(), "to", next.String()}, args...)...)
}

// sampleExponent draws the session exponent.
func (s *session) sampleExponent() (group.Scalar, error) {
	k, err := s.b.Group.RandomScalar(s.opts.rand)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.sampleExponent", psi.ErrSetup, err)
	}
	s.mu.Lock()
	s.k = k
	s.mu.Unlock()
	return k, nil
}

// finish zeroizes secrets and moves to DONE or FAILED. On a local failure the
// peer is told to stop so it does not wait for its round timeout.
func (s *session) finish(ctx context.Context, job *psi.Job2P, err error) {
	s.mu.Lock()
	if s.k != nil {
		s.k.Zeroize()
		s.k = nil
	}
	if s.sk != nil {
		if !s.static {
			s.sk.Zeroize()
		}
		s.sk = nil
	}
	prev := s.state
	if err != nil {
		s.state = StateFailed
	} else {
		s.state = StateDone
	}
	s.mu.Unlock()

	if err == nil {
		s.log.Debug(ctx, "state transition", "from", prev.String(), "to", StateDone.String())
		return
	}
	s.log.Warn(ctx, "session failed", "state", prev.String(), "error", err)
	if job == nil || errors.Is(err, psi.ErrPeerAborted) || errors.Is(err, psi.ErrTransport) || errors.Is(err, psi.ErrSessionUsed) {
		return
	}
	frame, merr := (&wire.Abort{Reason: abortReason(err)}).Marshal()
	if merr != nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if serr := job.Send(actx, frame); serr != nil {
		s.log.Debug(ctx, "abort notification not delivered", "error", serr)
	}
}

// abortReason names the failure kind without echoing local detail to the
// peer.
func abortReason(err error) string {
	if kind := psi.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal error"
}

func (s *session) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RoundTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RoundTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *session) send(ctx context.Context, job *psi.Job2P, typ wire.Type, frame []byte) error {
	op := "ddhpsi.send." + typ.String()
	rctx, cancel := s.roundContext(ctx)
	defer cancel()
	if err := job.Send(rctx, frame); err != nil {
		return psi.ContextError(op, err)
	}
	s.opts.transcript.record(typ, frame)
	return nil
}

// receive waits for the next frame, which must be of type want. An abort
// frame from the peer becomes ErrPeerAborted.
func (s *session) receive(ctx context.Context, job *psi.Job2P, want wire.Type) ([]byte, error) {
	op := "ddhpsi.receive." + want.String()
	rctx, cancel := s.roundContext(ctx)
	defer cancel()
	data, err := job.Receive(rctx)
	if err != nil {
		return nil, psi.ContextError(op, err)
	}
	typ, err := wire.PeekType(data)
	if err != nil {
		return nil, err
	}
	if typ == wire.TypeAbort {
		a, err := wire.UnmarshalAbort(data)
		if err != nil {
			return nil, err
		}
		return nil, psi.Errorf(op, psi.ErrPeerAborted, "peer reported %q", a.Reason)
	}
	if typ != want {
		return nil, psi.Errorf(op, psi.ErrMalformedMessage, "expected %s, got %s", want, typ)
	}
	s.opts.transcript.record(typ, data)
	return data, nil
}

func (s *session) limits() wire.Limits {
	return wire.Limits{MaxSetSize: s.cfg.MaxSetSize}
}

func (s *session) checkGroup(op string, id group.ID) error {
	if id != s.b.Group.ID() {
		return psi.Errorf(op, psi.ErrMalformedMessage, "peer uses group %s, session uses %s", id, s.b.Group.ID())
	}
	return nil
}

// classify tags a local computation failure with kind unless it was caused
// by the context ending.
func classify(op string, kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return psi.ContextError(op, err)
	}
	return psi.Wrap(op, kind, err)
}
