package mocknet

import (
	"context"
	"errors"
	"sync"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

// Fault describes how a Faulty transport misbehaves. Faults apply to
// outgoing messages only; the zero value forwards everything unchanged.
type Fault struct {
	// AfterSends lets that many messages through untouched before the fault
	// starts.
	AfterSends int

	// DropSends reports success without delivering.
	DropSends bool
	// Empty replaces the message with an empty one.
	Empty bool
	// Garbage replaces every byte with 0xff.
	Garbage bool
	// Truncate sends only the first half.
	Truncate bool
	// FlipByte xors 0x01 into the byte at this offset from the end, when
	// positive.
	FlipByte int
	// ReplayFirst sends the first message again in place of later ones.
	ReplayFirst bool
	// FailSends returns an error instead of sending.
	FailSends bool
}

// ErrInjected is returned by a Faulty transport configured with FailSends.
var ErrInjected = errors.New("mocknet: injected send failure")

// Faulty wraps a transport and corrupts what it sends, for exercising a
// peer's validation.
type Faulty struct {
	inner psi.Transport
	fault Fault

	mu    sync.Mutex
	sends int
	first []byte
}

var _ psi.Transport = (*Faulty)(nil)

// NewFaulty wraps inner with fault.
func NewFaulty(inner psi.Transport, fault Fault) *Faulty {
	return &Faulty{inner: inner, fault: fault}
}

func (f *Faulty) Send(ctx context.Context, to psi.RoleID, msg []byte) error {
	f.mu.Lock()
	f.sends++
	n := f.sends
	if f.first == nil {
		f.first = append([]byte{}, msg...)
	}
	first := f.first
	f.mu.Unlock()

	if n <= f.fault.AfterSends {
		return f.inner.Send(ctx, to, msg)
	}
	switch fl := f.fault; {
	case fl.FailSends:
		return ErrInjected
	case fl.DropSends:
		return nil
	case fl.Empty:
		return f.inner.Send(ctx, to, []byte{})
	case fl.Garbage:
		garbage := make([]byte, len(msg))
		for i := range garbage {
			garbage[i] = 0xff
		}
		return f.inner.Send(ctx, to, garbage)
	case fl.Truncate:
		return f.inner.Send(ctx, to, msg[:len(msg)/2])
	case fl.FlipByte > 0 && fl.FlipByte <= len(msg):
		corrupted := append([]byte{}, msg...)
		corrupted[len(corrupted)-fl.FlipByte] ^= 0x01
		return f.inner.Send(ctx, to, corrupted)
	case fl.ReplayFirst:
		return f.inner.Send(ctx, to, first)
	}
	return f.inner.Send(ctx, to, msg)
}

func (f *Faulty) Receive(ctx context.Context, from psi.RoleID) ([]byte, error) {
	return f.inner.Receive(ctx, from)
}

// Sends returns how many messages were offered to Send.
func (f *Faulty) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}
