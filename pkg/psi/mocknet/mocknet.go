// Package mocknet is an in-memory psi.Transport for tests and single-process
// runs. Messages between each ordered pair of roles are sequenced, so a
// receive always yields the next unread message from that sender.
package mocknet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

type Net struct {
	mu sync.Mutex
	q  map[queueKey]chan []byte
}

func New() *Net { return &Net{q: make(map[queueKey]chan []byte)} }

type queueKey struct {
	from psi.RoleID
	to   psi.RoleID
	seq  uint64
}

func (n *Net) slot(key queueKey) chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := n.q[key]
	if ch == nil {
		ch = make(chan []byte, 1)
		n.q[key] = ch
	}
	return ch
}

func (n *Net) deliver(ctx context.Context, key queueKey, payload []byte) error {
	ch := n.slot(key)
	msg := append([]byte(nil), payload...)
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Net) await(ctx context.Context, key queueKey) ([]byte, error) {
	ch := n.slot(key)
	select {
	case msg := <-ch:
		n.mu.Lock()
		delete(n.q, key)
		n.mu.Unlock()
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Endpoint is one party's view of the network.
type Endpoint struct {
	net  *Net
	self psi.RoleID
	peer psi.RoleID

	sendMu  sync.Mutex
	sendSeq uint64
	recvMu  sync.Mutex
	recvSeq uint64
}

// Ep2P returns the endpoint for self talking to peer.
func (n *Net) Ep2P(self, peer psi.RoleID) *Endpoint {
	return &Endpoint{net: n, self: self, peer: peer}
}

// Pair returns connected endpoints for both protocol roles.
func (n *Net) Pair() (p1, p2 *Endpoint) {
	return n.Ep2P(psi.RoleP1.ID(), psi.RoleP2.ID()), n.Ep2P(psi.RoleP2.ID(), psi.RoleP1.ID())
}

func (e *Endpoint) check(role psi.RoleID) error {
	if role == e.self {
		return errors.New("mocknet: self used as peer")
	}
	if role != e.peer {
		return fmt.Errorf("mocknet: unknown peer %d", role)
	}
	return nil
}

func (e *Endpoint) Send(ctx context.Context, to psi.RoleID, msg []byte) error {
	if err := e.check(to); err != nil {
		return err
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	key := queueKey{from: e.self, to: to, seq: e.sendSeq}
	if err := e.net.deliver(ctx, key, msg); err != nil {
		return err
	}
	e.sendSeq++
	return nil
}

func (e *Endpoint) Receive(ctx context.Context, from psi.RoleID) ([]byte, error) {
	if err := e.check(from); err != nil {
		return nil, err
	}
	e.recvMu.Lock()
	defer e.recvMu.Unlock()

	msg, err := e.net.await(ctx, queueKey{from: from, to: e.self, seq: e.recvSeq})
	if err != nil {
		return nil, err
	}
	e.recvSeq++
	return msg, nil
}

var _ psi.Transport = (*Endpoint)(nil)
