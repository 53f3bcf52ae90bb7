package psi

import (
	"context"
	"fmt"
)

// RoleID identifies a party on the wire.
type RoleID uint32

// Role enumerates the two fixed protocol positions. RoleP1 holds the
// identifier set V, RoleP2 holds the valued records W and the decryption key.
type Role uint8

const (
	RoleP1 Role = iota
	RoleP2
)

// ID returns the transport identifier for r.
func (r Role) ID() RoleID { return RoleID(r) }

// Valid reports whether r is one of the two protocol roles.
func (r Role) Valid() bool { return r == RoleP1 || r == RoleP2 }

// Peer returns the transport identifier of the other party.
func (r Role) Peer() RoleID {
	if r == RoleP1 {
		return RoleID(RoleP2)
	}
	return RoleID(RoleP1)
}

func (r Role) String() string {
	switch r {
	case RoleP1:
		return "p1"
	case RoleP2:
		return "p2"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Transport is the ordered, reliable, authenticated channel the protocol runs
// over. Confidentiality and peer authentication are the transport's job.
//
// Concurrency: implementations MUST be safe for concurrent use by multiple
// goroutines. Messages between a fixed pair of parties are delivered in send
// order.
//
// Cancellation: Send and Receive must return promptly once ctx is done, with
// an error wrapping ctx.Err().
type Transport interface {
	Send(ctx context.Context, to RoleID, msg []byte) error
	Receive(ctx context.Context, from RoleID) ([]byte, error)
}
