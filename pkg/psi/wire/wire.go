// Package wire encodes the three protocol messages and the abort frame.
//
// Every frame starts with a version byte and a type byte. Counts are u32,
// variable-length fields carry a u16 length prefix, and group elements are
// written back to back at the fixed size of the negotiated group. Decoders
// enforce the configured set-size bound before allocating and reject
// trailing bytes.
package wire

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
)

// Type tags a frame.
type Type uint8

const (
	TypeRound1 Type = 1
	TypeRound2 Type = 2
	TypeRound3 Type = 3
	TypeAbort  Type = 0xff
)

func (t Type) String() string {
	switch t {
	case TypeRound1:
		return "round1"
	case TypeRound2:
		return "round2"
	case TypeRound3:
		return "round3"
	case TypeAbort:
		return "abort"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// maxAbortReason bounds the diagnostic carried by an abort frame.
const maxAbortReason = 256

// Limits bounds what a decoder accepts.
type Limits struct {
	MaxSetSize int
}

// Round1 carries Party 1's blinded identifiers X = {H(v)^k1}.
type Round1 struct {
	Group    group.ID
	Elements [][]byte
}

// Round2 carries Z = X^k2, Y = {H(w)^k2}, the encrypted values aligned with
// Y, and the public key they were encrypted under.
type Round2 struct {
	Group         group.ID
	DoubleBlinded [][]byte
	Blinded       [][]byte
	Scheme        he.SchemeID
	PublicKey     []byte
	Ciphertexts   [][]byte
}

// Round3 carries |J| and the rerandomized encrypted sum.
type Round3 struct {
	IntersectionSize uint64
	Sum              []byte
}

// Abort tells the peer the sender failed and will not continue.
type Abort struct {
	Reason string
}

func newBuilder(t Type) *cryptobyte.Builder {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(psi.WireVersion)
	b.AddUint8(uint8(t))
	return b
}

func addElements(b *cryptobyte.Builder, elems [][]byte) {
	b.AddUint32(uint32(len(elems)))
	for _, e := range elems {
		b.AddBytes(e)
	}
}

func addPrefixed(b *cryptobyte.Builder, v []byte) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

func (m *Round1) Marshal() ([]byte, error) {
	b := newBuilder(TypeRound1)
	b.AddUint8(uint8(m.Group))
	addElements(b, m.Elements)
	return b.Bytes()
}

func (m *Round2) Marshal() ([]byte, error) {
	if len(m.Ciphertexts) != len(m.Blinded) {
		return nil, fmt.Errorf("wire: %d ciphertexts for %d blinded elements", len(m.Ciphertexts), len(m.Blinded))
	}
	b := newBuilder(TypeRound2)
	b.AddUint8(uint8(m.Group))
	addElements(b, m.DoubleBlinded)
	addElements(b, m.Blinded)
	b.AddUint8(uint8(m.Scheme))
	addPrefixed(b, m.PublicKey)
	for _, c := range m.Ciphertexts {
		addPrefixed(b, c)
	}
	return b.Bytes()
}

func (m *Round3) Marshal() ([]byte, error) {
	b := newBuilder(TypeRound3)
	b.AddUint64(m.IntersectionSize)
	addPrefixed(b, m.Sum)
	return b.Bytes()
}

func (m *Abort) Marshal() ([]byte, error) {
	reason := m.Reason
	if len(reason) > maxAbortReason {
		reason = reason[:maxAbortReason]
	}
	b := newBuilder(TypeAbort)
	addPrefixed(b, []byte(reason))
	return b.Bytes()
}
