package group

import (
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
)

// ID identifies a group on the wire.
type ID uint8

const (
	Ristretto255 ID = 1
	Secp256k1    ID = 2
)

func (id ID) String() string {
	switch id {
	case Ristretto255:
		return "ristretto255"
	case Secp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("group(%d)", uint8(id))
	}
}

// Element is a group element. Bytes returns its canonical encoding; two
// elements are equal iff their encodings are.
type Element interface {
	Bytes() []byte
}

// Scalar is a secret exponent. Zeroize clears it in place.
type Scalar interface {
	Zeroize()
	IsZero() bool
}

// Group is the arithmetic the protocol needs from a prime-order group.
//
// For all elements e and nonzero scalars a, b:
//
//	Exp(Exp(e, a), b) == Exp(Exp(e, b), a)
type Group interface {
	ID() ID
	Name() string
	// ElementSize is the length of every canonical encoding.
	ElementSize() int
	// HashToElement maps arbitrary bytes to a group element.
	HashToElement(data []byte) (Element, error)
	// Exp raises e to the secret k.
	Exp(e Element, k Scalar) (Element, error)
	// RandomScalar samples a uniform nonzero exponent from rand.
	RandomScalar(rand io.Reader) (Scalar, error)
	// Equal compares encodings in constant time.
	Equal(a, b Element) bool
	// ParseElement decodes and validates a canonical encoding. The
	// identity element is rejected.
	ParseElement(b []byte) (Element, error)
}

// New returns the backend for id.
func New(id ID) (Group, error) {
	switch id {
	case Ristretto255:
		return ristrettoGroup{}, nil
	case Secp256k1:
		return secp256k1Group{}, nil
	default:
		return nil, fmt.Errorf("group: unknown group id %d", uint8(id))
	}
}

// Parse resolves a backend by name.
func Parse(name string) (Group, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ristretto255", "ristretto":
		return New(Ristretto255)
	case "secp256k1", "k256":
		return New(Secp256k1)
	default:
		return nil, fmt.Errorf("group: unknown group %q", name)
	}
}

func equalEncodings(a, b Element) bool {
	if a == nil || b == nil {
		return false
	}
	return subtle.ConstantTimeCompare(a.Bytes(), b.Bytes()) == 1
}
