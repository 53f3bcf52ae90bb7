package group

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

const (
	secp256k1ElementSize = 33
	secp256k1HashDomain  = "cb-psi-go v1 secp256k1 hash-to-group"
	// Each attempt succeeds with probability about 1/2.
	secp256k1MaxAttempts = 256
)

type secp256k1Group struct{}

type secp256k1Element struct {
	p   btcec.JacobianPoint // affine, Z = 1
	enc []byte
}

func newSecp256k1Element(p *btcec.JacobianPoint) (*secp256k1Element, error) {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return nil, errors.New("group: point at infinity")
	}
	p.ToAffine()
	enc := btcec.NewPublicKey(&p.X, &p.Y).SerializeCompressed()
	return &secp256k1Element{p: *p, enc: enc}, nil
}

func (e *secp256k1Element) Bytes() []byte { return append([]byte(nil), e.enc...) }

type secp256k1Scalar struct {
	s btcec.ModNScalar
}

func (s *secp256k1Scalar) Zeroize() { s.s.Zero() }
func (s *secp256k1Scalar) IsZero() bool { return s.s.IsZero() }

func (secp256k1Group) ID() ID { return Secp256k1 }
func (secp256k1Group) Name() string { return Secp256k1.String() }
func (secp256k1Group) ElementSize() int { return secp256k1ElementSize }

// HashToElement hashes with try-and-increment: x = SHA-256(domain || data ||
// counter) until x is the abscissa of a curve point, taking the even root.
// secp256k1 has cofactor 1 so every such point is in the prime-order group.
func (secp256k1Group) HashToElement(data []byte) (Element, error) {
	var counter [4]byte
	for i := uint32(0); i < secp256k1MaxAttempts; i++ {
		h := sha256.New()
		h.Write([]byte(secp256k1HashDomain))
		h.Write(data)
		binary.BigEndian.PutUint32(counter[:], i)
		h.Write(counter[:])

		var x, y btcec.FieldVal
		if overflow := x.SetByteSlice(h.Sum(nil)); overflow {
			continue
		}
		if !btcec.DecompressY(&x, false, &y) {
			continue
		}
		var one btcec.FieldVal
		one.SetInt(1)
		p := btcec.MakeJacobianPoint(&x, &y, &one)
		return newSecp256k1Element(&p)
	}
	return nil, fmt.Errorf("group: hash-to-curve failed after %d attempts", secp256k1MaxAttempts)
}

func (secp256k1Group) Exp(e Element, k Scalar) (Element, error) {
	se, ok := e.(*secp256k1Element)
	if !ok {
		return nil, errors.New("group: element is not a secp256k1 element")
	}
	ss, ok := k.(*secp256k1Scalar)
	if !ok {
		return nil, errors.New("group: scalar is not a secp256k1 scalar")
	}
	var out btcec.JacobianPoint
	btcec.ScalarMultNonConst(&ss.s, &se.p, &out)
	return newSecp256k1Element(&out)
}

func (secp256k1Group) RandomScalar(rand io.Reader) (Scalar, error) {
	var buf [32]byte
	defer psi.ZeroizeBytes(buf[:])
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, fmt.Errorf("group: sample scalar: %w", err)
		}
		s := new(secp256k1Scalar)
		if overflow := s.s.SetByteSlice(buf[:]); overflow || s.s.IsZero() {
			continue
		}
		return s, nil
	}
}

func (secp256k1Group) Equal(a, b Element) bool { return equalEncodings(a, b) }

func (secp256k1Group) ParseElement(b []byte) (Element, error) {
	if len(b) != secp256k1ElementSize {
		return nil, fmt.Errorf("group: secp256k1 element must be %d bytes, got %d", secp256k1ElementSize, len(b))
	}
	pk, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("group: decode secp256k1 element: %w", err)
	}
	var p btcec.JacobianPoint
	pk.AsJacobian(&p)
	return &secp256k1Element{p: p, enc: append([]byte(nil), b...)}, nil
}
