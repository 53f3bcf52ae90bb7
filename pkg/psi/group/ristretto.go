package group

import (
	"errors"
	"fmt"
	"io"

	"github.com/gtank/ristretto255"
	"github.com/zeebo/blake3"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

const (
	ristrettoElementSize = 32
	ristrettoHashContext = "cb-psi-go v1 ristretto255 hash-to-group"
)

type ristrettoGroup struct{}

type ristrettoElement struct {
	e   *ristretto255.Element
	enc []byte
}

func newRistrettoElement(e *ristretto255.Element) *ristrettoElement {
	return &ristrettoElement{e: e, enc: e.Encode(make([]byte, 0, ristrettoElementSize))}
}

func (e *ristrettoElement) Bytes() []byte { return append([]byte(nil), e.enc...) }

type ristrettoScalar struct {
	s *ristretto255.Scalar
}

func (s *ristrettoScalar) Zeroize() {
	if s.s != nil {
		s.s.Zero()
	}
}

func (s *ristrettoScalar) IsZero() bool {
	return s.s == nil || s.s.Equal(ristretto255.NewScalar()) == 1
}

func (ristrettoGroup) ID() ID { return Ristretto255 }
func (ristrettoGroup) Name() string { return Ristretto255.String() }
func (ristrettoGroup) ElementSize() int { return ristrettoElementSize }

func (ristrettoGroup) HashToElement(data []byte) (Element, error) {
	h := blake3.NewDeriveKey(ristrettoHashContext)
	if _, err := h.Write(data); err != nil {
		return nil, fmt.Errorf("group: hash: %w", err)
	}
	var uniform [64]byte
	if _, err := io.ReadFull(h.Digest(), uniform[:]); err != nil {
		return nil, fmt.Errorf("group: hash: %w", err)
	}
	return newRistrettoElement(ristretto255.NewElement().FromUniformBytes(uniform[:])), nil
}

func (g ristrettoGroup) Exp(e Element, k Scalar) (Element, error) {
	re, ok := e.(*ristrettoElement)
	if !ok {
		return nil, errors.New("group: element is not a ristretto255 element")
	}
	rs, ok := k.(*ristrettoScalar)
	if !ok || rs.s == nil {
		return nil, errors.New("group: scalar is not a ristretto255 scalar")
	}
	return newRistrettoElement(ristretto255.NewElement().ScalarMult(rs.s, re.e)), nil
}

func (ristrettoGroup) RandomScalar(rand io.Reader) (Scalar, error) {
	var buf [64]byte
	defer psi.ZeroizeBytes(buf[:])
	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, fmt.Errorf("group: sample scalar: %w", err)
		}
		s := &ristrettoScalar{s: ristretto255.NewScalar().FromUniformBytes(buf[:])}
		if !s.IsZero() {
			return s, nil
		}
	}
}

func (ristrettoGroup) Equal(a, b Element) bool { return equalEncodings(a, b) }

func (ristrettoGroup) ParseElement(b []byte) (Element, error) {
	if len(b) != ristrettoElementSize {
		return nil, fmt.Errorf("group: ristretto255 element must be %d bytes, got %d", ristrettoElementSize, len(b))
	}
	e := ristretto255.NewElement()
	if err := e.Decode(b); err != nil {
		return nil, fmt.Errorf("group: decode ristretto255 element: %w", err)
	}
	if e.Equal(ristretto255.NewElement()) == 1 {
		return nil, errors.New("group: identity element")
	}
	return &ristrettoElement{e: e, enc: append([]byte(nil), b...)}, nil
}
