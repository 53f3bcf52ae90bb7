package he

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"sync"

	"github.com/gtank/ristretto255"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

const (
	elgamalPointSize = 32
	elgamalCtSize    = 2 * elgamalPointSize
)

type elgamalScheme struct {
	maxPlaintext uint64
}

// NewElGamal returns exponential ElGamal over ristretto255. Decryption
// recovers plaintexts in [0, maxPlaintext] by baby-step giant-step search.
func NewElGamal(maxPlaintext uint64) (Scheme, error) {
	if maxPlaintext == 0 || maxPlaintext > 1<<48 {
		return nil, fmt.Errorf("he: elgamal plaintext bound %d not in [1, 2^48]", maxPlaintext)
	}
	return elgamalScheme{maxPlaintext: maxPlaintext}, nil
}

func (elgamalScheme) ID() SchemeID { return ElGamalRistretto255 }
func (elgamalScheme) Name() string { return ElGamalRistretto255.String() }

func (s elgamalScheme) GenerateKey(random io.Reader) (PrivateKey, error) {
	x, err := randomRistrettoScalar(random)
	if err != nil {
		return nil, err
	}
	pub := ristretto255.NewElement().ScalarBaseMult(x)
	return &elgamalPrivateKey{
		pk:  newElGamalPublicKey(pub, s.maxPlaintext),
		x:   x,
		max: s.maxPlaintext,
	}, nil
}

func (s elgamalScheme) ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != elgamalPointSize {
		return nil, fmt.Errorf("he: elgamal public key must be %d bytes, got %d", elgamalPointSize, len(b))
	}
	p := ristretto255.NewElement()
	if err := p.Decode(b); err != nil {
		return nil, fmt.Errorf("he: decode elgamal public key: %w", err)
	}
	if p.Equal(ristretto255.NewElement()) == 1 {
		return nil, errors.New("he: elgamal public key is the identity")
	}
	return newElGamalPublicKey(p, s.maxPlaintext), nil
}

type elgamalPublicKey struct {
	h   *ristretto255.Element
	enc []byte
	max uint64
}

func newElGamalPublicKey(h *ristretto255.Element, max uint64) *elgamalPublicKey {
	return &elgamalPublicKey{h: h, enc: h.Encode(nil), max: max}
}

// elgamalCiphertext is (r·G, m·G + r·H).
type elgamalCiphertext struct {
	c1, c2 *ristretto255.Element
}

func (c *elgamalCiphertext) Bytes() []byte {
	out := make([]byte, 0, elgamalCtSize)
	out = c.c1.Encode(out)
	return c.c2.Encode(out)
}

func (pk *elgamalPublicKey) Scheme() SchemeID { return ElGamalRistretto255 }
func (pk *elgamalPublicKey) CiphertextSize() int { return elgamalCtSize }
func (pk *elgamalPublicKey) Bytes() []byte { return append([]byte(nil), pk.enc...) }

func (pk *elgamalPublicKey) Encrypt(random io.Reader, m *big.Int) (Ciphertext, error) {
	if m == nil || m.Sign() < 0 || !m.IsUint64() {
		return nil, psi.Errorf("elgamal.Encrypt", psi.ErrInvalidInput, "plaintext must be a non-negative 64-bit integer")
	}
	mG := ristretto255.NewElement().ScalarBaseMult(scalarFromUint64(m.Uint64()))
	zero, err := pk.encryptZero(random)
	if err != nil {
		return nil, err
	}
	zero.c2.Add(zero.c2, mG)
	return zero, nil
}

// CheckPlaintexts requires non-negative values whose total stays within the
// decryption bound.
func (pk *elgamalPublicKey) CheckPlaintexts(values []int64) error {
	const op = "elgamal.CheckPlaintexts"
	var total uint64
	for i, v := range values {
		if v < 0 {
			return psi.Errorf(op, psi.ErrInvalidInput, "value %d is negative", i)
		}
		total += uint64(v)
		if total > pk.max {
			return psi.Errorf(op, psi.ErrInvalidInput, "values sum past the decryption bound %d", pk.max)
		}
	}
	return nil
}

func (pk *elgamalPublicKey) encryptZero(random io.Reader) (*elgamalCiphertext, error) {
	r, err := randomRistrettoScalar(random)
	if err != nil {
		return nil, err
	}
	defer r.Zero()
	return &elgamalCiphertext{
		c1: ristretto255.NewElement().ScalarBaseMult(r),
		c2: ristretto255.NewElement().ScalarMult(r, pk.h),
	}, nil
}

func (pk *elgamalPublicKey) Add(a, b Ciphertext) (Ciphertext, error) {
	ca, err := asElGamal(a)
	if err != nil {
		return nil, err
	}
	cb, err := asElGamal(b)
	if err != nil {
		return nil, err
	}
	return &elgamalCiphertext{
		c1: ristretto255.NewElement().Add(ca.c1, cb.c1),
		c2: ristretto255.NewElement().Add(ca.c2, cb.c2),
	}, nil
}

func (pk *elgamalPublicKey) Rerandomize(random io.Reader, c Ciphertext) (Ciphertext, error) {
	zero, err := pk.encryptZero(random)
	if err != nil {
		return nil, err
	}
	return pk.Add(c, zero)
}

func (pk *elgamalPublicKey) ParseCiphertext(b []byte) (Ciphertext, error) {
	if len(b) != elgamalCtSize {
		return nil, fmt.Errorf("he: elgamal ciphertext must be %d bytes, got %d", elgamalCtSize, len(b))
	}
	c1 := ristretto255.NewElement()
	if err := c1.Decode(b[:elgamalPointSize]); err != nil {
		return nil, fmt.Errorf("he: decode elgamal ciphertext: %w", err)
	}
	c2 := ristretto255.NewElement()
	if err := c2.Decode(b[elgamalPointSize:]); err != nil {
		return nil, fmt.Errorf("he: decode elgamal ciphertext: %w", err)
	}
	return &elgamalCiphertext{c1: c1, c2: c2}, nil
}

func asElGamal(c Ciphertext) (*elgamalCiphertext, error) {
	ec, ok := c.(*elgamalCiphertext)
	if !ok || ec == nil || ec.c1 == nil || ec.c2 == nil {
		return nil, errors.New("he: not an elgamal ciphertext")
	}
	return ec, nil
}

type elgamalPrivateKey struct {
	pk  *elgamalPublicKey
	x   *ristretto255.Scalar
	max uint64

	once  sync.Once
	table *babySteps
}

func (sk *elgamalPrivateKey) Public() PublicKey { return sk.pk }

// Decrypt recovers m from m·G = c2 - x·c1. A ciphertext under another key
// decrypts to an unrelated point, so it surfaces as an out-of-range failure.
func (sk *elgamalPrivateKey) Decrypt(c Ciphertext) (*big.Int, error) {
	const op = "elgamal.Decrypt"
	if sk.x == nil {
		return nil, psi.Errorf(op, psi.ErrDecryption, "key has been zeroized")
	}
	ec, err := asElGamal(c)
	if err != nil {
		return nil, psi.Wrap(op, psi.ErrDecryption, err)
	}
	mG := ristretto255.NewElement().ScalarMult(sk.x, ec.c1)
	mG.Subtract(ec.c2, mG)

	sk.once.Do(func() { sk.table = newBabySteps(sk.max) })
	m, ok := sk.table.solve(mG)
	if !ok {
		return nil, psi.Errorf(op, psi.ErrDecryption, "plaintext outside [0, %d] or wrong key", sk.max)
	}
	return new(big.Int).SetUint64(m), nil
}

func (sk *elgamalPrivateKey) Zeroize() {
	if sk.x != nil {
		sk.x.Zero()
		sk.x = nil
	}
}

// babySteps holds j·G for j in [0, step) keyed by encoding.
type babySteps struct {
	max   uint64
	step  uint64
	table map[[elgamalPointSize]byte]uint64
	giant *ristretto255.Element // -step·G
}

func newBabySteps(max uint64) *babySteps {
	step := uint64(math.Ceil(math.Sqrt(float64(max) + 1)))
	b := &babySteps{
		max:   max,
		step:  step,
		table: make(map[[elgamalPointSize]byte]uint64, step),
	}
	acc := ristretto255.NewElement()
	base := ristretto255.NewElement().Base()
	var key [elgamalPointSize]byte
	for j := uint64(0); j < step; j++ {
		acc.Encode(key[:0])
		b.table[key] = j
		acc.Add(acc, base)
	}
	b.giant = ristretto255.NewElement().ScalarBaseMult(scalarFromUint64(step))
	b.giant.Negate(b.giant)
	return b
}

func (b *babySteps) solve(target *ristretto255.Element) (uint64, bool) {
	cur := ristretto255.NewElement().Add(target, ristretto255.NewElement())
	var key [elgamalPointSize]byte
	for i := uint64(0); i*b.step <= b.max; i++ {
		cur.Encode(key[:0])
		if j, ok := b.table[key]; ok {
			m := i*b.step + j
			if m <= b.max {
				return m, true
			}
			return 0, false
		}
		cur.Add(cur, b.giant)
	}
	return 0, false
}

func scalarFromUint64(v uint64) *ristretto255.Scalar {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], v)
	s := ristretto255.NewScalar()
	if err := s.Decode(buf[:]); err != nil {
		// Values below 2^64 are always canonical.
		panic("he: scalar decode: " + err.Error())
	}
	return s
}

func randomRistrettoScalar(random io.Reader) (*ristretto255.Scalar, error) {
	var buf [64]byte
	defer psi.ZeroizeBytes(buf[:])
	zero := ristretto255.NewScalar()
	for {
		if _, err := io.ReadFull(random, buf[:]); err != nil {
			return nil, fmt.Errorf("he: elgamal randomness: %w", err)
		}
		s := ristretto255.NewScalar().FromUniformBytes(buf[:])
		if s.Equal(zero) == 0 {
			return s, nil
		}
	}
}
