package he

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

const (
	minPaillierBits = psi.MinPaillierBits
	maxPaillierBits = 8192
)

var one = big.NewInt(1)

type paillierScheme struct {
	bits int
}

// NewPaillier returns the Paillier scheme with a modulus of bits bits.
func NewPaillier(bits int) (Scheme, error) {
	if bits < minPaillierBits || bits > maxPaillierBits || bits%2 != 0 {
		return nil, fmt.Errorf("he: paillier modulus size %d not in [%d, %d] or odd", bits, minPaillierBits, maxPaillierBits)
	}
	return paillierScheme{bits: bits}, nil
}

func (paillierScheme) ID() SchemeID { return Paillier }
func (paillierScheme) Name() string { return Paillier.String() }

// GenerateKey samples two distinct bits/2-bit primes and uses g = n+1.
func (s paillierScheme) GenerateKey(random io.Reader) (PrivateKey, error) {
	for {
		p, err := rand.Prime(random, s.bits/2)
		if err != nil {
			return nil, fmt.Errorf("he: paillier prime: %w", err)
		}
		q, err := rand.Prime(random, s.bits/2)
		if err != nil {
			return nil, fmt.Errorf("he: paillier prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != s.bits {
			continue
		}
		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		phi := new(big.Int).Mul(pm1, qm1)
		mu := new(big.Int).ModInverse(phi, n)
		if mu == nil {
			continue
		}
		pk := newPaillierPublicKey(n)
		return &paillierPrivateKey{pk: pk, p: p, q: q, phi: phi, mu: mu}, nil
	}
}

func (s paillierScheme) ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) == 0 || b[0] == 0 {
		return nil, errors.New("he: paillier public key is empty or not minimally encoded")
	}
	n := new(big.Int).SetBytes(b)
	if n.BitLen() < minPaillierBits || n.BitLen() > maxPaillierBits {
		return nil, fmt.Errorf("he: paillier modulus size %d out of range", n.BitLen())
	}
	if n.Bit(0) == 0 {
		return nil, errors.New("he: paillier modulus is even")
	}
	return newPaillierPublicKey(n), nil
}

type paillierPublicKey struct {
	n      *big.Int
	nsq    *big.Int
	halfN  *big.Int
	ctSize int
}

func newPaillierPublicKey(n *big.Int) *paillierPublicKey {
	nsq := new(big.Int).Mul(n, n)
	return &paillierPublicKey{
		n:      n,
		nsq:    nsq,
		halfN:  new(big.Int).Rsh(n, 1),
		ctSize: 2 * ((n.BitLen() + 7) / 8),
	}
}

type paillierCiphertext struct {
	c  *big.Int
	pk *paillierPublicKey
}

func (c *paillierCiphertext) Bytes() []byte {
	return c.c.FillBytes(make([]byte, c.pk.ctSize))
}

func (pk *paillierPublicKey) Scheme() SchemeID { return Paillier }
func (pk *paillierPublicKey) CiphertextSize() int { return pk.ctSize }
func (pk *paillierPublicKey) Bytes() []byte { return pk.n.Bytes() }

// Encrypt computes (1 + m·n)·r^n mod n². Negative m is encoded as n + m.
func (pk *paillierPublicKey) Encrypt(random io.Reader, m *big.Int) (Ciphertext, error) {
	if m == nil {
		return nil, psi.Errorf("paillier.Encrypt", psi.ErrInvalidInput, "nil plaintext")
	}
	if new(big.Int).Abs(m).Cmp(pk.halfN) >= 0 {
		return nil, psi.Errorf("paillier.Encrypt", psi.ErrInvalidInput, "plaintext magnitude exceeds n/2")
	}
	mm := new(big.Int).Mod(m, pk.n)
	gm := mm.Mul(mm, pk.n)
	gm.Add(gm, one)
	rn, err := pk.randomMask(random)
	if err != nil {
		return nil, err
	}
	c := gm.Mul(gm, rn)
	c.Mod(c, pk.nsq)
	return &paillierCiphertext{c: c, pk: pk}, nil
}

// CheckPlaintexts bounds the positive and the negative totals separately by
// n/2, which covers every subset sum.
func (pk *paillierPublicKey) CheckPlaintexts(values []int64) error {
	pos, neg := new(big.Int), new(big.Int)
	var v big.Int
	for _, x := range values {
		v.SetInt64(x)
		if x >= 0 {
			pos.Add(pos, &v)
		} else {
			neg.Sub(neg, &v)
		}
	}
	if pos.Cmp(pk.halfN) >= 0 || neg.Cmp(pk.halfN) >= 0 {
		return psi.Errorf("paillier.CheckPlaintexts", psi.ErrInvalidInput, "values sum past n/2")
	}
	return nil
}

func (pk *paillierPublicKey) Add(a, b Ciphertext) (Ciphertext, error) {
	ca, err := pk.own(a)
	if err != nil {
		return nil, err
	}
	cb, err := pk.own(b)
	if err != nil {
		return nil, err
	}
	c := new(big.Int).Mul(ca.c, cb.c)
	c.Mod(c, pk.nsq)
	return &paillierCiphertext{c: c, pk: pk}, nil
}

// Rerandomize multiplies by a fresh r^n, an encryption of 0.
func (pk *paillierPublicKey) Rerandomize(random io.Reader, ct Ciphertext) (Ciphertext, error) {
	c, err := pk.own(ct)
	if err != nil {
		return nil, err
	}
	rn, err := pk.randomMask(random)
	if err != nil {
		return nil, err
	}
	out := rn.Mul(rn, c.c)
	out.Mod(out, pk.nsq)
	return &paillierCiphertext{c: out, pk: pk}, nil
}

func (pk *paillierPublicKey) ParseCiphertext(b []byte) (Ciphertext, error) {
	if len(b) != pk.ctSize {
		return nil, fmt.Errorf("he: paillier ciphertext must be %d bytes, got %d", pk.ctSize, len(b))
	}
	c := new(big.Int).SetBytes(b)
	if c.Sign() == 0 || c.Cmp(pk.nsq) >= 0 {
		return nil, errors.New("he: paillier ciphertext out of range")
	}
	if new(big.Int).GCD(nil, nil, c, pk.n).Cmp(one) != 0 {
		return nil, errors.New("he: paillier ciphertext not invertible")
	}
	return &paillierCiphertext{c: c, pk: pk}, nil
}

// own accepts ciphertexts produced under this key or an identical one.
func (pk *paillierPublicKey) own(ct Ciphertext) (*paillierCiphertext, error) {
	c, ok := ct.(*paillierCiphertext)
	if !ok || c == nil || c.c == nil {
		return nil, errors.New("he: not a paillier ciphertext")
	}
	if c.pk != pk && c.pk.n.Cmp(pk.n) != 0 {
		return nil, errors.New("he: paillier ciphertext under a different key")
	}
	return c, nil
}

// randomMask returns r^n mod n² for a uniform unit r.
func (pk *paillierPublicKey) randomMask(random io.Reader) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pk.n)
		if err != nil {
			return nil, fmt.Errorf("he: paillier randomness: %w", err)
		}
		if r.Sign() == 0 || new(big.Int).GCD(nil, nil, r, pk.n).Cmp(one) != 0 {
			continue
		}
		return r.Exp(r, pk.n, pk.nsq), nil
	}
}

type paillierPrivateKey struct {
	pk      *paillierPublicKey
	p, q    *big.Int
	phi, mu *big.Int
}

func (sk *paillierPrivateKey) Public() PublicKey { return sk.pk }

// Decrypt returns L(c^φ mod n²)·μ mod n, mapped to (-n/2, n/2].
func (sk *paillierPrivateKey) Decrypt(ct Ciphertext) (*big.Int, error) {
	const op = "paillier.Decrypt"
	if sk.phi == nil {
		return nil, psi.Errorf(op, psi.ErrDecryption, "key has been zeroized")
	}
	c, ok := ct.(*paillierCiphertext)
	if !ok || c == nil || c.c == nil {
		return nil, psi.Errorf(op, psi.ErrDecryption, "not a paillier ciphertext")
	}
	if c.pk != sk.pk && c.pk.n.Cmp(sk.pk.n) != 0 {
		return nil, psi.Errorf(op, psi.ErrDecryption, "ciphertext under a different key")
	}
	if c.c.Sign() <= 0 || c.c.Cmp(sk.pk.nsq) >= 0 {
		return nil, psi.Errorf(op, psi.ErrDecryption, "ciphertext out of range")
	}
	u := new(big.Int).Exp(c.c, sk.phi, sk.pk.nsq)
	u.Sub(u, one)
	if new(big.Int).Mod(u, sk.pk.n).Sign() != 0 {
		return nil, psi.Errorf(op, psi.ErrDecryption, "ciphertext is not a valid encryption")
	}
	u.Quo(u, sk.pk.n)
	u.Mul(u, sk.mu)
	u.Mod(u, sk.pk.n)
	if u.Cmp(sk.pk.halfN) > 0 {
		u.Sub(u, sk.pk.n)
	}
	return u, nil
}

func (sk *paillierPrivateKey) Zeroize() {
	psi.ZeroizeBig(sk.p)
	psi.ZeroizeBig(sk.q)
	psi.ZeroizeBig(sk.phi)
	psi.ZeroizeBig(sk.mu)
	sk.p, sk.q, sk.phi, sk.mu = nil, nil, nil, nil
}
