package he

import (
	"fmt"
	"io"
	"math/big"
	"strings"
)

// SchemeID identifies an encryption scheme on the wire.
type SchemeID uint8

const (
	Paillier            SchemeID = 1
	ElGamalRistretto255 SchemeID = 2
)

func (id SchemeID) String() string {
	switch id {
	case Paillier:
		return "paillier"
	case ElGamalRistretto255:
		return "elgamal-ristretto255"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(id))
	}
}

// Ciphertext is an encrypted integer. Bytes returns its fixed-length
// encoding.
type Ciphertext interface {
	Bytes() []byte
}

// PublicKey encrypts and combines ciphertexts.
type PublicKey interface {
	Scheme() SchemeID
	Encrypt(rand io.Reader, m *big.Int) (Ciphertext, error)
	// Add returns a ciphertext of the sum of the plaintexts of a and b.
	Add(a, b Ciphertext) (Ciphertext, error)
	// Rerandomize returns a fresh-looking ciphertext of the same plaintext.
	Rerandomize(rand io.Reader, c Ciphertext) (Ciphertext, error)
	// ParseCiphertext decodes and validates a ciphertext under this key.
	ParseCiphertext(b []byte) (Ciphertext, error)
	// CheckPlaintexts fails with psi.ErrInvalidInput unless every subset sum
	// of values encrypts and decrypts under this key.
	CheckPlaintexts(values []int64) error
	// CiphertextSize is the length of every ciphertext encoding.
	CiphertextSize() int
	Bytes() []byte
}

// PrivateKey decrypts. Decrypt fails with psi.ErrDecryption for ciphertexts
// that are malformed or were produced under another key.
type PrivateKey interface {
	Public() PublicKey
	Decrypt(c Ciphertext) (*big.Int, error)
	Zeroize()
}

// Scheme generates keys and parses peer public keys.
type Scheme interface {
	ID() SchemeID
	Name() string
	GenerateKey(rand io.Reader) (PrivateKey, error)
	ParsePublicKey(b []byte) (PublicKey, error)
}

// Params carries the scheme-specific knobs.
type Params struct {
	PaillierBits        int
	ElGamalMaxPlaintext uint64
}

// New returns the scheme for id.
func New(id SchemeID, p Params) (Scheme, error) {
	switch id {
	case Paillier:
		return NewPaillier(p.PaillierBits)
	case ElGamalRistretto255:
		return NewElGamal(p.ElGamalMaxPlaintext)
	default:
		return nil, fmt.Errorf("he: unknown scheme id %d", uint8(id))
	}
}

// ParseID resolves a scheme name.
func ParseID(name string) (SchemeID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "paillier":
		return Paillier, nil
	case "elgamal-ristretto255", "elgamal":
		return ElGamalRistretto255, nil
	default:
		return 0, fmt.Errorf("he: unknown scheme %q", name)
	}
}

// Zero returns a fresh encryption of 0 under pk.
func Zero(rand io.Reader, pk PublicKey) (Ciphertext, error) {
	return pk.Encrypt(rand, new(big.Int))
}
