// Package drbg provides a seeded deterministic byte stream for tests and
// replayable runs. It must never back a production session.
package drbg

import (
	"crypto/sha256"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const info = "cb-psi-go/drbg/v1"

// Reader is an io.Reader producing the ChaCha20 keystream under a key derived
// from the seed. Safe for concurrent use.
type Reader struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
}

// New derives a stream from seed. Equal seeds yield equal streams.
func New(seed []byte) *Reader {
	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(info)), key); err != nil {
		panic("drbg: hkdf: " + err.Error())
	}
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		panic("drbg: chacha20: " + err.Error())
	}
	return &Reader{cipher: c}
}

// NewString is New with a string seed.
func NewString(seed string) *Reader { return New([]byte(seed)) }

func (r *Reader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	r.mu.Lock()
	r.cipher.XORKeyStream(p, p)
	r.mu.Unlock()
	return len(p), nil
}
