package psi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGroup               = "ristretto255"
	DefaultEncryption          = "paillier"
	DefaultPaillierBits        = 2048
	MinPaillierBits            = 1024
	DefaultElGamalMaxPlaintext = uint64(1) << 32
	DefaultMaxSetSize          = 1 << 20
	DefaultRoundTimeout        = 2 * time.Minute
)

// Config selects the backends and resource bounds for a session. The zero
// value is not valid; start from DefaultConfig.
type Config struct {
	// Group names the prime-order group, "ristretto255" or "secp256k1".
	Group string `yaml:"group"`

	// Encryption names the additive homomorphic scheme, "paillier" or
	// "elgamal-ristretto255".
	Encryption string `yaml:"encryption"`

	// PaillierBits is the Paillier modulus size.
	PaillierBits int `yaml:"paillier_bits"`

	// ElGamalMaxPlaintext bounds the values exponential ElGamal can decrypt.
	// Party 2 rejects negative values and totals above it with
	// ErrInvalidInput before the exchange starts.
	ElGamalMaxPlaintext uint64 `yaml:"elgamal_max_plaintext"`

	// MaxSetSize bounds |V|, |W| and every set received from the peer.
	MaxSetSize int `yaml:"max_set_size"`

	// RoundTimeout bounds each receive. Zero disables the per-round deadline.
	RoundTimeout time.Duration `yaml:"round_timeout"`

	// Workers bounds per-party parallelism. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// DisableShuffle keeps blinded sets in input order. Only meant for tests
	// that inspect transcripts.
	DisableShuffle bool `yaml:"disable_shuffle"`
}

// DefaultConfig returns the recommended settings.
func DefaultConfig() Config {
	return Config{
		Group:               DefaultGroup,
		Encryption:          DefaultEncryption,
		PaillierBits:        DefaultPaillierBits,
		ElGamalMaxPlaintext: DefaultElGamalMaxPlaintext,
		MaxSetSize:          DefaultMaxSetSize,
		RoundTimeout:        DefaultRoundTimeout,
	}
}

// Validate checks the configuration without resolving backends.
func (c Config) Validate() error {
	const op = "Config.Validate"
	if c.Group == "" {
		return Errorf(op, ErrSetup, "group is required")
	}
	if c.Encryption == "" {
		return Errorf(op, ErrSetup, "encryption is required")
	}
	if c.Encryption == "paillier" && c.PaillierBits < MinPaillierBits {
		return Errorf(op, ErrSetup, "paillier_bits %d below minimum %d", c.PaillierBits, MinPaillierBits)
	}
	if c.PaillierBits%2 != 0 {
		return Errorf(op, ErrSetup, "paillier_bits %d must be even", c.PaillierBits)
	}
	if c.Encryption == "elgamal-ristretto255" && c.ElGamalMaxPlaintext == 0 {
		return Errorf(op, ErrSetup, "elgamal_max_plaintext must be positive")
	}
	if c.MaxSetSize <= 0 {
		return Errorf(op, ErrSetup, "max_set_size must be positive")
	}
	if c.RoundTimeout < 0 {
		return Errorf(op, ErrSetup, "round_timeout must not be negative")
	}
	if c.Workers < 0 {
		return Errorf(op, ErrSetup, "workers must not be negative")
	}
	return nil
}

// Parallelism returns the effective worker bound.
func (c Config) Parallelism() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// LoadConfig reads a YAML configuration file. Fields absent from the file keep
// their DefaultConfig values; unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	absPath, err := SecurePath(path)
	if err != nil {
		return nil, fmt.Errorf("secure path: %w", err)
	}
	data, err := os.ReadFile(absPath) // #nosec G304 -- absPath validated by SecurePath
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration bytes on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, Wrap("ParseConfig", ErrSetup, fmt.Errorf("unmarshal YAML: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SecurePath validates that a file path doesn't escape the working directory.
// This prevents path traversal attacks when loading user-specified config files.
func SecurePath(path string) (string, error) {
	clean := filepath.Clean(path)
	absPath, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	base, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes working directory", path)
	}
	return absPath, nil
}
