package ddhpsi

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
)

// Backends are the group and encryption scheme a session runs over. Both
// parties must resolve the same pair.
type Backends struct {
	Group  group.Group
	Scheme he.Scheme
}

// Setup resolves the backends named in cfg.
func Setup(cfg psi.Config) (Backends, error) {
	const op = "ddhpsi.Setup"
	if err := cfg.Validate(); err != nil {
		return Backends{}, err
	}
	g, err := group.Parse(cfg.Group)
	if err != nil {
		return Backends{}, psi.Wrap(op, psi.ErrSetup, err)
	}
	id, err := he.ParseID(cfg.Encryption)
	if err != nil {
		return Backends{}, psi.Wrap(op, psi.ErrSetup, err)
	}
	s, err := he.New(id, he.Params{PaillierBits: cfg.PaillierBits, ElGamalMaxPlaintext: cfg.ElGamalMaxPlaintext})
	if err != nil {
		return Backends{}, psi.Wrap(op, psi.ErrSetup, err)
	}
	return Backends{Group: g, Scheme: s}, nil
}

type options struct {
	rand       io.Reader
	logger     logging.Logger
	transcript *Transcript
	staticKey  he.PrivateKey
}

type Option func(*options)

// WithRand sets the randomness source for exponents, keys, shuffles and
// encryption. It is read from several goroutines; reads are serialized
// internally. Defaults to crypto/rand.
func WithRand(r io.Reader) Option { return func(o *options) { o.rand = r } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithTranscript records every frame the session sends or accepts.
func WithTranscript(t *Transcript) Option { return func(o *options) { o.transcript = t } }

// WithStaticKey makes Party 2 reuse a caller-owned key pair instead of
// generating one per session. The session never zeroizes a static key.
// Reusing a key lets a decryption holder link sums across sessions, so it is
// off by default.
func WithStaticKey(sk he.PrivateKey) Option { return func(o *options) { o.staticKey = sk } }

func buildOptions(opts []Option) options {
	o := options{rand: rand.Reader}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(nil)
	}
	o.rand = &lockedReader{r: o.rand}
	return o
}

type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
