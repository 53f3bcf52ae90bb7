package wire

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
)

func malformed(op, format string, args ...any) error {
	return psi.Errorf(op, psi.ErrMalformedMessage, format, args...)
}

// PeekType validates the header and returns the frame type.
func PeekType(data []byte) (Type, error) {
	s := cryptobyte.String(data)
	var version, t uint8
	if !s.ReadUint8(&version) || !s.ReadUint8(&t) {
		return 0, malformed("wire.PeekType", "short header")
	}
	if version != psi.WireVersion {
		return 0, malformed("wire.PeekType", "unsupported version %d", version)
	}
	switch Type(t) {
	case TypeRound1, TypeRound2, TypeRound3, TypeAbort:
		return Type(t), nil
	default:
		return 0, malformed("wire.PeekType", "unknown message type %d", t)
	}
}

func open(op string, data []byte, want Type) (cryptobyte.String, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	if t != want {
		return nil, malformed(op, "expected %s, got %s", want, t)
	}
	return cryptobyte.String(data[2:]), nil
}

func readGroup(op string, s *cryptobyte.String) (group.ID, int, error) {
	var id uint8
	if !s.ReadUint8(&id) {
		return 0, 0, malformed(op, "missing group id")
	}
	g, err := group.New(group.ID(id))
	if err != nil {
		return 0, 0, psi.Wrap(op, psi.ErrMalformedMessage, err)
	}
	return g.ID(), g.ElementSize(), nil
}

// readElements reads a u32 count followed by count fixed-size elements. The
// count is checked against the limit and the remaining input before any
// allocation.
func readElements(op string, s *cryptobyte.String, size int, lim Limits) ([][]byte, error) {
	var n uint32
	if !s.ReadUint32(&n) {
		return nil, malformed(op, "missing element count")
	}
	if lim.MaxSetSize > 0 && uint64(n) > uint64(lim.MaxSetSize) {
		return nil, psi.Errorf(op, psi.ErrSizeLimitExceeded, "%d elements exceeds limit %d", n, lim.MaxSetSize)
	}
	if uint64(n)*uint64(size) > uint64(len(*s)) {
		return nil, malformed(op, "%d elements of %d bytes overrun the message", n, size)
	}
	out := make([][]byte, n)
	for i := range out {
		var e []byte
		if !s.ReadBytes(&e, size) {
			return nil, malformed(op, "short element %d", i)
		}
		out[i] = e
	}
	return out, nil
}

func readPrefixed(op, what string, s *cryptobyte.String) ([]byte, error) {
	var v cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&v) {
		return nil, malformed(op, "short %s", what)
	}
	return []byte(v), nil
}

func finish(op string, s cryptobyte.String) error {
	if !s.Empty() {
		return malformed(op, "%d trailing bytes", len(s))
	}
	return nil
}

// UnmarshalRound1 decodes message 1.
func UnmarshalRound1(data []byte, lim Limits) (*Round1, error) {
	const op = "wire.UnmarshalRound1"
	s, err := open(op, data, TypeRound1)
	if err != nil {
		return nil, err
	}
	m := new(Round1)
	var size int
	if m.Group, size, err = readGroup(op, &s); err != nil {
		return nil, err
	}
	if m.Elements, err = readElements(op, &s, size, lim); err != nil {
		return nil, err
	}
	if err := finish(op, s); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalRound2 decodes message 2. Ciphertexts are returned as raw bytes;
// the caller parses them under PublicKey.
func UnmarshalRound2(data []byte, lim Limits) (*Round2, error) {
	const op = "wire.UnmarshalRound2"
	s, err := open(op, data, TypeRound2)
	if err != nil {
		return nil, err
	}
	m := new(Round2)
	var size int
	if m.Group, size, err = readGroup(op, &s); err != nil {
		return nil, err
	}
	if m.DoubleBlinded, err = readElements(op, &s, size, lim); err != nil {
		return nil, err
	}
	if m.Blinded, err = readElements(op, &s, size, lim); err != nil {
		return nil, err
	}
	var scheme uint8
	if !s.ReadUint8(&scheme) {
		return nil, malformed(op, "missing scheme id")
	}
	m.Scheme = he.SchemeID(scheme)
	if m.PublicKey, err = readPrefixed(op, "public key", &s); err != nil {
		return nil, err
	}
	// Each ciphertext needs at least its two-byte prefix.
	if uint64(len(m.Blinded))*2 > uint64(len(s)) {
		return nil, malformed(op, "%d ciphertexts overrun the message", len(m.Blinded))
	}
	m.Ciphertexts = make([][]byte, len(m.Blinded))
	for i := range m.Ciphertexts {
		if m.Ciphertexts[i], err = readPrefixed(op, "ciphertext", &s); err != nil {
			return nil, err
		}
	}
	if err := finish(op, s); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalRound3 decodes message 3.
func UnmarshalRound3(data []byte) (*Round3, error) {
	const op = "wire.UnmarshalRound3"
	s, err := open(op, data, TypeRound3)
	if err != nil {
		return nil, err
	}
	m := new(Round3)
	if !s.ReadUint64(&m.IntersectionSize) {
		return nil, malformed(op, "missing intersection size")
	}
	if m.Sum, err = readPrefixed(op, "sum ciphertext", &s); err != nil {
		return nil, err
	}
	if err := finish(op, s); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalAbort decodes an abort frame.
func UnmarshalAbort(data []byte) (*Abort, error) {
	const op = "wire.UnmarshalAbort"
	s, err := open(op, data, TypeAbort)
	if err != nil {
		return nil, err
	}
	reason, err := readPrefixed(op, "reason", &s)
	if err != nil {
		return nil, err
	}
	if len(reason) > maxAbortReason {
		return nil, malformed(op, "abort reason of %d bytes", len(reason))
	}
	if err := finish(op, s); err != nil {
		return nil, err
	}
	return &Abort{Reason: string(reason)}, nil
}
