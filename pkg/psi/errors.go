package psi

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSetup indicates backend resolution, key generation or exponent
	// sampling failed before any message was sent.
	ErrSetup = errors.New("psi: setup failed")

	// ErrMalformedMessage indicates a peer message failed to decode or
	// carried elements that do not belong to the negotiated group.
	ErrMalformedMessage = errors.New("psi: malformed message")

	// ErrSizeLimitExceeded indicates a set or message exceeded the configured
	// bound.
	ErrSizeLimitExceeded = errors.New("psi: size limit exceeded")

	// ErrDecryption indicates a ciphertext could not be decrypted.
	ErrDecryption = errors.New("psi: decryption failed")

	// ErrTimeout indicates a round did not complete within its deadline.
	ErrTimeout = errors.New("psi: round timeout")

	// ErrInvalidInput indicates local input was rejected before transmission.
	ErrInvalidInput = errors.New("psi: invalid input")

	// ErrTransport indicates the underlying channel failed.
	ErrTransport = errors.New("psi: transport failure")

	// ErrPeerAborted indicates the peer reported a failure and stopped.
	ErrPeerAborted = errors.New("psi: peer aborted")

	// ErrSessionUsed indicates Run was called on a session that already ran.
	ErrSessionUsed = errors.New("psi: session already used")
)

// Error annotates a failure with the operation and its kind. errors.Is
// matches both the kind sentinel and the wrapped cause.
type Error struct {
	Op   string // Operation that failed
	Kind error  // One of the sentinel errors above
	Err  error  // Underlying error, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("psi.%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("psi.%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap attaches op and kind to err. Errors that already carry a kind are
// returned unchanged so the innermost classification wins.
func Wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the sentinel kind carried by err, or nil.
func KindOf(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}

// ContextError classifies a context failure: deadline expiry becomes
// ErrTimeout, anything else ErrTransport.
func ContextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Kind: ErrTimeout, Err: err}
	}
	return Wrap(op, ErrTransport, err)
}
