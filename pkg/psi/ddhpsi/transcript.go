package ddhpsi

import (
	"sync"

	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

// Transcript holds copies of the protocol frames one party sent or
// accepted. It is meant for tests and offline replay.
type Transcript struct {
	mu     sync.Mutex
	frames map[wire.Type][]byte
}

func (t *Transcript) record(typ wire.Type, data []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frames == nil {
		t.frames = make(map[wire.Type][]byte)
	}
	t.frames[typ] = append([]byte(nil), data...)
}

// Frame returns the recorded frame of the given type, or nil.
func (t *Transcript) Frame(typ wire.Type) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.frames[typ]...)
}

// Len returns the number of recorded frames.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}
