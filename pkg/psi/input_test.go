package psi_test

import (
	"errors"
	"testing"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

func TestValidateIdentifiers(t *testing.T) {
	ids := psi.StringIdentifiers([]string{"alice", "bob"})
	if err := psi.ValidateIdentifiers(ids, 2); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := psi.ValidateIdentifiers(ids, 1); !errors.Is(err, psi.ErrSizeLimitExceeded) {
		t.Fatalf("expected size limit, got %v", err)
	}
	if err := psi.ValidateIdentifiers([][]byte{{}}, 0); !errors.Is(err, psi.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := psi.ValidateIdentifiers(nil, 10); err != nil {
		t.Fatalf("empty set rejected: %v", err)
	}
}

func TestValidateRecords(t *testing.T) {
	records := []psi.Record{{Identifier: []byte("alice"), Value: 10}}
	if err := psi.ValidateRecords(records, 10); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	records = append(records, psi.Record{Value: 3})
	if err := psi.ValidateRecords(records, 10); !errors.Is(err, psi.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if got := psi.Identifiers(records[:1]); string(got[0]) != "alice" {
		t.Fatalf("identifiers = %q", got)
	}
}
