package internalcheck

import (
	"testing"

	"golang.org/x/tools/go/packages"
)

const pattern = "github.com/coinbase/cb-psi-go/pkg/psi/..."

func load(t *testing.T, mode packages.LoadMode) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Fatalf("no packages matched %s", pattern)
	}
	return pkgs
}
