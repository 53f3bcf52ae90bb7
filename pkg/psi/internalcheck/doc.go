// Package internalcheck holds source-level policy tests for the psi
// packages.
//
// The tests load the non-test sources of every package under pkg/psi and
// reject patterns that leak secret material: variable-time comparison of
// byte encodings and hex formatting in log and error strings.
//
// # Internal Use Only
//
// The package has no API. It exists so the policies run with go test.
package internalcheck
