package psi

import (
	"math/big"
	"runtime"
)

// ZeroizeBytes overwrites the provided slice with zeros and prevents compiler
// dead store elimination using runtime.KeepAlive.
//
// This cannot guarantee complete memory sanitization: the garbage collector
// and crypto libraries may hold copies.
func ZeroizeBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}

// ZeroizeBig clears the limbs backing x and sets it to zero.
func ZeroizeBig(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
	runtime.KeepAlive(words)
}
