// Package ddhpsi runs the two-party DDH private intersection-sum protocol.
//
// Party 1 holds identifiers V. Party 2 holds records W = {(w_j, t_j)} and a
// homomorphic key pair. Three messages are exchanged:
//
//	P1 -> P2  X  = shuffle{ H(v)^k1 }
//	P2 -> P1  Z  = shuffle{ x^k2 },  Y = shuffle{ H(w_j)^k2 },  C = { Enc(t_j) } aligned with Y,  pk
//	P1 -> P2  |J|, Rerandomize(Enc(0) + Σ_{j∈J} C_j)  where J = { j : Y_j^k1 ∈ Z }
//
// Party 2 decrypts the sum. Neither side sees the other's identifiers; Party
// 1 only learns |J|. Security is semi-honest.
//
// Each Party1 or Party2 value drives exactly one run through the states
// INIT, R1_SENT, R2_SENT, R3_SENT and DONE, or stops in FAILED. Exponents and
// the decryption key are zeroized on both exits.
package ddhpsi
