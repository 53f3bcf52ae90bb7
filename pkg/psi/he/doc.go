// Package he provides the additively homomorphic encryption schemes Party 2
// uses to hide its values. Ciphertexts combine with Add so that
// Decrypt(Add(Enc(a), Enc(b))) == a + b, and Rerandomize refreshes a
// ciphertext without changing its plaintext.
//
// Paillier is the default and handles signed values of any size below half
// the modulus. Exponential ElGamal over ristretto255 has much smaller keys and
// ciphertexts but can only decrypt non-negative sums up to a configured bound.
package he
