// Package group provides the prime-order groups the protocol blinds
// identifiers in. Each backend supplies a random-oracle hash into the group,
// exponentiation by a secret scalar, and a canonical element encoding that
// doubles as the equality key.
//
// Two backends are available:
//   - ristretto255 (default): constant-time arithmetic over the ristretto255
//     group, hashed with a BLAKE3 derive-key XOF.
//   - secp256k1: btcec/v2 arithmetic with SHA-256 try-and-increment hashing.
//     Exponentiation uses variable-time scalar multiplication.
package group
