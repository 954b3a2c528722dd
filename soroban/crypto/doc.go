// Package crypto provides the cryptographic primitives of the Soroban rendezvous protocol.
//
// Design goals:
//   - Wire compatibility with NaCl box (X25519 + XSalsa20-Poly1305, 24-byte nonces)
//   - Fresh random nonce per message, no sequence state in the channel
//   - Channel names derived by SHA-256 and rendered as lowercase hex
//   - Optional LZ4 compression of plaintexts agreed by both peers
package crypto
