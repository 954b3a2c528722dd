// Package soroban provides the client side of the Soroban rendezvous protocol.
//
// Two peers that share only a channel name meet through an untrusted,
// publicly readable directory (add/list/remove by name), exchange ephemeral
// Curve25519 keys and then trade NaCl box messages. Every message is
// published under a fresh name derived from the previous message, so no two
// messages of a session sit under linkable names.
package soroban
