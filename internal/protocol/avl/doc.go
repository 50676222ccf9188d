// Package avl owns the AVL tracker wire contract.
//
// Ownership boundary:
// - identity (IMEI) handshake frame
// - Codec 8 / Codec 8 Extended data packets and records
// - acknowledgement encoding
// - CRC-16/IBM and length-prefixed message boundaries
package avl
