package decision

import (
	"crypto/sha256"
	"encoding/binary"
)

// Digest content-addresses a decision attestation. The field order, the
// 0x00 separators after the variable-length string fields, and the
// little-endian 8-byte encodings of userID and timestamp are fixed protocol
// constants: the off-chain evaluator and the chain must derive bit-identical
// digests from identical inputs.
func Digest(message, response string, successful bool, userID uint64, sessionID string, timestamp int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(response))
	h.Write([]byte{0})
	if successful {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], userID)
	h.Write(le[:])
	h.Write([]byte(sessionID))
	binary.LittleEndian.PutUint64(le[:], uint64(timestamp))
	h.Write(le[:])

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// SignBytes is the preimage the decision authority signs: the same field
// serialization that feeds Digest.
func SignBytes(message, response string, successful bool, userID uint64, sessionID string, timestamp int64) []byte {
	out := make([]byte, 0, len(message)+len(response)+len(sessionID)+19)
	out = append(out, message...)
	out = append(out, 0)
	out = append(out, response...)
	out = append(out, 0)
	if successful {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], userID)
	out = append(out, le[:]...)
	out = append(out, sessionID...)
	binary.LittleEndian.PutUint64(le[:], uint64(timestamp))
	out = append(out, le[:]...)
	return out
}
