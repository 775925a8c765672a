// Package integrity provides tamper-evident hashing over the economy event
// log. All functions are pure and deterministic: the same event sequence
// always yields the same digest, so two copies of a cycle's history can be
// compared by digest alone.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/voltarena/tally/internal/model"
)

// EventHash produces a SHA-256 hex digest of an event's canonical fields.
// Each field is encoded as a 4-byte big-endian length prefix followed by
// the field bytes, which avoids delimiter collisions when payloads contain
// arbitrary text.
func EventHash(e model.Event) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // payload size is bounded by the store's row limits
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(strconv.Itoa(e.CycleNumber))
	writeField(strconv.Itoa(e.SequenceNumber))
	writeField(string(e.EventType))
	writeField(e.EventTimestamp.UTC().Format(time.RFC3339Nano))
	writeField(optionalID(e.UserID))
	writeField(optionalID(e.RobotID))
	writeField(optionalID(e.BattleID))
	writeField(string(e.Payload))
	return hex.EncodeToString(h.Sum(nil))
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
// The 0x01 prefix is a domain separator for internal Merkle tree nodes (per
// RFC 6962), ensuring internal node hashes can never collide with leaf
// content hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01}) // internal node domain separator
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// CycleDigest hashes a cycle's events, in sequence order, into a single
// Merkle root. Empty cycles digest to the empty string.
func CycleDigest(events []model.Event) string {
	leaves := make([]string, len(events))
	for i, e := range events {
		leaves[i] = EventHash(e)
	}
	return BuildMerkleRoot(leaves)
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root. Leaf order matters; callers pass events in sequence order so the
// digest is position-binding. Odd-length levels hash the last node with
// itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
