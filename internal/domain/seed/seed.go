// Package seed derives the deterministic seeds used for ghost selection.
package seed

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Subjects mixed into a derivation. Each operation that needs randomness
// uses its own subject so the streams never collide.
const (
	SubjectStartRun     = "start_run"
	SubjectFinishBattle = "finish_battle"
	SubjectFinishRun    = "finish_run"
)

const digestSize = 16

// Derive returns the first 8 bytes, little-endian, of blake2b-128 over the
// length-prefixed entropy, subject and account. The result is unpredictable
// without the entropy and reproducible with it.
func Derive(entropy []byte, subject, account string) uint64 {
	h, err := blake2b.New(digestSize, nil)
	if err != nil {
		// Only reachable with an invalid size or key.
		panic(fmt.Sprintf("seed: blake2b: %v", err))
	}
	for _, part := range [][]byte{entropy, []byte(subject), []byte(account)} {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(part)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(part)
	}
	return binary.LittleEndian.Uint64(h.Sum(nil)[:8])
}

// Entropy chains the server entropy with the account's previous seed.
func Entropy(server string, previous uint64) []byte {
	b := make([]byte, 0, len(server)+8)
	b = append(b, server...)
	return binary.LittleEndian.AppendUint64(b, previous)
}
