package replay

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/okian/ghostrun/internal/domain/types"
)

// verifyLeaderboard checks that entries are ranked 1..n in non-increasing EP.
func verifyLeaderboard(entries []types.Entry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrUnsorted, i, e.Rank)
		}
		if i > 0 && e.EP > entries[i-1].EP {
			return fmt.Errorf("%w: entry %d has higher EP than entry %d", ErrUnsorted, i, i-1)
		}
	}
	return nil
}

// Digest fingerprints a leaderboard as hex blake2b-256 over its
// (rank, account, ep) rows. Equal boards give equal digests on any host.
func Digest(entries []types.Entry) string {
	h, _ := blake2b.New256(nil)
	for _, e := range entries {
		_, _ = fmt.Fprintf(h, "%d\t%s\t%d\n", e.Rank, e.Account, e.EP)
	}
	return hex.EncodeToString(h.Sum(nil))
}
