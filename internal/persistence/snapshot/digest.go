package snapshot

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Reasons recorded in Header.Reason.
const (
	ReasonPeriodic  = ""
	ReasonRequested = "requested"
	ReasonShutdown  = "shutdown"
	// ReasonPreReset prefixes snapshots taken right before an admin score reset.
	ReasonPreReset = "pre_reset"
)

func PreResetReason(action string) string { return ReasonPreReset + ":" + action }

func IsPreReset(reason string) bool { return strings.HasPrefix(reason, ReasonPreReset) }

// Digest hashes the snapshot body with the header cleared, so two snapshots of
// the same state taken at different times compare equal.
func Digest(snap SnapshotV1) (string, error) {
	snap.Header = Header{}
	b, err := Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
