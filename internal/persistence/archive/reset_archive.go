package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"siegecraft.ai/internal/persistence/snapshot"
)

type ResetArchiveMeta struct {
	Action    string `json:"action"`
	Tick      uint64 `json:"tick"`
	Day       int    `json:"day"`
	Factions  int    `json:"factions"`
	Snapshot  string `json:"snapshot"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at"`
}

// ArchiveResetSnapshot copies a snapshot taken right before an admin score reset
// into `worldDir/archives/reset_<tick>_<action>/`. Other snapshots are ignored
// and reported with archived=false.
func ArchiveResetSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !snapshot.IsPreReset(snap.Header.Reason) {
		return "", false, nil
	}
	action := strings.TrimPrefix(snap.Header.Reason, snapshot.ReasonPreReset)
	action = strings.ToLower(strings.TrimPrefix(action, ":"))
	if action == "" {
		action = "reset"
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("reset_%012d_%s", snap.Header.Tick, action))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	digest, _ := snapshot.Digest(snap)
	meta := ResetArchiveMeta{
		Action:    action,
		Tick:      snap.Header.Tick,
		Day:       snap.Header.Day,
		Factions:  len(snap.Territory.Factions),
		Snapshot:  filepath.Base(dst),
		Digest:    digest,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, true, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
