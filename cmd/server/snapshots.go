package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"siegecraft.ai/internal/persistence/archive"
	"siegecraft.ai/internal/persistence/indexdb"
	"siegecraft.ai/internal/persistence/snapshot"
)

type snapshotWriter struct {
	worldDir string
	idx      *indexdb.SQLiteIndex
	log      *log.Logger
}

// run writes snapshots from ch until ctx is done, then drains what is left.
func (sw *snapshotWriter) run(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case snap := <-ch:
					sw.writeLogged(snap)
				default:
					return
				}
			}
		case snap := <-ch:
			sw.writeLogged(snap)
		}
	}
}

func (sw *snapshotWriter) writeLogged(snap snapshot.SnapshotV1) {
	if _, err := sw.write(snap); err != nil {
		sw.log.Printf("snapshot write: %v", err)
	}
}

func (sw *snapshotWriter) write(snap snapshot.SnapshotV1) (string, error) {
	path := filepath.Join(sw.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	sw.idx.RecordSnapshot(path, snap)

	archivedPath, ok, err := archive.ArchiveResetSnapshot(sw.worldDir, path, snap)
	if err != nil {
		sw.log.Printf("archive reset snapshot: %v", err)
	} else if ok {
		sw.log.Printf("archived %s before %s", filepath.Base(archivedPath), snap.Header.Reason)
	}
	return path, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
