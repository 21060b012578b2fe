package world

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/territory"
)

// ExportSnapshot captures territory, structures and known players. Call it
// from the world goroutine or while the world is stopped.
func (w *World) ExportSnapshot(nowTick uint64, reason string) snapshot.SnapshotV1 {
	terr := w.svc.Export()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldID:       w.cfg.ID,
			Tick:          nowTick,
			Day:           terr.Day,
			Reason:        reason,
			CreatedUnixMs: w.now().UnixMilli(),
		},
		TickRate:   w.cfg.TickRateHz,
		DayTicks:   w.cfg.DayTicks,
		Territory:  terr,
		Structures: w.grid.Export(),
	}
	players := make([]snapshot.PlayerV1, 0, len(w.players))
	for _, p := range w.players {
		players = append(players, snapshot.PlayerV1{ID: p.ID, Name: p.Name, Pos: p.Pos.Array()})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID.String() < players[j].ID.String() })
	snap.Players = players
	return snap
}

// ImportSnapshot replaces the in-memory world state and sets the tick to
// snapshotTick+1. Every restored player starts offline.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	prevGrid := w.grid.Export()
	if err := w.grid.Import(s.Structures); err != nil {
		return fmt.Errorf("import structures: %w", err)
	}
	if err := w.svc.Import(s.Territory); err != nil {
		_ = w.grid.Import(prevGrid)
		return fmt.Errorf("import territory: %w", err)
	}

	w.players = map[uuid.UUID]*player{}
	for _, rec := range s.Players {
		w.players[rec.ID] = &player{ID: rec.ID, Name: rec.Name, Pos: territory.BlockPosFromArray(rec.Pos)}
	}
	w.tick.Store(s.Header.Tick + 1)
	w.lastDecay = w.now()
	return nil
}
