package structures

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/territory"
)

// Grid stores placed claim blocks by position. It is owned by the world loop
// and is not safe for concurrent use.
type Grid struct {
	cfg   Config
	byPos map[territory.BlockPos]territory.Structure
}

func NewGrid(cfg Config) *Grid {
	return &Grid{cfg: cfg, byPos: map[territory.BlockPos]territory.Structure{}}
}

func (g *Grid) StructureAt(pos territory.BlockPos) (territory.Structure, bool) {
	st, ok := g.byPos[pos]
	return st, ok
}

// Place puts a structure of kind k at pos, replacing whatever stood there.
func (g *Grid) Place(k Kind, pos territory.BlockPos, faction uuid.UUID) (territory.Structure, error) {
	if _, ok := ParseKind(string(k)); !ok {
		return nil, fmt.Errorf("unknown structure kind %q", k)
	}
	claim := Claim{kind: k, pos: pos, faction: faction, strengths: g.cfg.strengthsFor(k)}
	var st territory.Structure
	if k == KindSiegeCamp {
		st = &Camp{Claim: claim}
	} else {
		c := claim
		st = &c
	}
	g.byPos[pos] = st
	return st, nil
}

func (g *Grid) PlaceBasicClaim(pos territory.BlockPos, faction uuid.UUID) (territory.Structure, error) {
	return g.Place(KindBasicClaim, pos, faction)
}

func (g *Grid) PlaceCitadel(pos territory.BlockPos, faction uuid.UUID) (territory.Structure, error) {
	return g.Place(KindCitadel, pos, faction)
}

func (g *Grid) PlaceAdminClaim(pos territory.BlockPos, faction uuid.UUID) (territory.Structure, error) {
	return g.Place(KindAdminClaim, pos, faction)
}

func (g *Grid) PlaceSiegeCamp(pos territory.BlockPos, faction uuid.UUID) (territory.SiegeCamp, error) {
	st, err := g.Place(KindSiegeCamp, pos, faction)
	if err != nil {
		return nil, err
	}
	return st.(*Camp), nil
}

func (g *Grid) Remove(pos territory.BlockPos) { delete(g.byPos, pos) }

func (g *Grid) Len() int { return len(g.byPos) }

// Camps returns every siege camp ordered by position.
func (g *Grid) Camps() []*Camp {
	var out []*Camp
	for _, st := range g.byPos {
		if c, ok := st.(*Camp); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pos.Less(out[j].pos) })
	return out
}

func kindOf(st territory.Structure) Kind {
	switch v := st.(type) {
	case *Camp:
		return KindSiegeCamp
	case *Claim:
		return v.kind
	}
	return KindBasicClaim
}

func (g *Grid) Export() []snapshot.StructureV1 {
	positions := make([]territory.BlockPos, 0, len(g.byPos))
	for pos := range g.byPos {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Less(positions[j]) })

	out := make([]snapshot.StructureV1, 0, len(positions))
	for _, pos := range positions {
		st := g.byPos[pos]
		rec := snapshot.StructureV1{Kind: string(kindOf(st)), Pos: pos.Array(), Faction: st.Faction()}
		if c, ok := st.(*Camp); ok {
			rec.AbandonTimer = c.abandonTimer
			if t, ok := c.Target(); ok {
				a := t.Array()
				rec.Target = &a
			}
		}
		out = append(out, rec)
	}
	return out
}

// Import replaces the grid contents. Strengths come from the current config.
func (g *Grid) Import(recs []snapshot.StructureV1) error {
	next := NewGrid(g.cfg)
	for _, rec := range recs {
		k, ok := ParseKind(rec.Kind)
		if !ok {
			return fmt.Errorf("structure at %v: unknown kind %q", rec.Pos, rec.Kind)
		}
		st, err := next.Place(k, territory.BlockPosFromArray(rec.Pos), rec.Faction)
		if err != nil {
			return err
		}
		if c, ok := st.(*Camp); ok {
			if rec.Target != nil {
				t := territory.BlockPosFromArray(*rec.Target)
				c.target = &t
			}
			c.abandonTimer = rec.AbandonTimer
		}
	}
	g.byPos = next.byPos
	return nil
}
