package territory

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"siegecraft.ai/internal/persistence/snapshot"
)

// Export captures the full territory state in a deterministic order.
func (s *Service) Export() snapshot.TerritoryV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export()
}

func (s *Service) export() snapshot.TerritoryV1 {
	out := snapshot.TerritoryV1{Day: s.day}

	all := s.factions.All()
	sort.Slice(all, func(i, j int) bool { return lessUUID(all[i].ID, all[j].ID) })
	for _, f := range all {
		out.Factions = append(out.Factions, exportFaction(f))
	}
	for _, sg := range s.sieges.All() {
		r := sg.Region()
		rec := snapshot.SiegeV1{
			Dim:             r.Dim,
			X:               r.X,
			Z:               r.Z,
			Attacker:        sg.Attacker,
			Defender:        sg.Defender,
			DefendLocation:  sg.Defending.Array(),
			Progress:        sg.Progress,
			BaseDifficulty:  sg.BaseDifficulty,
			ExtraDifficulty: sg.ExtraDifficulty,
		}
		for _, c := range sg.Camps {
			rec.AttackLocations = append(rec.AttackLocations, c.Array())
		}
		out.Sieges = append(out.Sieges, rec)
	}
	for _, c := range s.conquered.All() {
		out.ConqueredChunks = append(out.ConqueredChunks, snapshot.ConqueredChunkV1{
			Chunk:       c.Region.Array(),
			Faction:     UUIDToBEInts(c.Faction),
			RemainingMs: c.Remaining.Milliseconds(),
		})
	}
	return out
}

func exportFaction(f *Faction) snapshot.FactionV1 {
	rec := snapshot.FactionV1{
		ID:                  f.ID,
		Name:                f.Name,
		Color:               f.Color,
		Citadel:             f.Citadel.Array(),
		Notoriety:           f.Notoriety,
		Legacy:              f.Legacy,
		Wealth:              f.Wealth,
		LoggedInToday:       f.LoggedInToday,
		CitadelMoveCooldown: f.CitadelMoveCooldown,
	}
	if !f.LastSiegeAt.IsZero() {
		rec.LastSiegeUnixMs = f.LastSiegeAt.UnixMilli()
	}
	for _, id := range f.MemberIDs() {
		m := f.Members[id]
		mv := snapshot.MemberV1{Player: id, Role: string(m.Role), FlagCooldown: m.FlagCooldown}
		if m.Flag != nil {
			a := m.Flag.Array()
			mv.Flag = &a
		}
		rec.Members = append(rec.Members, mv)
	}
	claims := make([]BlockPos, 0, len(f.Claims))
	for pos := range f.Claims {
		claims = append(claims, pos)
	}
	sortBlockPos(claims)
	for _, pos := range claims {
		rec.Claims = append(rec.Claims, snapshot.ClaimV1{Pos: pos.Array(), Slot: f.Claims[pos]})
	}
	for id := range f.Invites {
		rec.Invites = append(rec.Invites, id)
	}
	sortUUIDs(rec.Invites)
	victims := make([]uuid.UUID, 0, len(f.KillCounter))
	for id := range f.KillCounter {
		victims = append(victims, id)
	}
	sortUUIDs(victims)
	for _, id := range victims {
		rec.Kills = append(rec.Kills, snapshot.KillCountV1{Victim: id, Count: f.KillCounter[id]})
	}
	return rec
}

// Import replaces the territory state. On error nothing changes.
func (s *Service) Import(t snapshot.TerritoryV1) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	factions := NewRegistry()
	claims := NewOwnershipTable()
	sieges := NewLedger()
	conquered := NewConqueredRegistry()

	for _, rec := range t.Factions {
		var f *Faction
		if IsNeutralZone(rec.ID) {
			// Neutral zones keep their fixed identity; only claims are restored.
			f = factions.Get(rec.ID)
		} else {
			if rec.ID == uuid.Nil {
				return fmt.Errorf("faction %q has no id", rec.Name)
			}
			if factions.Get(rec.ID) != nil {
				return fmt.Errorf("duplicate faction %s", rec.ID)
			}
			var err error
			f, err = importFaction(rec)
			if err != nil {
				return err
			}
			factions.add(f)
		}
		for _, c := range rec.Claims {
			pos := BlockPosFromArray(c.Pos)
			r := pos.Region()
			if err := claims.Claim(r, f.ID); err != nil {
				return fmt.Errorf("region %s claimed by both %s and %s", r, claims.OwnerOf(r), f.ID)
			}
			f.Claims[pos] = c.Slot
		}
	}

	for _, rec := range t.Sieges {
		sg := &Siege{
			Attacker:        rec.Attacker,
			Defender:        rec.Defender,
			Defending:       BlockPosFromArray(rec.DefendLocation),
			Progress:        rec.Progress,
			BaseDifficulty:  rec.BaseDifficulty,
			ExtraDifficulty: rec.ExtraDifficulty,
		}
		for _, c := range rec.AttackLocations {
			sg.Camps = append(sg.Camps, BlockPosFromArray(c))
		}
		key := RegionPos{Dim: rec.Dim, X: rec.X, Z: rec.Z}
		if sg.Region() != key {
			return fmt.Errorf("siege keyed at %s defends %s", key, sg.Defending)
		}
		if !sieges.add(sg) {
			return fmt.Errorf("overlapping siege at %s", key)
		}
	}

	for _, rec := range t.ConqueredChunks {
		conquered.Protect(RegionPosFromArray(rec.Chunk), BEIntsToUUID(rec.Faction), time.Duration(rec.RemainingMs)*time.Millisecond)
	}

	s.factions = factions
	s.claims = claims
	s.sieges = sieges
	s.conquered = conquered
	s.day = t.Day
	for _, f := range s.factions.All() {
		s.registerRanking(f)
	}
	s.log.Printf("territory imported: factions=%d regions=%d sieges=%d conquered=%d",
		s.factions.Len(), s.claims.Len(), s.sieges.Len(), s.conquered.Len())
	return nil
}

func importFaction(rec snapshot.FactionV1) (*Faction, error) {
	f := newFaction(rec.ID, rec.Name, rec.Color, BlockPosFromArray(rec.Citadel))
	f.Notoriety = rec.Notoriety
	f.Legacy = rec.Legacy
	f.Wealth = rec.Wealth
	f.LoggedInToday = rec.LoggedInToday
	f.CitadelMoveCooldown = rec.CitadelMoveCooldown
	if rec.LastSiegeUnixMs != 0 {
		f.LastSiegeAt = time.UnixMilli(rec.LastSiegeUnixMs)
	}
	leaders := 0
	for _, m := range rec.Members {
		role, ok := ParseRole(m.Role)
		if !ok {
			return nil, fmt.Errorf("faction %s: member %s has unknown role %q", rec.Name, m.Player, m.Role)
		}
		if role == RoleLeader {
			leaders++
		}
		mem := &Member{Role: role, FlagCooldown: m.FlagCooldown}
		if m.Flag != nil {
			p := BlockPosFromArray(*m.Flag)
			mem.Flag = &p
		}
		f.Members[m.Player] = mem
	}
	if len(rec.Members) > 0 && leaders != 1 {
		return nil, fmt.Errorf("faction %s has %d leaders", rec.Name, leaders)
	}
	for _, id := range rec.Invites {
		f.Invites[id] = struct{}{}
	}
	for _, k := range rec.Kills {
		f.KillCounter[k.Victim] = k.Count
	}
	return f, nil
}

// Digest is a hex BLAKE3 hash of the exported state. Equal states give equal
// digests.
func (s *Service) Digest() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := snapshot.Marshal(s.export())
	if err != nil {
		return "", fmt.Errorf("encode territory: %w", err)
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
