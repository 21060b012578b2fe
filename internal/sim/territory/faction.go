package territory

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleMember  Role = "MEMBER"
	RoleOfficer Role = "OFFICER"
	RoleLeader  Role = "LEADER"
)

func (r Role) rank() int {
	switch r {
	case RoleLeader:
		return 3
	case RoleOfficer:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is ranked at or above min.
func (r Role) AtLeast(min Role) bool { return r.rank() >= min.rank() }

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleMember, RoleOfficer, RoleLeader:
		return Role(s), true
	}
	return "", false
}

type Member struct {
	Role         Role
	Flag         *BlockPos
	FlagCooldown int
}

type Faction struct {
	ID      uuid.UUID
	Name    string
	Color   int
	Citadel BlockPos

	Members map[uuid.UUID]*Member
	// Claims maps each claimed block to its slot index inside its region.
	Claims  map[BlockPos]int
	Invites map[uuid.UUID]struct{}

	Notoriety int
	Legacy    int
	Wealth    int

	KillCounter   map[uuid.UUID]int
	LoggedInToday bool
	LastSiegeAt   time.Time

	CitadelMoveCooldown int
}

func newFaction(id uuid.UUID, name string, color int, citadel BlockPos) *Faction {
	return &Faction{
		ID:          id,
		Name:        name,
		Color:       color,
		Citadel:     citadel,
		Members:     map[uuid.UUID]*Member{},
		Claims:      map[BlockPos]int{},
		Invites:     map[uuid.UUID]struct{}{},
		KillCounter: map[uuid.UUID]int{},
	}
}

func (f *Faction) IsNeutral() bool { return IsNeutralZone(f.ID) }

func (f *Faction) IsMember(p uuid.UUID) bool {
	_, ok := f.Members[p]
	return ok
}

func (f *Faction) RoleOf(p uuid.UUID) Role {
	if m := f.Members[p]; m != nil {
		return m.Role
	}
	return ""
}

func (f *Faction) HasRole(p uuid.UUID, min Role) bool {
	m := f.Members[p]
	return m != nil && m.Role.AtLeast(min)
}

// Outranks reports whether actor holds a strictly higher role than target.
func (f *Faction) Outranks(actor, target uuid.UUID) bool {
	a := f.Members[actor]
	t := f.Members[target]
	if a == nil || t == nil {
		return false
	}
	return a.Role.rank() > t.Role.rank()
}

func (f *Faction) Leader() uuid.UUID {
	for id, m := range f.Members {
		if m.Role == RoleLeader {
			return id
		}
	}
	return uuid.Nil
}

func (f *Faction) MemberIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(f.Members))
	for id := range f.Members {
		out = append(out, id)
	}
	sortUUIDs(out)
	return out
}

func (f *Faction) addPlayer(p uuid.UUID) {
	delete(f.Invites, p)
	if f.Members[p] == nil {
		f.Members[p] = &Member{Role: RoleMember}
	}
}

func (f *Faction) removePlayer(p uuid.UUID) {
	delete(f.Members, p)
}

// setLeader makes p the leader. The previous leader stays on as an officer.
func (f *Faction) setLeader(p uuid.UUID) bool {
	m := f.Members[p]
	if m == nil {
		return false
	}
	for id, other := range f.Members {
		if other.Role == RoleLeader && id != p {
			other.Role = RoleOfficer
		}
	}
	m.Role = RoleLeader
	return true
}

func (f *Faction) invite(p uuid.UUID) { f.Invites[p] = struct{}{} }

func (f *Faction) IsInviting(p uuid.UUID) bool {
	_, ok := f.Invites[p]
	return ok
}

// ClaimIn returns the first claim block the faction holds inside region r.
func (f *Faction) ClaimIn(r RegionPos) (BlockPos, bool) {
	var (
		best  BlockPos
		found bool
	)
	for pos, slot := range f.Claims {
		if pos.Region() != r {
			continue
		}
		if !found || slot < f.Claims[best] || (slot == f.Claims[best] && pos.Less(best)) {
			best = pos
			found = true
		}
	}
	return best, found
}

func (f *Faction) addClaim(pos BlockPos) {
	if _, ok := f.Claims[pos]; ok {
		return
	}
	slot := 0
	r := pos.Region()
	for p := range f.Claims {
		if p.Region() == r {
			slot++
		}
	}
	f.Claims[pos] = slot
}

func (f *Faction) removeClaim(pos BlockPos) {
	delete(f.Claims, pos)
	for _, m := range f.Members {
		if m.Flag != nil && *m.Flag == pos {
			m.Flag = nil
		}
	}
}

// ClaimRegions returns the distinct regions the faction holds, sorted.
func (f *Faction) ClaimRegions() []RegionPos {
	seen := map[RegionPos]struct{}{}
	out := make([]RegionPos, 0, len(f.Claims))
	for pos := range f.Claims {
		r := pos.Region()
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FlagsAt counts members whose flag is planted at pos.
func (f *Faction) FlagsAt(pos BlockPos) int {
	n := 0
	for _, m := range f.Members {
		if m.Flag != nil && *m.Flag == pos {
			n++
		}
	}
	return n
}

func (f *Faction) summary() FactionSummary {
	return FactionSummary{
		ID:        f.ID,
		Name:      f.Name,
		Color:     f.Color,
		Notoriety: f.Notoriety,
		Legacy:    f.Legacy,
		Wealth:    f.Wealth,
		Members:   len(f.Members),
		Claims:    len(f.Claims),
	}
}

// FactionSummary is the leaderboard view of a faction.
type FactionSummary struct {
	ID        uuid.UUID
	Name      string
	Color     int
	Notoriety int
	Legacy    int
	Wealth    int
	Members   int
	Claims    int
}

func (s FactionSummary) Score() int { return s.Notoriety + s.Legacy + s.Wealth }

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return lessUUID(ids[i], ids[j]) })
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// sortSummaries orders by total score, then name.
func sortSummaries(list []FactionSummary) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		return a.Name < b.Name
	})
}

func sortBlockPos(ps []BlockPos) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}
