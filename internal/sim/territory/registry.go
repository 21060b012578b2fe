package territory

import (
	"sort"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

var factionNamespace = uuid.MustParse("6c1f3b7a-5d0e-4e43-9a8b-2b7d8a4f9c10")

// FactionID derives the stable identity of a faction from its name.
func FactionID(name string) uuid.UUID {
	return uuid.NewSHA1(factionNamespace, []byte(name))
}

const (
	SafeZoneName  = "SafeZone"
	WarZoneName   = "WarZone"
	SafeZoneColor = 0x00ff00
	WarZoneColor  = 0xff0000
)

// Neutral zone IDs derive from lowercase keys so no player faction can take them.
var (
	SafeZoneID = FactionID("safezone")
	WarZoneID  = FactionID("warzone")
)

func IsNeutralZone(id uuid.UUID) bool { return id == SafeZoneID || id == WarZoneID }

// Both neutral zones keep their citadel at the overworld origin.
func newNeutralZone(id uuid.UUID, name string, color int) *Faction {
	return newFaction(id, name, color, BlockPos{})
}

// ValidateName checks a requested faction name.
func ValidateName(name string, maxLen int) error {
	if name == "" {
		return reject(protocol.ErrBadRequest, "Cannot create a faction with no name")
	}
	if len(name) > maxLen {
		return reject(protocol.ErrBadRequest, "Name is too long, must be at most %d characters", maxLen)
	}
	for _, c := range name {
		ok := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			return reject(protocol.ErrBadRequest, "Invalid character '%c' in faction name", c)
		}
	}
	return nil
}

// Registry holds every faction by ID, including the two neutral zones.
type Registry struct {
	factions map[uuid.UUID]*Faction
}

func NewRegistry() *Registry {
	r := &Registry{factions: map[uuid.UUID]*Faction{}}
	r.resetNeutralZones()
	return r
}

func (r *Registry) resetNeutralZones() {
	r.factions[SafeZoneID] = newNeutralZone(SafeZoneID, SafeZoneName, SafeZoneColor)
	r.factions[WarZoneID] = newNeutralZone(WarZoneID, WarZoneName, WarZoneColor)
}

func (r *Registry) Get(id uuid.UUID) *Faction {
	if id == uuid.Nil {
		return nil
	}
	return r.factions[id]
}

func (r *Registry) ByName(name string) *Faction { return r.factions[FactionID(name)] }

func (r *Registry) OfPlayer(p uuid.UUID) *Faction {
	for _, f := range r.factions {
		if f.IsMember(p) {
			return f
		}
	}
	return nil
}

// WithInviteTo returns the faction holding an open invite for p. When several
// do, the lowest ID wins so the answer is stable.
func (r *Registry) WithInviteTo(p uuid.UUID) *Faction {
	var best *Faction
	for _, f := range r.factions {
		if f.IsInviting(p) && (best == nil || lessUUID(f.ID, best.ID)) {
			best = f
		}
	}
	return best
}

func (r *Registry) add(f *Faction) { r.factions[f.ID] = f }

func (r *Registry) remove(id uuid.UUID) { delete(r.factions, id) }

func (r *Registry) Len() int { return len(r.factions) }

// All returns every faction sorted by name.
func (r *Registry) All() []*Faction {
	out := make([]*Faction, 0, len(r.factions))
	for _, f := range r.factions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return lessUUID(out[i].ID, out[j].ID)
	})
	return out
}

func (r *Registry) Names() []string {
	all := r.All()
	out := make([]string, 0, len(all))
	for _, f := range all {
		out = append(out, f.Name)
	}
	return out
}

func (r *Registry) clear() {
	r.factions = map[uuid.UUID]*Faction{}
	r.resetNeutralZones()
}
