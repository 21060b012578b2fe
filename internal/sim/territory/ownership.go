package territory

import (
	"sort"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

// OwnershipTable maps every claimed region to exactly one faction.
type OwnershipTable struct {
	owners map[RegionPos]uuid.UUID
}

func NewOwnershipTable() *OwnershipTable {
	return &OwnershipTable{owners: map[RegionPos]uuid.UUID{}}
}

// Claim records faction as the owner of r. Claiming a region the faction
// already owns is a no-op; a region owned by anyone else is refused.
func (t *OwnershipTable) Claim(r RegionPos, faction uuid.UUID) error {
	if owner, ok := t.owners[r]; ok && owner != faction {
		return reject(protocol.ErrConflict, "The region %s is already claimed", r)
	}
	t.owners[r] = faction
	return nil
}

func (t *OwnershipTable) Release(r RegionPos) { delete(t.owners, r) }

// OwnerOf returns uuid.Nil for unclaimed regions.
func (t *OwnershipTable) OwnerOf(r RegionPos) uuid.UUID { return t.owners[r] }

func (t *OwnershipTable) IsClaimed(r RegionPos) bool {
	_, ok := t.owners[r]
	return ok
}

func (t *OwnershipTable) IsClaimedByOther(r RegionPos, faction uuid.UUID) bool {
	owner, ok := t.owners[r]
	return ok && owner != faction
}

func (t *OwnershipTable) Len() int { return len(t.owners) }

func (t *OwnershipTable) Regions() []RegionPos {
	out := make([]RegionPos, 0, len(t.owners))
	for r := range t.owners {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (t *OwnershipTable) clear() { t.owners = map[RegionPos]uuid.UUID{} }
