package territory

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ConqueredEntry protects a region for one faction until Remaining runs out.
type ConqueredEntry struct {
	Faction   uuid.UUID
	Remaining time.Duration
}

type ConqueredRecord struct {
	Region RegionPos
	ConqueredEntry
}

// ConqueredRegistry tracks post-siege immunity windows.
type ConqueredRegistry struct {
	entries map[RegionPos]ConqueredEntry
}

func NewConqueredRegistry() *ConqueredRegistry {
	return &ConqueredRegistry{entries: map[RegionPos]ConqueredEntry{}}
}

// Protect records a window. Non-positive durations are ignored.
func (c *ConqueredRegistry) Protect(r RegionPos, faction uuid.UUID, d time.Duration) {
	if d <= 0 {
		return
	}
	c.entries[r] = ConqueredEntry{Faction: faction, Remaining: d}
}

func (c *ConqueredRegistry) Get(r RegionPos) (ConqueredEntry, bool) {
	e, ok := c.entries[r]
	return e, ok
}

func (c *ConqueredRegistry) IsProtected(r RegionPos) bool {
	_, ok := c.entries[r]
	return ok
}

// BlocksClaim reports whether the window on r keeps faction from claiming it.
func (c *ConqueredRegistry) BlocksClaim(r RegionPos, faction uuid.UUID) bool {
	e, ok := c.entries[r]
	return ok && e.Faction != faction
}

// Decay subtracts elapsed from every window and drops the expired ones.
func (c *ConqueredRegistry) Decay(elapsed time.Duration) []RegionPos {
	if elapsed <= 0 {
		return nil
	}
	var expired []RegionPos
	for r, e := range c.entries {
		if e.Remaining <= elapsed {
			delete(c.entries, r)
			expired = append(expired, r)
			continue
		}
		e.Remaining -= elapsed
		c.entries[r] = e
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Less(expired[j]) })
	return expired
}

func (c *ConqueredRegistry) Len() int { return len(c.entries) }

func (c *ConqueredRegistry) All() []ConqueredRecord {
	out := make([]ConqueredRecord, 0, len(c.entries))
	for r, e := range c.entries {
		out = append(out, ConqueredRecord{Region: r, ConqueredEntry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region.Less(out[j].Region) })
	return out
}

func (c *ConqueredRegistry) clear() { c.entries = map[RegionPos]ConqueredEntry{} }
