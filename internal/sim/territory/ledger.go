package territory

import (
	"sort"

	"github.com/google/uuid"
)

// Ledger indexes active sieges by defended region.
type Ledger struct {
	sieges map[RegionPos]*Siege
}

func NewLedger() *Ledger { return &Ledger{sieges: map[RegionPos]*Siege{}} }

func (l *Ledger) Get(r RegionPos) *Siege { return l.sieges[r] }

func (l *Ledger) Len() int { return len(l.sieges) }

// All returns the sieges ordered by defended region.
func (l *Ledger) All() []*Siege {
	out := make([]*Siege, 0, len(l.sieges))
	for _, s := range l.sieges {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region().Less(out[j].Region()) })
	return out
}

// InProgress reports whether r is defended by, or hosts a camp of, any siege.
func (l *Ledger) InProgress(r RegionPos) bool {
	if _, ok := l.sieges[r]; ok {
		return true
	}
	for _, s := range l.sieges {
		if s.Involves(r) {
			return true
		}
	}
	return false
}

// SiegeWithCamp finds the siege a camp block belongs to.
func (l *Ledger) SiegeWithCamp(pos BlockPos) *Siege {
	for _, s := range l.sieges {
		if s.hasCamp(pos) {
			return s
		}
	}
	return nil
}

// AgainstFaction reports whether any siege targets the faction.
func (l *Ledger) AgainstFaction(id uuid.UUID) bool {
	for _, s := range l.sieges {
		if s.Defender == id {
			return true
		}
	}
	return false
}

// Involving lists the regions of sieges where the faction attacks or defends.
func (l *Ledger) Involving(id uuid.UUID) []RegionPos {
	var out []RegionPos
	for r, s := range l.sieges {
		if s.Attacker == id || s.Defender == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (l *Ledger) add(s *Siege) bool {
	r := s.Region()
	if l.InProgress(r) {
		return false
	}
	for _, c := range s.Camps {
		if l.InProgress(c.Region()) {
			return false
		}
	}
	l.sieges[r] = s
	return true
}

func (l *Ledger) remove(r RegionPos) { delete(l.sieges, r) }

func (l *Ledger) clear() { l.sieges = map[RegionPos]*Siege{} }
