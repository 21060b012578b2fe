package territory

import (
	"time"

	"github.com/google/uuid"
)

func (s *Service) increaseLegacy() {
	for _, f := range s.factions.All() {
		if f.IsNeutral() {
			continue
		}
		f.Legacy += s.cfg.LegacyPerDay
		s.registerRanking(f)
	}
}

// AdvanceYieldDay runs the yield timer. Legacy accrues here instead of on
// siege days when LegacyUsesYieldTimer is set.
func (s *Service) AdvanceYieldDay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.LegacyUsesYieldTimer {
		s.increaseLegacy()
	}
}

// EndDay closes the current day: login flags reset and day-based cooldowns
// tick down.
func (s *Service) EndDay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.factions.All() {
		f.LoggedInToday = false
		if f.CitadelMoveCooldown > 0 {
			f.CitadelMoveCooldown--
		}
		for _, m := range f.Members {
			if m.FlagCooldown > 0 {
				m.FlagCooldown--
			}
		}
	}
}

// DecayImmunity shortens every conquered window by elapsed.
func (s *Service) DecayImmunity(elapsed time.Duration) []RegionPos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conquered.Decay(elapsed)
}

func (s *Service) ClearNotoriety() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.factions.All() {
		f.Notoriety = 0
		s.registerRanking(f)
	}
}

func (s *Service) ClearLegacy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.factions.All() {
		f.Legacy = 0
		s.registerRanking(f)
	}
}

func (s *Service) Day() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// Faction returns a copy of the faction's summary and roster.
func (s *Service) Faction(id uuid.UUID) (FactionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.Get(id)
	if f == nil {
		return FactionView{}, false
	}
	return viewOf(f), true
}

func (s *Service) FactionOf(player uuid.UUID) (FactionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(player)
	if f == nil {
		return FactionView{}, false
	}
	return viewOf(f), true
}

func (s *Service) FactionByName(name string) (FactionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.ByName(name)
	if f == nil {
		return FactionView{}, false
	}
	return viewOf(f), true
}

// IsPlayerDefending reports whether the player's faction is under siege.
func (s *Service) IsPlayerDefending(player uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(player)
	return f != nil && s.sieges.AgainstFaction(f.ID)
}

// Sieges returns copies of every active siege ordered by region.
func (s *Service) Sieges() []Siege {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sieges.All()
	out := make([]Siege, 0, len(all))
	for _, sg := range all {
		c := *sg
		c.Camps = append([]BlockPos(nil), sg.Camps...)
		out = append(out, c)
	}
	return out
}

func (s *Service) SiegeAt(r RegionPos) (Siege, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg := s.sieges.Get(r)
	if sg == nil {
		return Siege{}, false
	}
	c := *sg
	c.Camps = append([]BlockPos(nil), sg.Camps...)
	return c, true
}

func (s *Service) SiegeInProgress(r RegionPos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sieges.InProgress(r)
}

func (s *Service) Conquered() []ConqueredRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conquered.All()
}

// Leaderboard returns every non-neutral faction, best score first.
func (s *Service) Leaderboard() []FactionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []FactionSummary
	for _, f := range s.factions.All() {
		if !f.IsNeutral() {
			out = append(out, f.summary())
		}
	}
	sortSummaries(out)
	return out
}

// FactionView is a detached copy of a faction's state.
type FactionView struct {
	FactionSummary
	Citadel             BlockPos
	Roles               map[uuid.UUID]Role
	Claims              []BlockPos
	CitadelMoveCooldown int
	LoggedInToday       bool
}

func viewOf(f *Faction) FactionView {
	v := FactionView{
		FactionSummary:      f.summary(),
		Citadel:             f.Citadel,
		Roles:               make(map[uuid.UUID]Role, len(f.Members)),
		CitadelMoveCooldown: f.CitadelMoveCooldown,
		LoggedInToday:       f.LoggedInToday,
	}
	for id, m := range f.Members {
		v.Roles[id] = m.Role
	}
	for pos := range f.Claims {
		v.Claims = append(v.Claims, pos)
	}
	sortBlockPos(v.Claims)
	return v
}
