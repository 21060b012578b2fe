package territory

import (
	"fmt"

	"github.com/google/uuid"
)

type SiegeState int

const (
	SiegeActive SiegeState = iota
	SiegeSucceeded
	SiegeFailed
	SiegeCancelled
)

func (s SiegeState) String() string {
	switch s {
	case SiegeActive:
		return "ACTIVE"
	case SiegeSucceeded:
		return "SUCCEEDED"
	case SiegeFailed:
		return "FAILED"
	case SiegeCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("SiegeState(%d)", int(s))
}

const (
	// DefeatThreshold is the defence progress at which the defenders win.
	DefeatThreshold = 5

	defaultBaseDifficulty = 5
)

// Siege is one attack on a single defended claim. Progress moves up toward
// SuccessThreshold for the attackers and down toward -DefeatThreshold for the
// defenders.
type Siege struct {
	Attacker  uuid.UUID
	Defender  uuid.UUID
	Defending BlockPos
	Camps     []BlockPos

	Progress        int
	BaseDifficulty  int
	ExtraDifficulty int
	State           SiegeState
}

// siegeEnv is the world view a siege reads while it evaluates itself.
type siegeEnv interface {
	faction(id uuid.UUID) *Faction
	ownerOf(r RegionPos) uuid.UUID
	structureAt(pos BlockPos) (Structure, bool)
	config() *Config
	sendToFaction(f *Faction, msg string)
	broadcastSiegeInfo(s *Siege)
	logf(format string, args ...any)
}

func newSiege(env siegeEnv, attacker, defender uuid.UUID, defending BlockPos) *Siege {
	base := defaultBaseDifficulty
	if st, ok := env.structureAt(defending); ok {
		base = st.DefenceStrength()
	}
	return &Siege{
		Attacker:       attacker,
		Defender:       defender,
		Defending:      defending,
		BaseDifficulty: base,
	}
}

func (s *Siege) Region() RegionPos { return s.Defending.Region() }

func (s *Siege) SuccessThreshold() int { return s.BaseDifficulty + s.ExtraDifficulty }

func (s *Siege) DefenceProgress() int { return -s.Progress }

func (s *Siege) WasSuccessful() bool { return s.Progress >= s.SuccessThreshold() }

func (s *Siege) Active() bool { return s.State == SiegeActive }

// Involves reports whether r is the defended region or hosts one of the camps.
func (s *Siege) Involves(r RegionPos) bool {
	if s.Region() == r {
		return true
	}
	for _, c := range s.Camps {
		if c.Region() == r {
			return true
		}
	}
	return false
}

func (s *Siege) hasCamp(pos BlockPos) bool {
	for _, c := range s.Camps {
		if c == pos {
			return true
		}
	}
	return false
}

func (s *Siege) addCamp(pos BlockPos, max int) bool {
	if s.hasCamp(pos) || len(s.Camps) >= max {
		return false
	}
	s.Camps = append(s.Camps, pos)
	return true
}

func (s *Siege) factions(env siegeEnv) (*Faction, *Faction, bool) {
	att := env.faction(s.Attacker)
	def := env.faction(s.Defender)
	if att == nil || def == nil {
		env.logf("siege at %s references a missing faction", s.Region())
		return nil, nil, false
	}
	return att, def, true
}

func (s *Siege) recalculateExtra(env siegeEnv) {
	att, def, ok := s.factions(env)
	if !ok {
		return
	}
	cfg := env.config()
	extra := def.FlagsAt(s.Defending) * cfg.DifficultyPerDefenderFlag

	center := s.Region()
	for _, d := range Horizontals {
		n := center.Offset(d, 1)
		switch env.ownerOf(n) {
		case s.Attacker:
			if pos, ok := att.ClaimIn(n); ok {
				if st, ok := env.structureAt(pos); ok {
					extra += st.AttackStrength()
				}
			}
		case s.Defender:
			if pos, ok := def.ClaimIn(n); ok {
				if st, ok := env.structureAt(pos); ok {
					extra -= st.SupportStrength()
				}
			}
		}
	}
	s.ExtraDifficulty = extra
}

func (s *Siege) start(env siegeEnv) {
	s.recalculateExtra(env)
	env.broadcastSiegeInfo(s)
}

func (s *Siege) advanceDay(env siegeEnv) {
	att, def, ok := s.factions(env)
	if !ok {
		return
	}
	s.recalculateExtra(env)

	cfg := env.config()
	swing := cfg.SwingPerDayBase
	if !def.LoggedInToday {
		swing += cfg.SwingNoDefenderLogins
	}
	if !att.LoggedInToday {
		swing -= cfg.SwingNoAttackerLogins
	}
	swing -= def.FlagsAt(s.Defending) * cfg.SwingPerDefenderFlag
	for _, camp := range s.Camps {
		swing += att.FlagsAt(camp) * cfg.SwingPerAttackerFlag
	}
	s.Progress += swing

	status := fmt.Sprintf("%d/%d", s.Progress, s.SuccessThreshold())
	switch {
	case swing > 0:
		env.sendToFaction(att, fmt.Sprintf("Your siege on %s at %s shifted %d points in your favour. The progress is now at %s", def.Name, s.Defending, swing, status))
		env.sendToFaction(def, fmt.Sprintf("The siege on %s by %s shifted %d points in their favour. The progress is now at %s", s.Defending, att.Name, swing, status))
	case swing < 0:
		env.sendToFaction(def, fmt.Sprintf("The siege on %s by %s shifted %d points in your favour. The progress is now at %s", s.Defending, att.Name, -swing, status))
		env.sendToFaction(att, fmt.Sprintf("Your siege on %s at %s shifted %d points in their favour. The progress is now at %s", def.Name, s.Defending, -swing, status))
	default:
		env.sendToFaction(def, fmt.Sprintf("The siege on %s by %s did not shift today. The progress is at %s", s.Defending, att.Name, status))
		env.sendToFaction(att, fmt.Sprintf("Your siege on %s at %s did not shift today. The progress is at %s", def.Name, s.Defending, status))
	}
	env.broadcastSiegeInfo(s)
}

// onPvpKill applies the kill swing when the killer stood near one of the camps.
// It returns the change in progress.
func (s *Siege) onPvpKill(env siegeEnv, killerFaction, victimFaction uuid.UUID, killerPos BlockPos, victimName string) int {
	if !s.Active() {
		return 0
	}
	att, def, ok := s.factions(env)
	if !ok {
		return 0
	}
	cfg := env.config()
	near := false
	kr := killerPos.Region()
	for _, c := range s.Camps {
		if c.Region().Within(kr, cfg.KillRadius) {
			near = true
			break
		}
	}
	if !near {
		return 0
	}

	var delta int
	switch {
	case killerFaction == s.Attacker && victimFaction == s.Defender:
		delta = cfg.SwingPerDefenderDeath
	case killerFaction == s.Defender && victimFaction == s.Attacker:
		delta = -cfg.SwingPerAttackerDeath
	default:
		return 0
	}
	s.Progress += delta
	env.broadcastSiegeInfo(s)

	msg := fmt.Sprintf("%s died near the siege on %s. Attack progress %d/%d, defence progress %d/%d",
		victimName, s.Defending, s.Progress, s.SuccessThreshold(), s.DefenceProgress(), DefeatThreshold)
	env.sendToFaction(att, msg)
	env.sendToFaction(def, msg)
	return delta
}

// hasAbandonedCamps is true while any camp reports its attackers gone.
func (s *Siege) hasAbandonedCamps(env siegeEnv) bool {
	for _, pos := range s.Camps {
		st, ok := env.structureAt(pos)
		if !ok {
			continue
		}
		if camp, ok := st.(SiegeCamp); ok && camp.AbandonTimer() > 0 {
			return true
		}
	}
	return false
}

// isCompleted recomputes the extra difficulty first; neighbouring claims can
// change between days.
func (s *Siege) isCompleted(env siegeEnv) bool {
	if !s.Active() {
		return false
	}
	s.recalculateExtra(env)
	return (!s.hasAbandonedCamps(env) && s.WasSuccessful()) || s.DefenceProgress() >= DefeatThreshold
}

// onCompleted lets every camp clean up after a natural conclusion.
func (s *Siege) onCompleted(env siegeEnv, success bool) {
	if success {
		s.State = SiegeSucceeded
	} else {
		s.State = SiegeFailed
	}
	for _, pos := range s.Camps {
		st, ok := env.structureAt(pos)
		if !ok {
			continue
		}
		camp, ok := st.(SiegeCamp)
		if !ok {
			continue
		}
		if success {
			camp.OnSiegeSucceeded()
		} else {
			camp.OnSiegeFailed()
		}
	}
}

func (s *Siege) cancel(env siegeEnv) {
	s.State = SiegeCancelled
	for _, pos := range s.Camps {
		if st, ok := env.structureAt(pos); ok {
			if camp, ok := st.(SiegeCamp); ok {
				camp.SetSiegeTarget(nil)
			}
		}
	}
}

func (s *Siege) info(env siegeEnv) (SiegeInfo, bool) {
	att := env.faction(s.Attacker)
	def := env.faction(s.Defender)
	if att == nil || def == nil || len(s.Camps) == 0 {
		return SiegeInfo{}, false
	}
	return SiegeInfo{
		Attacking:       s.Camps[0],
		AttackingName:   att.Name,
		AttackingColor:  att.Color,
		Defending:       s.Defending,
		DefendingName:   def.Name,
		DefendingColor:  def.Color,
		Progress:        s.Progress,
		CompletionPoint: s.SuccessThreshold(),
	}, true
}
