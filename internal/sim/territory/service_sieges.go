package territory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

// SiegeOutcome records how a siege ended.
type SiegeOutcome struct {
	Region       RegionPos
	Defending    BlockPos
	Camps        []BlockPos
	Attacker     uuid.UUID
	Defender     uuid.UUID
	AttackerName string
	DefenderName string
	State        SiegeState
	Progress     int
	Threshold    int
	Day          int
	// CitadelLost is set when a successful siege took the defender's citadel.
	CitadelLost bool
}

func (o SiegeOutcome) Success() bool { return o.State == SiegeSucceeded }

// StartSiege launches a siege from the camp at campPos against the region
// next to it in direction dir.
func (s *Service) StartSiege(officer uuid.UUID, campPos BlockPos, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attacking := s.factions.OfPlayer(officer)
	if attacking == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if !attacking.LastSiegeAt.IsZero() && s.cfg.SiegeCooldown > 0 {
		if wait := s.cfg.SiegeCooldown - s.now().Sub(attacking.LastSiegeAt); wait > 0 {
			return reject(protocol.ErrCooldown, "Your faction is on cooldown on starting a new siege. Cooldown remaining: %s", wait.Round(time.Second))
		}
	}
	if !attacking.HasRole(officer, RoleOfficer) {
		return reject(protocol.ErrNoPermission, "You are not an officer of this faction")
	}
	camp, err := s.campOf(attacking, campPos)
	if err != nil {
		return err
	}

	defendingRegion := campPos.Region().Offset(dir, 1)
	defending := s.factions.Get(s.claims.OwnerOf(defendingRegion))
	if defending == nil || defending.ID == attacking.ID || defending.IsNeutral() {
		return reject(protocol.ErrInvalidTarget, "Could not find a target faction at that position")
	}
	reachable := false
	for _, adj := range s.adjacentClaims(attacking.ID, campPos) {
		if adj.Region == defendingRegion {
			reachable = true
			break
		}
	}
	if !reachable {
		return reject(protocol.ErrInvalidTarget, "The target claim is too far above or below the siege camp")
	}
	defendingPos, ok := defending.ClaimIn(defendingRegion)
	if !ok {
		s.log.Printf("ownership table lists %s for %s but it holds no claim there", defendingRegion, defending.Name)
		return reject(protocol.ErrInternal, "Could not find the claim in that region")
	}
	if s.sieges.InProgress(defendingRegion) || s.sieges.InProgress(campPos.Region()) {
		return reject(protocol.ErrConflict, "That position is already being sieged")
	}
	if e, ok := s.conquered.Get(defendingRegion); ok {
		return reject(protocol.ErrBlocked, "That region was recently conquered by %s, protection ends in %s", s.factionName(e.Faction), e.Remaining)
	}

	sg := newSiege(s, attacking.ID, defending.ID, defendingPos)
	sg.addCamp(campPos, s.cfg.MaxSiegeCamps)
	if !s.sieges.add(sg) {
		return reject(protocol.ErrConflict, "That position is already being sieged")
	}
	if err := s.placeFlag(attacking, officer, campPos); err != nil {
		s.tell(officer, "%s", AsRejection(err).Msg)
	}
	target := defendingPos
	camp.SetSiegeTarget(&target)
	sg.start(s)
	attacking.LastSiegeAt = s.now().Truncate(time.Millisecond)

	s.notifier.BroadcastAll(fmt.Sprintf("%s started a siege against %s", attacking.Name, defending.Name))
	s.log.Printf("siege started: attacker=%s defender=%s region=%s camp=%s threshold=%d",
		attacking.Name, defending.Name, defendingRegion, campPos, sg.SuccessThreshold())
	return nil
}

func (s *Service) campOf(f *Faction, pos BlockPos) (SiegeCamp, error) {
	if _, ok := f.Claims[pos]; !ok {
		return nil, reject(protocol.ErrInvalidTarget, "There is no siege camp of yours at %s", pos)
	}
	st, ok := s.structureAt(pos)
	if !ok {
		return nil, reject(protocol.ErrInvalidTarget, "There is no siege camp of yours at %s", pos)
	}
	camp, ok := st.(SiegeCamp)
	if !ok || camp.Faction() != f.ID {
		return nil, reject(protocol.ErrInvalidTarget, "There is no siege camp of yours at %s", pos)
	}
	return camp, nil
}

// JoinSiege adds another camp of the attacker next to an active siege.
func (s *Service) JoinSiege(officer uuid.UUID, campPos BlockPos, defended RegionPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg := s.sieges.Get(defended)
	if sg == nil {
		return reject(protocol.ErrInvalidTarget, "There is no siege at %s", defended)
	}
	attacking := s.factions.Get(sg.Attacker)
	if attacking == nil || !attacking.HasRole(officer, RoleOfficer) {
		return reject(protocol.ErrNoPermission, "You are not an officer of the attacking faction")
	}
	camp, err := s.campOf(attacking, campPos)
	if err != nil {
		return err
	}
	adjacent := false
	for _, d := range Horizontals {
		if campPos.Region().Offset(d, 1) == defended {
			adjacent = true
			break
		}
	}
	if !adjacent {
		return reject(protocol.ErrInvalidTarget, "The siege camp must be next to the sieged region")
	}
	if s.sieges.InProgress(campPos.Region()) {
		return reject(protocol.ErrConflict, "That siege camp is already part of a siege")
	}
	if !sg.addCamp(campPos, s.cfg.MaxSiegeCamps) {
		return reject(protocol.ErrConflict, "This siege already has %d camps", s.cfg.MaxSiegeCamps)
	}
	target := sg.Defending
	camp.SetSiegeTarget(&target)
	sg.recalculateExtra(s)
	s.broadcastSiegeInfo(sg)
	return nil
}

// EndSiege cancels the siege on r without applying any outcome.
func (s *Service) EndSiege(r RegionPos) (SiegeOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg := s.sieges.Get(r)
	if sg == nil {
		return SiegeOutcome{}, false
	}
	sg.cancel(s)
	s.sieges.remove(r)
	s.log.Printf("siege cancelled: region=%s", r)
	return s.outcome(sg), true
}

// AdvanceAllByOneDay applies a day of pressure to every siege, resolves the
// ones that finished and awards daily legacy.
func (s *Service) AdvanceAllByOneDay() []SiegeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sg := range s.sieges.All() {
		sg.advanceDay(s)
	}
	out := s.checkForCompleteSieges()
	if !s.cfg.LegacyUsesYieldTimer {
		s.increaseLegacy()
	}
	s.day++
	return out
}

// CheckForCompleteSieges resolves every siege whose completion condition holds.
func (s *Service) CheckForCompleteSieges() []SiegeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkForCompleteSieges()
}

func (s *Service) checkForCompleteSieges() []SiegeOutcome {
	var done []RegionPos
	for _, sg := range s.sieges.All() {
		if sg.isCompleted(s) {
			done = append(done, sg.Region())
		}
	}
	var out []SiegeOutcome
	for _, r := range done {
		if o, ok := s.resolve(r); ok {
			out = append(out, o)
		}
	}
	return out
}

// ResolveCompletedSiege applies the outcome of the siege on r. It is a no-op
// for regions with no siege.
func (s *Service) ResolveCompletedSiege(r RegionPos) (SiegeOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(r)
}

func (s *Service) resolve(r RegionPos) (SiegeOutcome, bool) {
	sg := s.sieges.Get(r)
	if sg == nil || !sg.Active() {
		return SiegeOutcome{}, false
	}
	attackers := s.factions.Get(sg.Attacker)
	defenders := s.factions.Get(sg.Defender)
	if attackers == nil || defenders == nil {
		s.log.Printf("completed siege at %s has invalid factions; nothing will happen", r)
		return SiegeOutcome{}, false
	}

	sg.recalculateExtra(s)
	success := sg.WasSuccessful()
	if success {
		s.protect(sg, attackers.ID, s.cfg.AttackerConqueredPeriod)

		lost := sg.Defending
		defenders.removeClaim(lost)
		if _, still := defenders.ClaimIn(r); !still {
			s.claims.Release(r)
		}
		s.sendToFaction(attackers, fmt.Sprintf("%s won the siege on %s", attackers.Name, lost))
		s.sendToFaction(defenders, fmt.Sprintf("%s lost the claim at %s", defenders.Name, lost))
		attackers.Notoriety += s.cfg.NotorietyPerSiegeAttackSuccess

		if s.cfg.SiegeCapture && !s.claims.IsClaimed(r) {
			if s.grid != nil {
				if _, err := s.grid.PlaceBasicClaim(lost, attackers.ID); err != nil {
					s.log.Printf("capture claim at %s: %v", lost, err)
				}
			}
			if err := s.claimFor(attackers, lost); err != nil {
				s.log.Printf("capture claim at %s: %v", lost, err)
				s.removeBlock(lost)
			}
		} else if s.grid != nil {
			s.grid.Remove(lost)
		}
	} else {
		s.protect(sg, defenders.ID, s.cfg.DefenderConqueredPeriod)
		s.sendToFaction(attackers, fmt.Sprintf("%s lost the siege on %s", attackers.Name, sg.Defending))
		s.sendToFaction(defenders, fmt.Sprintf("%s defended %s", defenders.Name, sg.Defending))
		defenders.Notoriety += s.cfg.NotorietyPerSiegeDefendSuccess
	}

	sg.onCompleted(s, success)
	s.sieges.remove(r)
	s.registerRanking(attackers)
	s.registerRanking(defenders)

	o := s.outcome(sg)
	o.CitadelLost = success && sg.Defending == defenders.Citadel
	s.log.Printf("siege resolved: region=%s attacker=%s defender=%s state=%s progress=%d/%d",
		r, attackers.Name, defenders.Name, sg.State, sg.Progress, sg.SuccessThreshold())
	return o, true
}

func (s *Service) protect(sg *Siege, faction uuid.UUID, period time.Duration) {
	if period <= 0 {
		return
	}
	s.conquered.Protect(sg.Region(), faction, period)
	for _, c := range sg.Camps {
		s.conquered.Protect(c.Region(), faction, period)
	}
}

func (s *Service) outcome(sg *Siege) SiegeOutcome {
	o := SiegeOutcome{
		Region:    sg.Region(),
		Defending: sg.Defending,
		Camps:     append([]BlockPos(nil), sg.Camps...),
		Attacker:  sg.Attacker,
		Defender:  sg.Defender,
		State:     sg.State,
		Progress:  sg.Progress,
		Threshold: sg.SuccessThreshold(),
		Day:       s.day,
	}
	o.AttackerName = s.factionName(sg.Attacker)
	o.DefenderName = s.factionName(sg.Defender)
	return o
}

func (s *Service) factionName(id uuid.UUID) string {
	if f := s.factions.Get(id); f != nil {
		return f.Name
	}
	return id.String()
}

// OnPlayerKilled feeds a PvP kill into every siege and the killer's
// notoriety. Killer may be uuid.Nil for deaths without a player killer.
func (s *Service) OnPlayerKilled(killer, victim uuid.UUID) []SiegeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if killer == uuid.Nil || killer == victim {
		return nil
	}
	killerFac := s.factions.OfPlayer(killer)
	victimFac := s.factions.OfPlayer(victim)
	victimName := s.playerName(victim)

	var out []SiegeOutcome
	if killerFac != nil && victimFac != nil {
		if pos, ok := s.killerPosition(killer); ok {
			for _, sg := range s.sieges.All() {
				sg.onPvpKill(s, killerFac.ID, victimFac.ID, pos, victimName)
			}
			out = s.checkForCompleteSieges()
		}
	}

	if killerFac != nil {
		killerFac.KillCounter[victim]++
		n := killerFac.KillCounter[victim]
		if n <= s.cfg.NotorietyKillCap {
			if killerFac != victimFac {
				s.tell(killer, "Killing %s earned your faction %d notoriety", victimName, s.cfg.NotorietyPerPlayerKill)
				killerFac.Notoriety += s.cfg.NotorietyPerPlayerKill
				s.registerRanking(killerFac)
			}
		} else {
			s.tell(killer, "Your faction has already killed %s %d times. You will not become more notorious.", victimName, n)
		}
	}
	return out
}

func (s *Service) killerPosition(p uuid.UUID) (BlockPos, bool) {
	if s.players == nil {
		return BlockPos{}, false
	}
	return s.players.Position(p)
}
