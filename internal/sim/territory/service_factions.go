package territory

import (
	"fmt"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

// RandomColor asks CreateFaction to pick a bright color.
const RandomColor = 0xffffff

// CreateFaction founds a faction around a citadel placed by player.
func (s *Service) CreateFaction(player uuid.UUID, citadel BlockPos, name string, color int) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateName(name, s.cfg.FactionNameMaxLen); err != nil {
		return uuid.Nil, err
	}
	if s.factions.OfPlayer(player) != nil {
		return uuid.Nil, reject(protocol.ErrConflict, "You are already in a faction")
	}
	id := FactionID(name)
	if s.factions.Get(id) != nil || IsNeutralZone(id) {
		return uuid.Nil, reject(protocol.ErrConflict, "A faction with the name %s already exists", name)
	}
	r := citadel.Region()
	if s.claims.IsClaimed(r) {
		return uuid.Nil, reject(protocol.ErrConflict, "The region %s is already claimed", r)
	}
	if s.sieges.InProgress(r) {
		return uuid.Nil, reject(protocol.ErrBlocked, "The region %s is part of a siege", r)
	}
	if e, ok := s.conquered.Get(r); ok {
		return uuid.Nil, reject(protocol.ErrBlocked, "The region %s was recently conquered, protection ends in %s", r, e.Remaining)
	}
	if color < 0 || color > RandomColor {
		return uuid.Nil, reject(protocol.ErrBadRequest, "Invalid color %#x", color)
	}
	if color == RandomColor {
		color = s.randomColor()
	}

	if s.grid != nil {
		if _, err := s.grid.PlaceCitadel(citadel, id); err != nil {
			return uuid.Nil, fmt.Errorf("place citadel: %w", err)
		}
	}
	if err := s.claims.Claim(r, id); err != nil {
		s.removeBlock(citadel)
		return uuid.Nil, err
	}
	f := newFaction(id, name, color, citadel)
	s.factions.add(f)
	f.addClaim(citadel)
	f.addPlayer(player)
	f.setLeader(player)
	s.registerRanking(f)

	s.notifier.BroadcastAll(fmt.Sprintf("%s created the faction %s", s.playerName(player), name))
	s.log.Printf("faction created: id=%s name=%s leader=%s citadel=%s", id, name, player, citadel)
	return id, nil
}

// Disband removes the faction led by actor. A nil factionID means the actor's own.
func (s *Service) Disband(actor uuid.UUID, factionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if factionID == uuid.Nil {
		if f := s.factions.OfPlayer(actor); f != nil {
			factionID = f.ID
		}
	}
	f := s.factions.Get(factionID)
	if f == nil || !f.HasRole(actor, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the leader of this faction")
	}
	if f.IsNeutral() {
		return reject(protocol.ErrNoPermission, "Neutral zones cannot be disbanded")
	}
	s.removeFaction(f, fmt.Sprintf("%s has been disbanded", f.Name))
	return nil
}

// FactionDefeated force-disbands an eliminated faction.
func (s *Service) FactionDefeated(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.Get(id)
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "That faction doesn't exist")
	}
	if f.IsNeutral() {
		return reject(protocol.ErrNoPermission, "Neutral zones cannot be defeated")
	}
	s.removeFaction(f, fmt.Sprintf("%s has been defeated", f.Name))
	return nil
}

func (s *Service) removeFaction(f *Faction, msg string) {
	for _, r := range s.sieges.Involving(f.ID) {
		if sg := s.sieges.Get(r); sg != nil {
			sg.cancel(s)
			s.sieges.remove(r)
		}
	}
	for pos := range f.Claims {
		if s.claims.OwnerOf(pos.Region()) == f.ID {
			s.claims.Release(pos.Region())
		}
		if s.grid != nil {
			s.grid.Remove(pos)
		}
	}
	s.sendToFaction(f, msg)
	s.factions.remove(f.ID)
	if s.ranking != nil {
		s.ranking.UnregisterFaction(f.ID)
	}
	s.notifier.BroadcastAll(msg)
	s.log.Printf("faction removed: id=%s name=%s claims=%d", f.ID, f.Name, len(f.Claims))
}

func (s *Service) SetColor(actor uuid.UUID, color int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(actor)
	if f == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if !f.HasRole(actor, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the faction leader")
	}
	if color < 0 || color > 0xffffff {
		return reject(protocol.ErrBadRequest, "Invalid color %#x", color)
	}
	f.Color = color
	s.registerRanking(f)
	return nil
}

// MoveCitadel relocates the citadel inside the faction's own territory. The
// old citadel block becomes a basic claim.
func (s *Service) MoveCitadel(actor uuid.UUID, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(actor)
	if f == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if !f.HasRole(actor, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the faction leader")
	}
	if s.sieges.AgainstFaction(f.ID) {
		return reject(protocol.ErrBlocked, "There is an ongoing siege against your faction")
	}
	if f.CitadelMoveCooldown > 0 {
		return reject(protocol.ErrCooldown, "You must wait an additional %d days until you can move your citadel", f.CitadelMoveCooldown)
	}
	if pos == f.Citadel {
		return reject(protocol.ErrBadRequest, "Your citadel is already there")
	}
	if s.claims.OwnerOf(pos.Region()) != f.ID {
		return reject(protocol.ErrInvalidTarget, "The citadel can only be moved inside your own territory")
	}

	old := f.Citadel
	if s.grid != nil {
		if _, err := s.grid.PlaceCitadel(pos, f.ID); err != nil {
			return fmt.Errorf("place citadel: %w", err)
		}
		if _, err := s.grid.PlaceBasicClaim(old, f.ID); err != nil {
			return fmt.Errorf("convert old citadel: %w", err)
		}
	}
	f.addClaim(pos)
	f.Citadel = pos
	f.CitadelMoveCooldown = s.cfg.CitadelMoveDays

	s.notifier.BroadcastAll(fmt.Sprintf("%s moved their citadel", f.Name))
	s.log.Printf("citadel moved: faction=%s from=%s to=%s", f.Name, old, pos)
	return nil
}

func (s *Service) Invite(actor Actor, factionID, invitee uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if factionID == uuid.Nil {
		if f := s.factions.OfPlayer(actor.Player); f != nil {
			factionID = f.ID
		}
	}
	f := s.factions.Get(factionID)
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "That faction doesn't exist")
	}
	if f.IsNeutral() {
		return reject(protocol.ErrNoPermission, "Players cannot join a neutral zone")
	}
	if !actor.Admin && !f.HasRole(actor.Player, RoleOfficer) {
		return reject(protocol.ErrNoPermission, "You are not an officer of this faction")
	}
	if s.factions.OfPlayer(invitee) != nil {
		return reject(protocol.ErrConflict, "That player is already in a faction")
	}
	f.invite(invitee)
	s.tell(invitee, "You have received an invite to %s", f.Name)
	return nil
}

func (s *Service) AcceptInvite(player uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.factions.OfPlayer(player) != nil {
		return reject(protocol.ErrConflict, "You are already in a faction")
	}
	f := s.factions.WithInviteTo(player)
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "You have no open invite to accept")
	}
	for _, other := range s.factions.All() {
		delete(other.Invites, player)
	}
	f.addPlayer(player)
	s.sendToFaction(f, fmt.Sprintf("%s joined %s", s.playerName(player), f.Name))
	s.registerRanking(f)
	return nil
}

// RemovePlayer kicks target, or lets a player leave when actor == target. A
// nil factionID means the target's faction.
func (s *Service) RemovePlayer(actor Actor, factionID, target uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f *Faction
	if factionID == uuid.Nil {
		f = s.factions.OfPlayer(target)
	} else {
		f = s.factions.Get(factionID)
	}
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "That faction doesn't exist")
	}
	if !f.IsMember(target) {
		return reject(protocol.ErrInvalidTarget, "That player is not in that faction")
	}
	self := actor.Player == target
	if !actor.Admin && !self && !f.Outranks(actor.Player, target) {
		return reject(protocol.ErrNoPermission, "You don't have permission to remove that player")
	}

	name := s.playerName(target)
	if self {
		s.sendToFaction(f, fmt.Sprintf("%s left %s", name, f.Name))
	} else {
		s.sendToFaction(f, fmt.Sprintf("%s was kicked from %s", name, f.Name))
	}
	wasLeader := f.RoleOf(target) == RoleLeader
	f.removePlayer(target)

	if wasLeader {
		if len(f.Members) == 0 {
			s.removeFaction(f, fmt.Sprintf("%s has been disbanded", f.Name))
			return nil
		}
		next := successor(f)
		f.setLeader(next)
		s.sendToFaction(f, fmt.Sprintf("%s now leads %s", s.playerName(next), f.Name))
	}
	s.registerRanking(f)
	s.refreshAllSieges()
	return nil
}

// successor picks the highest ranked remaining member, lowest ID first.
func successor(f *Faction) uuid.UUID {
	var (
		best uuid.UUID
		rank = -1
	)
	for _, id := range f.MemberIDs() {
		if r := f.Members[id].Role.rank(); r > rank {
			best, rank = id, r
		}
	}
	return best
}

func (s *Service) Promote(actor, target uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(actor)
	if f == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if !f.HasRole(actor, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the leader of this faction")
	}
	if f.RoleOf(target) != RoleMember {
		return reject(protocol.ErrInvalidTarget, "This player cannot be promoted")
	}
	f.Members[target].Role = RoleOfficer
	s.tell(target, "You have been promoted to officer of %s", f.Name)
	return nil
}

func (s *Service) Demote(actor, target uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(actor)
	if f == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if !f.HasRole(actor, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the leader of this faction")
	}
	if f.RoleOf(target) != RoleOfficer {
		return reject(protocol.ErrInvalidTarget, "This player cannot be demoted")
	}
	f.Members[target].Role = RoleMember
	s.tell(target, "You have been demoted to member of %s", f.Name)
	return nil
}

// TransferLeadership hands the faction to newLeader. A nil factionID means the
// actor's own faction.
func (s *Service) TransferLeadership(actor Actor, factionID, newLeader uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if factionID == uuid.Nil {
		if f := s.factions.OfPlayer(actor.Player); f != nil {
			factionID = f.ID
		}
	}
	f := s.factions.Get(factionID)
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "That faction does not exist")
	}
	if !actor.Admin && !f.HasRole(actor.Player, RoleLeader) {
		return reject(protocol.ErrNoPermission, "You are not the leader of this faction")
	}
	if !f.IsMember(newLeader) {
		return reject(protocol.ErrInvalidTarget, "That player is not in your faction")
	}
	if !f.setLeader(newLeader) {
		return reject(protocol.ErrInternal, "Failed to set leader")
	}
	s.sendToFaction(f, fmt.Sprintf("%s now leads %s", s.playerName(newLeader), f.Name))
	return nil
}

// PlayerLoggedIn marks the player's faction as active for the current day.
func (s *Service) PlayerLoggedIn(player uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.factions.OfPlayer(player); f != nil {
		f.LoggedInToday = true
	}
}
