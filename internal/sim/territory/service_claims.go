package territory

import (
	"fmt"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

// OwnerOf returns the faction owning r, or uuid.Nil.
func (s *Service) OwnerOf(r RegionPos) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.OwnerOf(r)
}

// CanClaim reports why player could not claim the region around pos, or nil.
func (s *Service) CanClaim(player uuid.UUID, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.checkClaim(player, pos)
	return err
}

func (s *Service) checkClaim(player uuid.UUID, pos BlockPos) (*Faction, error) {
	f := s.factions.OfPlayer(player)
	if f == nil {
		return nil, reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	r := pos.Region()
	if s.claims.IsClaimed(r) {
		return nil, reject(protocol.ErrConflict, "The region %s is already claimed", r)
	}
	if e, ok := s.conquered.Get(r); ok && e.Faction != f.ID {
		return nil, reject(protocol.ErrBlocked, "The region %s was recently conquered, protection ends in %s", r, e.Remaining)
	}
	if s.sieges.InProgress(r) {
		return nil, reject(protocol.ErrBlocked, "The region %s is part of a siege", r)
	}
	return f, nil
}

// PlaceClaim claims the region around pos with a basic claim block.
func (s *Service) PlaceClaim(player uuid.UUID, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.checkClaim(player, pos)
	if err != nil {
		return err
	}
	if s.grid != nil {
		if _, err := s.grid.PlaceBasicClaim(pos, f.ID); err != nil {
			return fmt.Errorf("place claim: %w", err)
		}
	}
	if err := s.claimFor(f, pos); err != nil {
		s.removeBlock(pos)
		return err
	}
	return nil
}

// PlaceSiegeCamp claims the region around pos with a siege camp and plants
// the placer's flag on it.
func (s *Service) PlaceSiegeCamp(player uuid.UUID, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.checkClaim(player, pos)
	if err != nil {
		return err
	}
	if s.grid != nil {
		if _, err := s.grid.PlaceSiegeCamp(pos, f.ID); err != nil {
			return fmt.Errorf("place siege camp: %w", err)
		}
	}
	if err := s.claimFor(f, pos); err != nil {
		s.removeBlock(pos)
		return err
	}
	if err := s.placeFlag(f, player, pos); err != nil {
		s.tell(player, "%s", AsRejection(err).Msg)
	}
	return nil
}

func (s *Service) claimFor(f *Faction, pos BlockPos) error {
	r := pos.Region()
	if err := s.claims.Claim(r, f.ID); err != nil {
		return err
	}
	f.addClaim(pos)
	if st, ok := s.structureAt(pos); ok {
		st.OnOwnerChanged(f.ID)
	}
	s.sendToFaction(f, fmt.Sprintf("Claimed the region [%d, %d] around %s", r.X, r.Z, pos))
	s.registerRanking(f)
	return nil
}

// RemoveClaim drops a non-citadel claim that is not part of a siege.
func (s *Service) RemoveClaim(actor Actor, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.Get(s.claims.OwnerOf(pos.Region()))
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "Could not find a claim in that location")
	}
	if _, ok := f.Claims[pos]; !ok {
		return reject(protocol.ErrInvalidTarget, "Could not find a claim in that location")
	}
	if pos == f.Citadel {
		return reject(protocol.ErrNoPermission, "Can't remove the citadel without disbanding the faction")
	}
	if !actor.Admin && !f.HasRole(actor.Player, RoleOfficer) {
		return reject(protocol.ErrNoPermission, "You are not an officer of the faction")
	}
	if s.sieges.Get(pos.Region()) != nil {
		return reject(protocol.ErrBlocked, "This claim is currently under siege")
	}
	if s.sieges.SiegeWithCamp(pos) != nil {
		return reject(protocol.ErrBlocked, "This siege camp is currently in a siege")
	}

	f.removeClaim(pos)
	if _, still := f.ClaimIn(pos.Region()); !still {
		s.claims.Release(pos.Region())
	}
	if s.grid != nil {
		s.grid.Remove(pos)
	}
	s.sendToFaction(f, fmt.Sprintf("%s unclaimed %s", s.playerName(actor.Player), pos))
	s.registerRanking(f)
	return nil
}

// OpClaim places an admin claim for any faction, neutral zones included.
func (s *Service) OpClaim(r RegionPos, factionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.Get(factionID)
	if f == nil {
		return reject(protocol.ErrInvalidTarget, "Could not find that faction")
	}
	if s.claims.IsClaimed(r) {
		return reject(protocol.ErrConflict, "There is already a claim here")
	}
	pos := r.Origin()
	if s.grid != nil {
		if _, err := s.grid.PlaceAdminClaim(pos, f.ID); err != nil {
			return fmt.Errorf("place admin claim: %w", err)
		}
	}
	if err := s.claimFor(f, pos); err != nil {
		s.removeBlock(pos)
		return err
	}
	s.log.Printf("op claim: region=%s faction=%s", r, f.Name)
	return nil
}

// AdjacentClaim is a region next to a camp position that could be sieged.
type AdjacentClaim struct {
	Dir       Direction
	Region    RegionPos
	Faction   uuid.UUID
	Name      string
	Color     int
	ClaimPosY int
}

// GetAdjacentClaims lists, in horizontal order, the neighbours of pos owned by
// a faction other than excluding whose claim block is within the vertical
// siege distance.
func (s *Service) GetAdjacentClaims(excluding uuid.UUID, pos BlockPos) []AdjacentClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjacentClaims(excluding, pos)
}

func (s *Service) adjacentClaims(excluding uuid.UUID, pos BlockPos) []AdjacentClaim {
	var out []AdjacentClaim
	for _, d := range Horizontals {
		n := pos.Region().Offset(d, 1)
		owner := s.claims.OwnerOf(n)
		if owner == uuid.Nil || owner == excluding {
			continue
		}
		f := s.factions.Get(owner)
		if f == nil {
			continue
		}
		claimPos, ok := f.ClaimIn(n)
		if !ok {
			continue
		}
		if abs(pos.Y-claimPos.Y) > s.cfg.VerticalSiegeDist {
			continue
		}
		out = append(out, AdjacentClaim{Dir: d, Region: n, Faction: f.ID, Name: f.Name, Color: f.Color, ClaimPosY: claimPos.Y})
	}
	return out
}

// PlaceFlag plants the player's flag on one of the faction's claims.
func (s *Service) PlaceFlag(player uuid.UUID, pos BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.factions.OfPlayer(player)
	if f == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	return s.placeFlag(f, player, pos)
}

func (s *Service) placeFlag(f *Faction, player uuid.UUID, pos BlockPos) error {
	m := f.Members[player]
	if m == nil {
		return reject(protocol.ErrBadRequest, "You are not in a faction")
	}
	if _, ok := f.Claims[pos]; !ok {
		return reject(protocol.ErrInvalidTarget, "Flags can only be placed on your faction's claims")
	}
	if m.Flag != nil && *m.Flag == pos {
		return reject(protocol.ErrConflict, "Your flag is already there")
	}
	if m.FlagCooldown > 0 {
		return reject(protocol.ErrCooldown, "You must wait %d more days before moving your flag", m.FlagCooldown)
	}
	flag := pos
	m.Flag = &flag
	m.FlagCooldown = s.cfg.FlagCooldownDays
	s.refreshAllSieges()
	return nil
}

// ResetFlagCooldowns lets every player move their flag again immediately.
func (s *Service) ResetFlagCooldowns() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.factions.All() {
		for _, m := range f.Members {
			m.FlagCooldown = 0
		}
	}
}
