package territory

import "github.com/google/uuid"

// Structure is a placed claim block. Its strengths feed siege difficulty.
type Structure interface {
	Pos() BlockPos
	Faction() uuid.UUID
	DefenceStrength() int
	AttackStrength() int
	SupportStrength() int
	OnOwnerChanged(faction uuid.UUID)
}

// SiegeCamp is a claim that can launch and join sieges.
type SiegeCamp interface {
	Structure
	// AbandonTimer is non-zero while every attacker has left the camp.
	AbandonTimer() int
	SetSiegeTarget(target *BlockPos)
	OnSiegeSucceeded()
	OnSiegeFailed()
}

// Grid is the structure layer territory places and removes claim blocks through.
type Grid interface {
	StructureAt(pos BlockPos) (Structure, bool)
	PlaceBasicClaim(pos BlockPos, faction uuid.UUID) (Structure, error)
	PlaceCitadel(pos BlockPos, faction uuid.UUID) (Structure, error)
	PlaceAdminClaim(pos BlockPos, faction uuid.UUID) (Structure, error)
	PlaceSiegeCamp(pos BlockPos, faction uuid.UUID) (SiegeCamp, error)
	Remove(pos BlockPos)
}

type Players interface {
	Position(player uuid.UUID) (BlockPos, bool)
	Name(player uuid.UUID) string
}

// SiegeInfo is the status pushed to players near a siege.
type SiegeInfo struct {
	Attacking       BlockPos
	AttackingName   string
	AttackingColor  int
	Defending       BlockPos
	DefendingName   string
	DefendingColor  int
	Progress        int
	CompletionPoint int
}

type Notifier interface {
	SendToPlayer(player uuid.UUID, msg string)
	BroadcastAll(msg string)
	BroadcastNearby(center BlockPos, radius int, info SiegeInfo)
}

type Ranking interface {
	RegisterFaction(s FactionSummary)
	UnregisterFaction(id uuid.UUID)
}

type nopNotifier struct{}

func (nopNotifier) SendToPlayer(uuid.UUID, string) {}
func (nopNotifier) BroadcastAll(string) {}
func (nopNotifier) BroadcastNearby(BlockPos, int, SiegeInfo) {}
