// Package structures holds the placed claim blocks. Every kind exposes the
// same claim capability to the territory engine and differs only in its
// strengths and in whether it can run a siege.
package structures

import (
	"github.com/google/uuid"

	"siegecraft.ai/internal/sim/territory"
)

type Kind string

const (
	KindCitadel    Kind = "CITADEL"
	KindBasicClaim Kind = "BASIC_CLAIM"
	KindSiegeCamp  Kind = "SIEGE_CAMP"
	KindAdminClaim Kind = "ADMIN_CLAIM"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCitadel, KindBasicClaim, KindSiegeCamp, KindAdminClaim:
		return Kind(s), true
	}
	return "", false
}

type Strengths struct {
	Defence int `yaml:"defence"`
	Attack  int `yaml:"attack"`
	Support int `yaml:"support"`
}

type Config struct {
	Citadel    Strengths
	BasicClaim Strengths
	SiegeCamp  Strengths
	AdminClaim Strengths

	// AbandonTicks is how long a camp may stand without any attacker nearby
	// before its siege is abandoned.
	AbandonTicks int
}

func DefaultConfig() Config {
	return Config{
		Citadel:      Strengths{Defence: 15, Support: 3},
		BasicClaim:   Strengths{Defence: 5, Support: 1},
		SiegeCamp:    Strengths{Defence: 1, Attack: 1},
		AdminClaim:   Strengths{Defence: 1000},
		AbandonTicks: 300,
	}
}

func (c Config) strengthsFor(k Kind) Strengths {
	switch k {
	case KindCitadel:
		return c.Citadel
	case KindSiegeCamp:
		return c.SiegeCamp
	case KindAdminClaim:
		return c.AdminClaim
	default:
		return c.BasicClaim
	}
}

// Claim is a placed claim block of any kind.
type Claim struct {
	kind      Kind
	pos       territory.BlockPos
	faction   uuid.UUID
	strengths Strengths
}

func (c *Claim) Kind() Kind { return c.kind }
func (c *Claim) Pos() territory.BlockPos { return c.pos }
func (c *Claim) Faction() uuid.UUID { return c.faction }
func (c *Claim) DefenceStrength() int { return c.strengths.Defence }
func (c *Claim) AttackStrength() int { return c.strengths.Attack }
func (c *Claim) SupportStrength() int { return c.strengths.Support }
func (c *Claim) OnOwnerChanged(f uuid.UUID) { c.faction = f }

// Camp is a siege camp. It tracks the claim it is attacking and how long its
// attackers have been away.
type Camp struct {
	Claim
	target       *territory.BlockPos
	abandonTimer int
	lastOutcome  territory.SiegeState
	concluded    bool
}

func (c *Camp) AbandonTimer() int { return c.abandonTimer }

func (c *Camp) Target() (territory.BlockPos, bool) {
	if c.target == nil {
		return territory.BlockPos{}, false
	}
	return *c.target, true
}

func (c *Camp) SetSiegeTarget(target *territory.BlockPos) {
	if target == nil {
		c.target = nil
	} else {
		t := *target
		c.target = &t
	}
	c.abandonTimer = 0
}

func (c *Camp) OnSiegeSucceeded() {
	c.SetSiegeTarget(nil)
	c.lastOutcome, c.concluded = territory.SiegeSucceeded, true
}

func (c *Camp) OnSiegeFailed() {
	c.SetSiegeTarget(nil)
	c.lastOutcome, c.concluded = territory.SiegeFailed, true
}

// LastOutcome is the result of the most recent siege this camp took part in.
func (c *Camp) LastOutcome() (territory.SiegeState, bool) { return c.lastOutcome, c.concluded }

// Observe updates the abandon timer from whether any attacker is near the
// camp. It reports true once the timer passes limit.
func (c *Camp) Observe(attackersPresent bool, limit int) bool {
	if c.target == nil {
		c.abandonTimer = 0
		return false
	}
	if attackersPresent {
		c.abandonTimer = 0
		return false
	}
	c.abandonTimer++
	return limit > 0 && c.abandonTimer > limit
}
