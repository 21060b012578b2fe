package territory

import "time"

type Config struct {
	FactionNameMaxLen int

	// Daily swing applied to every active siege.
	SwingPerDayBase       int
	SwingNoDefenderLogins int
	SwingNoAttackerLogins int
	SwingPerDefenderFlag  int
	SwingPerAttackerFlag  int

	// Swing applied per qualifying kill near a siege camp.
	SwingPerDefenderDeath int
	SwingPerAttackerDeath int

	DifficultyPerDefenderFlag int

	KillRadius        int // in regions, around each camp
	MaxSiegeCamps     int
	VerticalSiegeDist int // blocks
	SiegeInfoRadius   int // blocks
	SiegeCooldown     time.Duration
	SiegeCapture      bool

	AttackerConqueredPeriod time.Duration
	DefenderConqueredPeriod time.Duration

	NotorietyPerPlayerKill         int
	NotorietyKillCap               int
	NotorietyPerSiegeAttackSuccess int
	NotorietyPerSiegeDefendSuccess int

	LegacyPerDay         int
	LegacyUsesYieldTimer bool

	CitadelMoveDays  int
	FlagCooldownDays int
}

func DefaultConfig() Config {
	return Config{
		FactionNameMaxLen: 32,

		SwingPerDayBase:       1,
		SwingNoDefenderLogins: 1,
		SwingNoAttackerLogins: 1,
		SwingPerDefenderFlag:  1,
		SwingPerAttackerFlag:  1,

		SwingPerDefenderDeath: 1,
		SwingPerAttackerDeath: 1,

		DifficultyPerDefenderFlag: 1,

		KillRadius:        1,
		MaxSiegeCamps:     4,
		VerticalSiegeDist: 64,
		SiegeInfoRadius:   200,
		SiegeCooldown:     0,
		SiegeCapture:      true,

		AttackerConqueredPeriod: time.Hour,
		DefenderConqueredPeriod: time.Hour,

		NotorietyPerPlayerKill:         1,
		NotorietyKillCap:               3,
		NotorietyPerSiegeAttackSuccess: 10,
		NotorietyPerSiegeDefendSuccess: 10,

		LegacyPerDay: 1,

		CitadelMoveDays:  3,
		FlagCooldownDays: 1,
	}
}

// normalize fills structural limits that must be positive. Swing values are
// left alone since zero is a meaningful setting for them.
func (c *Config) normalize() {
	if c.FactionNameMaxLen <= 0 {
		c.FactionNameMaxLen = 32
	}
	if c.MaxSiegeCamps <= 0 {
		c.MaxSiegeCamps = 4
	}
	if c.KillRadius < 0 {
		c.KillRadius = 1
	}
	if c.VerticalSiegeDist <= 0 {
		c.VerticalSiegeDist = 64
	}
	if c.SiegeInfoRadius <= 0 {
		c.SiegeInfoRadius = 200
	}
}
