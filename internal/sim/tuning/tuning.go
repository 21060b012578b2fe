package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"siegecraft.ai/internal/sim/structures"
	"siegecraft.ai/internal/sim/territory"
)

// EnvPrefix namespaces every environment override, e.g. SIEGE_DAY_TICKS.
const EnvPrefix = "SIEGE_"

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int           `yaml:"tick_rate_hz" env:"TICK_RATE_HZ"`
	DayTicks           int           `yaml:"day_ticks" env:"DAY_TICKS"`
	YieldTicks         int           `yaml:"yield_ticks" env:"YIELD_TICKS"`
	SnapshotEveryTicks int           `yaml:"snapshot_every_ticks" env:"SNAPSHOT_EVERY_TICKS"`
	ImmunityDecayEvery time.Duration `yaml:"immunity_decay_every" env:"IMMUNITY_DECAY_EVERY"`
	OutboundQueue      int           `yaml:"outbound_queue" env:"OUTBOUND_QUEUE"`

	// AdminToken is only ever read from the environment.
	AdminToken string `yaml:"-" env:"ADMIN_TOKEN"`

	Territory  Territory  `yaml:"territory" envPrefix:"TERRITORY_"`
	Structures Structures `yaml:"structures" envPrefix:"STRUCTURES_"`
}

type Territory struct {
	FactionNameMaxLen int `yaml:"faction_name_max_len" env:"FACTION_NAME_MAX_LEN"`

	SwingPerDayBase       int `yaml:"swing_per_day_base" env:"SWING_PER_DAY_BASE"`
	SwingNoDefenderLogins int `yaml:"swing_no_defender_logins" env:"SWING_NO_DEFENDER_LOGINS"`
	SwingNoAttackerLogins int `yaml:"swing_no_attacker_logins" env:"SWING_NO_ATTACKER_LOGINS"`
	SwingPerDefenderFlag  int `yaml:"swing_per_defender_flag" env:"SWING_PER_DEFENDER_FLAG"`
	SwingPerAttackerFlag  int `yaml:"swing_per_attacker_flag" env:"SWING_PER_ATTACKER_FLAG"`
	SwingPerDefenderDeath int `yaml:"swing_per_defender_death" env:"SWING_PER_DEFENDER_DEATH"`
	SwingPerAttackerDeath int `yaml:"swing_per_attacker_death" env:"SWING_PER_ATTACKER_DEATH"`

	DifficultyPerDefenderFlag int `yaml:"difficulty_per_defender_flag" env:"DIFFICULTY_PER_DEFENDER_FLAG"`
	KillRadius                int `yaml:"kill_radius" env:"KILL_RADIUS"`
	MaxSiegeCamps             int `yaml:"max_siege_camps" env:"MAX_SIEGE_CAMPS"`
	VerticalSiegeDist         int `yaml:"vertical_siege_dist" env:"VERTICAL_SIEGE_DIST"`
	SiegeInfoRadius           int `yaml:"siege_info_radius" env:"SIEGE_INFO_RADIUS"`

	SiegeCooldown           time.Duration `yaml:"siege_cooldown" env:"SIEGE_COOLDOWN"`
	SiegeCapture            bool          `yaml:"siege_capture" env:"SIEGE_CAPTURE"`
	AttackerConqueredPeriod time.Duration `yaml:"attacker_conquered_period" env:"ATTACKER_CONQUERED_PERIOD"`
	DefenderConqueredPeriod time.Duration `yaml:"defender_conquered_period" env:"DEFENDER_CONQUERED_PERIOD"`

	NotorietyPerPlayerKill         int `yaml:"notoriety_per_player_kill" env:"NOTORIETY_PER_PLAYER_KILL"`
	NotorietyKillCap               int `yaml:"notoriety_kill_cap" env:"NOTORIETY_KILL_CAP"`
	NotorietyPerSiegeAttackSuccess int `yaml:"notoriety_per_siege_attack_success" env:"NOTORIETY_PER_SIEGE_ATTACK_SUCCESS"`
	NotorietyPerSiegeDefendSuccess int `yaml:"notoriety_per_siege_defend_success" env:"NOTORIETY_PER_SIEGE_DEFEND_SUCCESS"`
	LegacyPerDay                   int `yaml:"legacy_per_day" env:"LEGACY_PER_DAY"`

	LegacyUsesYieldTimer bool `yaml:"legacy_uses_yield_timer" env:"LEGACY_USES_YIELD_TIMER"`

	CitadelMoveDays  int `yaml:"citadel_move_days" env:"CITADEL_MOVE_DAYS"`
	FlagCooldownDays int `yaml:"flag_cooldown_days" env:"FLAG_COOLDOWN_DAYS"`
}

type Strengths struct {
	Defence int `yaml:"defence" env:"DEFENCE"`
	Attack  int `yaml:"attack" env:"ATTACK"`
	Support int `yaml:"support" env:"SUPPORT"`
}

type Structures struct {
	Citadel      Strengths `yaml:"citadel" envPrefix:"CITADEL_"`
	BasicClaim   Strengths `yaml:"basic_claim" envPrefix:"BASIC_CLAIM_"`
	SiegeCamp    Strengths `yaml:"siege_camp" envPrefix:"SIEGE_CAMP_"`
	AdminClaim   Strengths `yaml:"admin_claim" envPrefix:"ADMIN_CLAIM_"`
	AbandonTicks int       `yaml:"abandon_ticks" env:"ABANDON_TICKS"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		DayTicks:           432000,
		YieldTicks:         432000,
		SnapshotEveryTicks: 3000,
		ImmunityDecayEvery: time.Minute,
		OutboundQueue:      64,
		Territory: Territory{
			FactionNameMaxLen:              32,
			SwingPerDayBase:                1,
			SwingNoDefenderLogins:          1,
			SwingNoAttackerLogins:          1,
			SwingPerDefenderFlag:           1,
			SwingPerAttackerFlag:           1,
			SwingPerDefenderDeath:          1,
			SwingPerAttackerDeath:          1,
			DifficultyPerDefenderFlag:      1,
			KillRadius:                     1,
			MaxSiegeCamps:                  4,
			VerticalSiegeDist:              64,
			SiegeInfoRadius:                200,
			SiegeCapture:                   true,
			AttackerConqueredPeriod:        time.Hour,
			DefenderConqueredPeriod:        time.Hour,
			NotorietyPerPlayerKill:         1,
			NotorietyKillCap:               3,
			NotorietyPerSiegeAttackSuccess: 10,
			NotorietyPerSiegeDefendSuccess: 10,
			LegacyPerDay:                   1,
			CitadelMoveDays:                3,
			FlagCooldownDays:               1,
		},
		Structures: Structures{
			Citadel:      Strengths{Defence: 15, Support: 3},
			BasicClaim:   Strengths{Defence: 5, Support: 1},
			SiegeCamp:    Strengths{Defence: 1, Attack: 1},
			AdminClaim:   Strengths{Defence: 1000},
			AbandonTicks: 300,
		},
	}
}

// Load reads path over Defaults. Fields missing from the file keep their
// default value. The os error is returned unwrapped so callers can test it
// with os.IsNotExist.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// ApplyEnv overrides t with any SIEGE_* variables that are set.
func ApplyEnv(t *Tuning) error {
	if err := env.ParseWithOptions(t, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz))
	}
	if t.DayTicks <= 0 {
		errs = append(errs, fmt.Errorf("day_ticks must be > 0, got %d", t.DayTicks))
	}
	if t.YieldTicks < 0 {
		errs = append(errs, fmt.Errorf("yield_ticks must be >= 0, got %d", t.YieldTicks))
	}
	if t.SnapshotEveryTicks < 0 {
		errs = append(errs, fmt.Errorf("snapshot_every_ticks must be >= 0, got %d", t.SnapshotEveryTicks))
	}
	if t.ImmunityDecayEvery <= 0 {
		errs = append(errs, fmt.Errorf("immunity_decay_every must be > 0, got %s", t.ImmunityDecayEvery))
	}
	tt := t.Territory
	if tt.MaxSiegeCamps <= 0 {
		errs = append(errs, fmt.Errorf("territory.max_siege_camps must be > 0, got %d", tt.MaxSiegeCamps))
	}
	if tt.KillRadius < 0 {
		errs = append(errs, fmt.Errorf("territory.kill_radius must be >= 0, got %d", tt.KillRadius))
	}
	if tt.AttackerConqueredPeriod < 0 || tt.DefenderConqueredPeriod < 0 || tt.SiegeCooldown < 0 {
		errs = append(errs, errors.New("territory periods must not be negative"))
	}
	if t.Structures.AbandonTicks <= 0 {
		errs = append(errs, fmt.Errorf("structures.abandon_ticks must be > 0, got %d", t.Structures.AbandonTicks))
	}
	return errors.Join(errs...)
}

func (t Tuning) TerritoryConfig() territory.Config {
	tt := t.Territory
	return territory.Config{
		FactionNameMaxLen:              tt.FactionNameMaxLen,
		SwingPerDayBase:                tt.SwingPerDayBase,
		SwingNoDefenderLogins:          tt.SwingNoDefenderLogins,
		SwingNoAttackerLogins:          tt.SwingNoAttackerLogins,
		SwingPerDefenderFlag:           tt.SwingPerDefenderFlag,
		SwingPerAttackerFlag:           tt.SwingPerAttackerFlag,
		SwingPerDefenderDeath:          tt.SwingPerDefenderDeath,
		SwingPerAttackerDeath:          tt.SwingPerAttackerDeath,
		DifficultyPerDefenderFlag:      tt.DifficultyPerDefenderFlag,
		KillRadius:                     tt.KillRadius,
		MaxSiegeCamps:                  tt.MaxSiegeCamps,
		VerticalSiegeDist:              tt.VerticalSiegeDist,
		SiegeInfoRadius:                tt.SiegeInfoRadius,
		SiegeCooldown:                  tt.SiegeCooldown,
		SiegeCapture:                   tt.SiegeCapture,
		AttackerConqueredPeriod:        tt.AttackerConqueredPeriod,
		DefenderConqueredPeriod:        tt.DefenderConqueredPeriod,
		NotorietyPerPlayerKill:         tt.NotorietyPerPlayerKill,
		NotorietyKillCap:               tt.NotorietyKillCap,
		NotorietyPerSiegeAttackSuccess: tt.NotorietyPerSiegeAttackSuccess,
		NotorietyPerSiegeDefendSuccess: tt.NotorietyPerSiegeDefendSuccess,
		LegacyPerDay:                   tt.LegacyPerDay,
		LegacyUsesYieldTimer:           tt.LegacyUsesYieldTimer,
		CitadelMoveDays:                tt.CitadelMoveDays,
		FlagCooldownDays:               tt.FlagCooldownDays,
	}
}

func (t Tuning) StructuresConfig() structures.Config {
	conv := func(s Strengths) structures.Strengths {
		return structures.Strengths{Defence: s.Defence, Attack: s.Attack, Support: s.Support}
	}
	return structures.Config{
		Citadel:      conv(t.Structures.Citadel),
		BasicClaim:   conv(t.Structures.BasicClaim),
		SiegeCamp:    conv(t.Structures.SiegeCamp),
		AdminClaim:   conv(t.Structures.AdminClaim),
		AbandonTicks: t.Structures.AbandonTicks,
	}
}
