package world

import (
	"log"
	"time"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/structures"
	"siegecraft.ai/internal/sim/territory"
)

type WorldConfig struct {
	ID string

	TickRateHz         int
	DayTicks           int
	YieldTicks         int
	SnapshotEveryTicks int
	ImmunityDecayEvery time.Duration

	Territory  territory.Config
	Structures structures.Config
}

type Deps struct {
	Ranking territory.Ranking
	Logger  *log.Logger
	Clock   func() time.Time
	// Seed feeds the territory random source. Zero picks one from the clock.
	Seed int64
}

type JoinRequest struct {
	// PlayerID is optional; without it the id is derived from Name.
	PlayerID string
	Name     string
	Admin    bool
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	// Code is set when the join was refused.
	Code string
	Err  string
}

type ActionEnvelope struct {
	PlayerID uuid.UUID
	Act      protocol.ActMsg
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "PLACE_CLAIM"
	Pos     [4]int         `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// DaySummary is written once per siege day.
type DaySummary struct {
	Tick     uint64 `json:"tick"`
	Day      int    `json:"day"`
	Factions int    `json:"factions"`
	Sieges   int    `json:"sieges"`
	Resolved int    `json:"resolved"`
	Digest   string `json:"digest"`
}

type SiegeResult struct {
	Tick         uint64    `json:"tick"`
	Day          int       `json:"day"`
	Region       [3]int    `json:"region"`
	Defending    [4]int    `json:"defending"`
	Attacker     uuid.UUID `json:"attacker"`
	Defender     uuid.UUID `json:"defender"`
	AttackerName string    `json:"attacker_name"`
	DefenderName string    `json:"defender_name"`
	State        string    `json:"state"`
	Progress     int       `json:"progress"`
	Threshold    int       `json:"threshold"`
	CitadelLost  bool      `json:"citadel_lost,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type DayLogger interface {
	WriteDay(entry DaySummary) error
}

type SiegeRecorder interface {
	RecordSiegeResult(r SiegeResult)
}
