package protocol

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name"`
	AdminToken      string `json:"admin_token,omitempty"`
	Capabilities    struct {
		MaxQueue int `json:"max_queue,omitempty"`
	} `json:"capabilities"`
}

type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	PlayerID        string      `json:"player_id"`
	FactionID       string      `json:"faction_id,omitempty"`
	Admin           bool        `json:"admin,omitempty"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	DayTicks   int `json:"day_ticks"`
	RegionSize int `json:"region_size"`
}

// Act names.
const (
	ActMove           = "MOVE"
	ActCreateFaction  = "CREATE_FACTION"
	ActInvite         = "INVITE"
	ActAcceptInvite   = "ACCEPT_INVITE"
	ActRemovePlayer   = "REMOVE_PLAYER"
	ActPromote        = "PROMOTE"
	ActDemote         = "DEMOTE"
	ActTransferLeader = "TRANSFER_LEADER"
	ActDisband        = "DISBAND"
	ActSetColor       = "SET_COLOR"
	ActMoveCitadel    = "MOVE_CITADEL"
	ActPlaceClaim     = "PLACE_CLAIM"
	ActPlaceCamp      = "PLACE_SIEGE_CAMP"
	ActRemoveClaim    = "REMOVE_CLAIM"
	ActPlaceFlag      = "PLACE_FLAG"
	ActStartSiege     = "START_SIEGE"
	ActJoinSiege      = "JOIN_SIEGE"
	ActReportKill     = "REPORT_KILL"

	// Admin only.
	ActOpClaim            = "OP_CLAIM"
	ActEndSiege           = "END_SIEGE"
	ActDefeatFaction      = "DEFEAT_FACTION"
	ActClearNotoriety     = "CLEAR_NOTORIETY"
	ActClearLegacy        = "CLEAR_LEGACY"
	ActResetFlagCooldowns = "RESET_FLAG_COOLDOWNS"
)

var adminActs = map[string]struct{}{
	ActOpClaim:            {},
	ActEndSiege:           {},
	ActDefeatFaction:      {},
	ActClearNotoriety:     {},
	ActClearLegacy:        {},
	ActResetFlagCooldowns: {},
}

// IsAdminAct reports whether the act requires an operator session.
func IsAdminAct(name string) bool {
	_, ok := adminActs[name]
	return ok
}

// ActMsg is one client request. Positions are [dim, x, y, z] and regions [dim, x, z].
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Action          string  `json:"action"`
	Pos             *[4]int `json:"pos,omitempty"`
	Region          *[3]int `json:"region,omitempty"`
	Dir             string  `json:"dir,omitempty"`
	Name            string  `json:"name,omitempty"`
	Color           *int    `json:"color,omitempty"`
	Target          string  `json:"target,omitempty"`
	FactionID       string  `json:"faction_id,omitempty"`
	Killer          string  `json:"killer,omitempty"`
	Victim          string  `json:"victim,omitempty"`
}

type ActResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActID           string `json:"act_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

type SiegeInfoMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AttackingPos    [4]int `json:"attacking_pos"`
	AttackingName   string `json:"attacking_name"`
	AttackingColor  int    `json:"attacking_color"`
	DefendingPos    [4]int `json:"defending_pos"`
	DefendingName   string `json:"defending_name"`
	DefendingColor  int    `json:"defending_color"`
	Progress        int    `json:"progress"`
	CompletionPoint int    `json:"completion_point"`
}
