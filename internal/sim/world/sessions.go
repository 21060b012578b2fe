package world

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/territory"
)

var playerNamespace = uuid.MustParse("0b6f6a52-3f0c-4a8e-b1b4-7d1f2e8c5a90")

// OfflinePlayerID derives a stable id for sessions that only supply a name.
func OfflinePlayerID(name string) uuid.UUID {
	return uuid.NewSHA1(playerNamespace, []byte("player:"+strings.ToLower(name)))
}

type player struct {
	ID    uuid.UUID
	Name  string
	Pos   territory.BlockPos
	Admin bool
	// Out is nil while the player is offline.
	Out chan []byte
}

func (p *player) online() bool { return p.Out != nil }

func (w *World) handleJoin(nowTick uint64, req JoinRequest) JoinResponse {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return JoinResponse{Code: protocol.ErrProtoBadRequest, Err: "missing player_name"}
	}
	id := OfflinePlayerID(name)
	if req.PlayerID != "" {
		parsed, err := uuid.Parse(req.PlayerID)
		if err != nil {
			return JoinResponse{Code: protocol.ErrProtoBadRequest, Err: "bad player_id"}
		}
		id = parsed
	}

	p := w.players[id]
	if p != nil && p.online() {
		return JoinResponse{Code: protocol.ErrConflict, Err: "player already connected"}
	}
	if p == nil {
		p = &player{ID: id}
		w.players[id] = p
	}
	p.Name = name
	p.Admin = req.Admin
	p.Out = req.Out

	w.svc.PlayerLoggedIn(id)
	w.auditEvent(nowTick, id.String(), "JOIN", p.Pos, "", map[string]any{"name": name, "admin": req.Admin})

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        id.String(),
		Admin:           req.Admin,
		WorldParams: protocol.WorldParams{
			TickRateHz: w.cfg.TickRateHz,
			DayTicks:   w.cfg.DayTicks,
			RegionSize: territory.RegionSize,
		},
	}
	if v, ok := w.svc.FactionOf(id); ok {
		welcome.FactionID = v.ID.String()
	}
	return JoinResponse{Welcome: welcome}
}

func (w *World) handleLeave(nowTick uint64, id uuid.UUID) {
	p := w.players[id]
	if p == nil || !p.online() {
		return
	}
	p.Out = nil
	w.auditEvent(nowTick, id.String(), "LEAVE", p.Pos, "", nil)
}

func (w *World) onlinePlayers() []*player {
	out := make([]*player, 0, len(w.players))
	for _, p := range w.players {
		if p.online() {
			out = append(out, p)
		}
	}
	return out
}

// resolvePlayer accepts a player id or a known player name.
func (w *World) resolvePlayer(ref string) (uuid.UUID, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, false
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, true
	}
	for _, p := range w.players {
		if strings.EqualFold(p.Name, ref) {
			return p.ID, true
		}
	}
	return uuid.Nil, false
}

// Position and Name make the session table the territory player view.

func (w *World) Position(id uuid.UUID) (territory.BlockPos, bool) {
	p := w.players[id]
	if p == nil {
		return territory.BlockPos{}, false
	}
	return p.Pos, true
}

func (w *World) Name(id uuid.UUID) string {
	if p := w.players[id]; p != nil {
		return p.Name
	}
	return ""
}

// Notifier.

func (w *World) SendToPlayer(id uuid.UUID, msg string) {
	p := w.players[id]
	if p == nil || !p.online() {
		return
	}
	w.sendNotice(p, msg)
}

func (w *World) BroadcastAll(msg string) {
	for _, p := range w.players {
		if p.online() {
			w.sendNotice(p, msg)
		}
	}
}

func (w *World) BroadcastNearby(center territory.BlockPos, radius int, info territory.SiegeInfo) {
	b, err := json.Marshal(protocol.SiegeInfoMsg{
		Type:            protocol.TypeSiegeInfo,
		ProtocolVersion: protocol.Version,
		AttackingPos:    info.Attacking.Array(),
		AttackingName:   info.AttackingName,
		AttackingColor:  info.AttackingColor,
		DefendingPos:    info.Defending.Array(),
		DefendingName:   info.DefendingName,
		DefendingColor:  info.DefendingColor,
		Progress:        info.Progress,
		CompletionPoint: info.CompletionPoint,
	})
	if err != nil {
		return
	}
	for _, p := range w.players {
		if !p.online() || p.Pos.Dim != center.Dim {
			continue
		}
		if absInt(p.Pos.X-center.X) > radius || absInt(p.Pos.Z-center.Z) > radius {
			continue
		}
		sendLatest(p.Out, b)
	}
}

func (w *World) sendNotice(p *player, msg string) {
	b, err := json.Marshal(protocol.NoticeMsg{
		Type:            protocol.TypeNotice,
		ProtocolVersion: protocol.Version,
		Text:            msg,
	})
	if err != nil {
		return
	}
	sendLatest(p.Out, b)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
