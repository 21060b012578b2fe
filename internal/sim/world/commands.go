package world

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/territory"
)

func badRequest(format string, args ...any) error {
	return &territory.Rejection{Code: protocol.ErrBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func invalidTarget(format string, args ...any) error {
	return &territory.Rejection{Code: protocol.ErrInvalidTarget, Msg: fmt.Sprintf(format, args...)}
}

func (w *World) handleAct(nowTick uint64, p *player, act protocol.ActMsg) {
	details := map[string]any{}
	err := w.applyAct(nowTick, p, act, details)

	res := protocol.ActResultMsg{
		Type:            protocol.TypeActResult,
		ProtocolVersion: protocol.Version,
		ActID:           act.ID,
		OK:              err == nil,
	}
	if err != nil {
		r := territory.AsRejection(err)
		res.Code, res.Message = r.Code, r.Msg
		if r.Code == protocol.ErrInternal {
			w.log.Printf("act %s from %s failed: %v", act.Action, p.ID, err)
		}
	} else if act.Action != protocol.ActMove {
		pos := p.Pos
		if act.Pos != nil {
			pos = territory.BlockPosFromArray(*act.Pos)
		}
		if len(details) == 0 {
			details = nil
		}
		w.auditEvent(nowTick, p.ID.String(), act.Action, pos, "", details)
	}

	if b, err := json.Marshal(res); err == nil {
		sendLatest(p.Out, b)
	}
}

func (w *World) applyAct(nowTick uint64, p *player, act protocol.ActMsg, details map[string]any) error {
	if protocol.IsAdminAct(act.Action) && !p.Admin {
		return &territory.Rejection{Code: protocol.ErrNoPermission, Msg: "This command requires an operator"}
	}
	actor := territory.Actor{Player: p.ID, Admin: p.Admin}
	svc := w.svc

	switch act.Action {
	case protocol.ActMove:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		p.Pos = pos
		return nil

	case protocol.ActCreateFaction:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		color := territory.RandomColor
		if act.Color != nil {
			color = *act.Color
		}
		id, err := svc.CreateFaction(p.ID, pos, act.Name, color)
		if err != nil {
			return err
		}
		details["faction"] = id.String()
		details["name"] = act.Name
		return nil

	case protocol.ActInvite:
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		target, err := w.requirePlayer(act.Target)
		if err != nil {
			return err
		}
		details["target"] = target.String()
		return svc.Invite(actor, fid, target)

	case protocol.ActAcceptInvite:
		return svc.AcceptInvite(p.ID)

	case protocol.ActRemovePlayer:
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		target := p.ID
		if act.Target != "" {
			if target, err = w.requirePlayer(act.Target); err != nil {
				return err
			}
		}
		details["target"] = target.String()
		return svc.RemovePlayer(actor, fid, target)

	case protocol.ActPromote, protocol.ActDemote:
		target, err := w.requirePlayer(act.Target)
		if err != nil {
			return err
		}
		details["target"] = target.String()
		if act.Action == protocol.ActPromote {
			return svc.Promote(p.ID, target)
		}
		return svc.Demote(p.ID, target)

	case protocol.ActTransferLeader:
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		target, err := w.requirePlayer(act.Target)
		if err != nil {
			return err
		}
		details["target"] = target.String()
		return svc.TransferLeadership(actor, fid, target)

	case protocol.ActDisband:
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		return svc.Disband(p.ID, fid)

	case protocol.ActSetColor:
		if act.Color == nil {
			return badRequest("missing color")
		}
		details["color"] = *act.Color
		return svc.SetColor(p.ID, *act.Color)

	case protocol.ActMoveCitadel:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		return svc.MoveCitadel(p.ID, pos)

	case protocol.ActPlaceClaim:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		return svc.PlaceClaim(p.ID, pos)

	case protocol.ActPlaceCamp:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		return svc.PlaceSiegeCamp(p.ID, pos)

	case protocol.ActRemoveClaim:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		return svc.RemoveClaim(actor, pos)

	case protocol.ActPlaceFlag:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		return svc.PlaceFlag(p.ID, pos)

	case protocol.ActStartSiege:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		dir, ok := territory.ParseDirection(act.Dir)
		if !ok {
			return badRequest("bad direction %q", act.Dir)
		}
		details["dir"] = dir.String()
		return svc.StartSiege(p.ID, pos, dir)

	case protocol.ActJoinSiege:
		pos, err := requirePos(act)
		if err != nil {
			return err
		}
		r, err := requireRegion(act)
		if err != nil {
			return err
		}
		details["region"] = r.Array()
		return svc.JoinSiege(p.ID, pos, r)

	case protocol.ActReportKill:
		return w.reportKill(nowTick, p, act, details)

	case protocol.ActOpClaim:
		r, err := requireRegion(act)
		if err != nil {
			return err
		}
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		if fid == uuid.Nil {
			return badRequest("missing faction_id")
		}
		details["region"] = r.Array()
		details["faction"] = fid.String()
		return svc.OpClaim(r, fid)

	case protocol.ActEndSiege:
		r, err := requireRegion(act)
		if err != nil {
			return err
		}
		out, ok := svc.EndSiege(r)
		if !ok {
			return invalidTarget("There is no siege in %s", r)
		}
		details["region"] = r.Array()
		w.handleOutcomes(nowTick, []territory.SiegeOutcome{out})
		return nil

	case protocol.ActDefeatFaction:
		fid, err := w.resolveFaction(act.FactionID)
		if err != nil {
			return err
		}
		if fid == uuid.Nil {
			return badRequest("missing faction_id")
		}
		details["faction"] = fid.String()
		return svc.FactionDefeated(fid)

	case protocol.ActClearNotoriety, protocol.ActClearLegacy:
		if w.snapshotSink != nil && !w.emitSnapshot(nowTick, snapshot.PreResetReason(act.Action)) {
			return &territory.Rejection{Code: protocol.ErrWorldBusy, Msg: "snapshot sink busy; try again"}
		}
		if act.Action == protocol.ActClearNotoriety {
			svc.ClearNotoriety()
		} else {
			svc.ClearLegacy()
		}
		return nil

	case protocol.ActResetFlagCooldowns:
		svc.ResetFlagCooldowns()
		return nil
	}
	return badRequest("unknown action %q", act.Action)
}

func (w *World) reportKill(nowTick uint64, p *player, act protocol.ActMsg, details map[string]any) error {
	victim := p.ID
	if act.Victim != "" {
		v, err := w.requirePlayer(act.Victim)
		if err != nil {
			return err
		}
		victim = v
	}
	if !p.Admin && victim != p.ID {
		return &territory.Rejection{Code: protocol.ErrNoPermission, Msg: "Only the victim can report a kill"}
	}
	killer := uuid.Nil
	if act.Killer != "" {
		k, err := w.requirePlayer(act.Killer)
		if err != nil {
			return err
		}
		killer = k
	}
	details["killer"] = killer.String()
	details["victim"] = victim.String()
	w.handleOutcomes(nowTick, w.svc.OnPlayerKilled(killer, victim))
	return nil
}

func (w *World) requirePlayer(ref string) (uuid.UUID, error) {
	if strings.TrimSpace(ref) == "" {
		return uuid.Nil, badRequest("missing target")
	}
	id, ok := w.resolvePlayer(ref)
	if !ok {
		return uuid.Nil, invalidTarget("Unknown player %s", ref)
	}
	return id, nil
}

// resolveFaction accepts a faction id, a faction name or one of the neutral
// zone keys. An empty ref resolves to uuid.Nil, which the service reads as
// "the actor's own faction".
func (w *World) resolveFaction(ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, nil
	}
	switch strings.ToLower(ref) {
	case "safezone":
		return territory.SafeZoneID, nil
	case "warzone":
		return territory.WarZoneID, nil
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	if v, ok := w.svc.FactionByName(ref); ok {
		return v.ID, nil
	}
	return uuid.Nil, invalidTarget("Unknown faction %s", ref)
}

func requirePos(act protocol.ActMsg) (territory.BlockPos, error) {
	if act.Pos == nil {
		return territory.BlockPos{}, badRequest("missing pos")
	}
	return territory.BlockPosFromArray(*act.Pos), nil
}

func requireRegion(act protocol.ActMsg) (territory.RegionPos, error) {
	if act.Region == nil {
		return territory.RegionPos{}, badRequest("missing region")
	}
	return territory.RegionPosFromArray(*act.Region), nil
}
