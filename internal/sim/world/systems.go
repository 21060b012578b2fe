package world

import (
	"github.com/google/uuid"

	"siegecraft.ai/internal/sim/territory"
)

func (w *World) auditEvent(tick uint64, actor string, action string, pos territory.BlockPos, reason string, details map[string]any) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:    tick,
		Actor:   actor,
		Action:  action,
		Pos:     pos.Array(),
		Reason:  reason,
		Details: details,
	})
}

// systemCamps runs the abandon timers. A camp counts as manned while an online
// member of its faction stands within the kill radius of it.
func (w *World) systemCamps(nowTick uint64) {
	camps := w.grid.Camps()
	if len(camps) == 0 {
		return
	}
	radius := w.svc.Config().KillRadius
	factionOf := map[uuid.UUID]uuid.UUID{}
	for _, p := range w.onlinePlayers() {
		if v, ok := w.svc.FactionOf(p.ID); ok {
			factionOf[p.ID] = v.ID
		}
	}

	var abandoned []territory.RegionPos
	for _, c := range camps {
		target, sieging := c.Target()
		present := false
		if sieging {
			campRegion := c.Pos().Region()
			for id, fid := range factionOf {
				if fid != c.Faction() {
					continue
				}
				if w.players[id].Pos.Region().Within(campRegion, radius) {
					present = true
					break
				}
			}
		}
		if c.Observe(present, w.cfg.Structures.AbandonTicks) {
			abandoned = append(abandoned, target.Region())
		}
	}

	for _, r := range abandoned {
		out, ok := w.svc.EndSiege(r)
		if !ok {
			continue
		}
		w.auditEvent(nowTick, "WORLD", "SIEGE_ABANDONED", out.Defending, "camp abandoned", map[string]any{
			"attacker": out.Attacker.String(),
			"defender": out.Defender.String(),
		})
		w.handleOutcomes(nowTick, []territory.SiegeOutcome{out})
	}
	w.handleOutcomes(nowTick, w.svc.CheckForCompleteSieges())
}

func (w *World) systemDays(nowTick uint64) {
	if nowTick == 0 {
		return
	}
	if w.cfg.YieldTicks > 0 && nowTick%uint64(w.cfg.YieldTicks) == 0 {
		w.svc.AdvanceYieldDay()
	}
	if nowTick%uint64(w.cfg.DayTicks) != 0 {
		return
	}

	outs := w.svc.AdvanceAllByOneDay()
	w.handleOutcomes(nowTick, outs)
	w.svc.EndDay()
	// Whoever is still connected counts as logged in for the new day.
	for _, p := range w.onlinePlayers() {
		w.svc.PlayerLoggedIn(p.ID)
	}

	day := w.svc.Day()
	w.log.Printf("day %d begins at tick %d: sieges=%d resolved=%d", day, nowTick, len(w.svc.Sieges()), len(outs))
	if w.dayLogger == nil {
		return
	}
	digest, err := w.svc.Digest()
	if err != nil {
		w.log.Printf("day digest: %v", err)
	}
	_ = w.dayLogger.WriteDay(DaySummary{
		Tick:     nowTick,
		Day:      day,
		Factions: len(w.svc.Leaderboard()),
		Sieges:   len(w.svc.Sieges()),
		Resolved: len(outs),
		Digest:   digest,
	})
}

// systemImmunity decays conquered windows by the wall-clock time measured
// since the previous pass.
func (w *World) systemImmunity(nowTick uint64) {
	every := w.cfg.ImmunityDecayEvery
	if every <= 0 {
		return
	}
	now := w.now()
	elapsed := now.Sub(w.lastDecay)
	if elapsed < every {
		return
	}
	w.lastDecay = now
	for _, r := range w.svc.DecayImmunity(elapsed) {
		w.auditEvent(nowTick, "WORLD", "IMMUNITY_EXPIRED", r.Origin(), "", map[string]any{"region": r.Array()})
	}
}

func (w *World) handleOutcomes(nowTick uint64, outs []territory.SiegeOutcome) {
	for _, o := range outs {
		w.resolved++
		res := SiegeResult{
			Tick:         nowTick,
			Day:          o.Day,
			Region:       o.Region.Array(),
			Defending:    o.Defending.Array(),
			Attacker:     o.Attacker,
			Defender:     o.Defender,
			AttackerName: o.AttackerName,
			DefenderName: o.DefenderName,
			State:        o.State.String(),
			Progress:     o.Progress,
			Threshold:    o.Threshold,
			CitadelLost:  o.CitadelLost,
		}
		if w.siegeRecorder != nil {
			w.siegeRecorder.RecordSiegeResult(res)
		}
		w.auditEvent(nowTick, "WORLD", "SIEGE_"+res.State, o.Defending, "", map[string]any{
			"attacker":  o.Attacker.String(),
			"defender":  o.Defender.String(),
			"progress":  o.Progress,
			"threshold": o.Threshold,
		})
		if o.CitadelLost {
			if err := w.svc.FactionDefeated(o.Defender); err != nil {
				w.log.Printf("defeat %s after citadel loss: %v", o.Defender, err)
			}
		}
	}
}
