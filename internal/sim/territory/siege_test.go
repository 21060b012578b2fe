package territory

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

func TestStartSiege_Validation(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)

	wantCode(t, fx.svc.StartSiege(sc.redMember, campPos, East), protocol.ErrNoPermission)
	wantCode(t, fx.svc.StartSiege(sc.redLeader, campPos, West), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.StartSiege(sc.redLeader, campPos, North), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.StartSiege(sc.redLeader, redCitadel, East), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.StartSiege(sc.blueLeader, campPos, East), protocol.ErrInvalidTarget)

	mustOK(t, fx.svc.StartSiege(sc.redLeader, campPos, East))
	wantCode(t, fx.svc.StartSiege(sc.redLeader, campPos, East), protocol.ErrConflict)

	sg, ok := fx.svc.SiegeAt(targetRgn)
	if !ok || sg.Defending != targetPos || sg.SuccessThreshold() != 5 || !sg.Involves(campRgn) {
		t.Fatalf("siege=%+v", sg)
	}
	if camp := fx.grid.campAt(t, campPos); camp.target == nil || *camp.target != targetPos {
		t.Fatalf("camp not aimed at the target")
	}
	if !fx.svc.IsPlayerDefending(sc.blueMember) || fx.svc.IsPlayerDefending(sc.redMember) {
		t.Fatalf("defending flags wrong")
	}
	if len(fx.notes.nearby) == 0 {
		t.Fatalf("no siege info pushed to nearby players")
	}
}

func TestStartSiege_ConqueredTarget(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	fx.svc.conquered.Protect(targetRgn, sc.blue, time.Hour)
	wantCode(t, fx.svc.StartSiege(sc.redLeader, campPos, East), protocol.ErrBlocked)
}

func TestStartSiege_VerticalDistance(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.VerticalSiegeDist = 8 })
	sc := fx.setupFactions(t)
	high := BlockPos{X: 24, Y: 64, Z: 24}
	low := BlockPos{X: 40, Y: 10, Z: 24}
	mustOK(t, fx.svc.PlaceClaim(sc.blueLeader, low))
	fx.svc.ResetFlagCooldowns()
	mustOK(t, fx.svc.PlaceSiegeCamp(sc.redLeader, high))

	if adj := fx.svc.GetAdjacentClaims(sc.red, high); len(adj) != 0 {
		t.Fatalf("claim 54 blocks below must not be adjacent: %+v", adj)
	}
	wantCode(t, fx.svc.StartSiege(sc.redLeader, high, East), protocol.ErrInvalidTarget)
}

func TestStartSiege_Cooldown(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.SiegeCooldown = time.Hour })
	sc := fx.startSiege(t)
	if _, ok := fx.svc.EndSiege(targetRgn); !ok {
		t.Fatalf("end siege")
	}
	wantCode(t, fx.svc.StartSiege(sc.redLeader, campPos, East), protocol.ErrCooldown)
	fx.now = fx.now.Add(2 * time.Hour)
	mustOK(t, fx.svc.StartSiege(sc.redLeader, campPos, East))
}

func TestSiege_DefenderFlagRaisesDifficulty(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	mustOK(t, fx.svc.PlaceFlag(sc.blueLeader, targetPos))
	if sg, _ := fx.svc.SiegeAt(targetRgn); sg.SuccessThreshold() != 6 {
		t.Fatalf("threshold=%d", sg.SuccessThreshold())
	}
}

func TestSiege_NeighbourStrengths(t *testing.T) {
	fx := newFixture(t, nil)
	fx.grid.camp.attack = 2
	fx.grid.citadel.suppt = 3
	fx.startSiege(t)
	// West neighbour is the attacking camp, east is the defending citadel.
	if sg, _ := fx.svc.SiegeAt(targetRgn); sg.ExtraDifficulty != 2-3 {
		t.Fatalf("extra=%d", sg.ExtraDifficulty)
	}
}

func TestSiege_CompletionUsesCurrentNeighbours(t *testing.T) {
	fx := newFixture(t, nil)
	fx.grid.basic.suppt = 2
	sc := fx.setupFactions(t)
	support := BlockPos{X: 40, Y: 64, Z: 24}
	mustOK(t, fx.svc.PlaceClaim(sc.blueLeader, support))
	mustOK(t, fx.svc.StartSiege(sc.redLeader, campPos, East))
	if sg, _ := fx.svc.SiegeAt(targetRgn); sg.SuccessThreshold() != 3 {
		t.Fatalf("threshold with support=%d", sg.SuccessThreshold())
	}

	mustOK(t, fx.svc.RemoveClaim(Actor{Player: sc.blueLeader}, support))
	for i := 1; i <= 3; i++ {
		if out := fx.svc.OnPlayerKilled(sc.redLeader, sc.blueLeader); len(out) != 0 {
			t.Fatalf("kill %d resolved the siege against a stale threshold: %+v", i, out)
		}
	}
	sg, ok := fx.svc.SiegeAt(targetRgn)
	if !ok || sg.Progress != 3 || sg.SuccessThreshold() != 5 {
		t.Fatalf("siege=%+v", sg)
	}
	if out := fx.svc.CheckForCompleteSieges(); len(out) != 0 {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestSiege_SucceedsAtThreshold(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.DifficultyPerDefenderFlag = -1 })
	sc := fx.setupFactions(t)
	mustOK(t, fx.svc.PlaceFlag(sc.blueLeader, targetPos))
	mustOK(t, fx.svc.StartSiege(sc.redLeader, campPos, East))

	sg, _ := fx.svc.SiegeAt(targetRgn)
	if sg.SuccessThreshold() != 4 {
		t.Fatalf("threshold=%d", sg.SuccessThreshold())
	}
	for day := 1; day <= 3; day++ {
		if out := fx.svc.AdvanceAllByOneDay(); len(out) != 0 {
			t.Fatalf("day %d: premature outcome %+v", day, out)
		}
		if sg, _ := fx.svc.SiegeAt(targetRgn); sg.Progress != day {
			t.Fatalf("day %d: progress=%d", day, sg.Progress)
		}
	}
	out := fx.svc.AdvanceAllByOneDay()
	if len(out) != 1 || !out[0].Success() || out[0].Progress != 4 || out[0].CitadelLost {
		t.Fatalf("outcome=%+v", out)
	}
	if out[0].AttackerName != "Red" || out[0].DefenderName != "Blue" {
		t.Fatalf("names=%s/%s", out[0].AttackerName, out[0].DefenderName)
	}

	if fx.svc.OwnerOf(targetRgn) != sc.red {
		t.Fatalf("target region should be captured")
	}
	if st, ok := fx.grid.StructureAt(targetPos); !ok || st.Faction() != sc.red {
		t.Fatalf("captured block not handed over")
	}
	conq := fx.svc.Conquered()
	if len(conq) != 2 {
		t.Fatalf("conquered=%+v", conq)
	}
	for _, c := range conq {
		if c.Faction != sc.red || c.Remaining != time.Hour {
			t.Fatalf("window=%+v", c)
		}
	}
	red, _ := fx.svc.Faction(sc.red)
	if red.Notoriety != 10 {
		t.Fatalf("notoriety=%d", red.Notoriety)
	}
	blue, _ := fx.svc.Faction(sc.blue)
	for _, pos := range blue.Claims {
		if pos == targetPos {
			t.Fatalf("defender kept the lost claim")
		}
	}
	camp := fx.grid.campAt(t, campPos)
	if camp.succeeded != 1 || camp.failed != 0 {
		t.Fatalf("camp callbacks: %+v", camp)
	}
	if _, ok := fx.svc.ResolveCompletedSiege(targetRgn); ok {
		t.Fatalf("resolving twice must be a no-op")
	}
}

func TestSiege_NoCaptureRemovesBlock(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.SiegeCapture = false })
	fx.startSiege(t)
	var out []SiegeOutcome
	for i := 0; i < 5 && len(out) == 0; i++ {
		out = fx.svc.AdvanceAllByOneDay()
	}
	if len(out) != 1 || !out[0].Success() {
		t.Fatalf("outcome=%+v", out)
	}
	if fx.svc.OwnerOf(targetRgn) != uuid.Nil {
		t.Fatalf("region should be left unclaimed")
	}
	if _, ok := fx.grid.StructureAt(targetPos); ok {
		t.Fatalf("lost claim block left behind")
	}
}

func TestSiege_CitadelLost(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	// A second camp south of Blue's citadel region.
	camp2 := BlockPos{X: 56, Y: 64, Z: 24}
	fx.svc.ResetFlagCooldowns()
	mustOK(t, fx.svc.PlaceSiegeCamp(sc.redLeader, camp2))
	mustOK(t, fx.svc.StartSiege(sc.redLeader, camp2, North))

	var out []SiegeOutcome
	for i := 0; i < 20 && len(out) == 0; i++ {
		out = fx.svc.AdvanceAllByOneDay()
	}
	if len(out) != 1 || !out[0].CitadelLost || out[0].Defending != blueCitadel {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestSiege_KillsNearCampDefeatAttackers(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)

	for i := 1; i <= 4; i++ {
		if out := fx.svc.OnPlayerKilled(sc.blueMember, sc.redMember); len(out) != 0 {
			t.Fatalf("kill %d ended the siege early", i)
		}
		if sg, _ := fx.svc.SiegeAt(targetRgn); sg.DefenceProgress() != i {
			t.Fatalf("kill %d: defence progress=%d", i, sg.DefenceProgress())
		}
	}
	out := fx.svc.OnPlayerKilled(sc.blueMember, sc.redMember)
	if len(out) != 1 || out[0].State != SiegeFailed {
		t.Fatalf("outcome=%+v", out)
	}

	blue, _ := fx.svc.Faction(sc.blue)
	if blue.Notoriety != 3+10 {
		t.Fatalf("notoriety=%d", blue.Notoriety)
	}
	if fx.svc.OwnerOf(targetRgn) != sc.blue {
		t.Fatalf("defender keeps the region")
	}
	for _, c := range fx.svc.Conquered() {
		if c.Faction != sc.blue {
			t.Fatalf("window=%+v", c)
		}
	}
	if camp := fx.grid.campAt(t, campPos); camp.failed != 1 {
		t.Fatalf("camp callbacks: %+v", camp)
	}
}

func TestSiege_KillsFarAwayDoNotCount(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	fx.players.pos[sc.blueMember] = BlockPos{X: 400, Y: 64, Z: 8}

	fx.svc.OnPlayerKilled(sc.blueMember, sc.redMember)
	if sg, _ := fx.svc.SiegeAt(targetRgn); sg.Progress != 0 {
		t.Fatalf("progress=%d", sg.Progress)
	}
	if blue, _ := fx.svc.Faction(sc.blue); blue.Notoriety != 1 {
		t.Fatalf("kill notoriety still applies: %d", blue.Notoriety)
	}

	// The attacker killing a defender next to the camp pushes the siege forward.
	fx.svc.OnPlayerKilled(sc.redLeader, sc.blueLeader)
	if sg, _ := fx.svc.SiegeAt(targetRgn); sg.Progress != 1 {
		t.Fatalf("progress=%d", sg.Progress)
	}
}

func TestSiege_AbandonedCampBlocksSuccessOnly(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	camp := fx.grid.campAt(t, campPos)
	camp.abandon = 10

	for i := 0; i < 5; i++ {
		if out := fx.svc.AdvanceAllByOneDay(); len(out) != 0 {
			t.Fatalf("abandoned siege completed: %+v", out)
		}
	}
	if !fx.svc.SiegeInProgress(targetRgn) {
		t.Fatalf("siege should still be running")
	}
	camp.abandon = 0
	if out := fx.svc.CheckForCompleteSieges(); len(out) != 1 || !out[0].Success() {
		t.Fatalf("outcome=%+v", out)
	}

	fx2 := newFixture(t, nil)
	sc = fx2.startSiege(t)
	fx2.grid.campAt(t, campPos).abandon = 10
	var out []SiegeOutcome
	for i := 0; i < 5; i++ {
		out = fx2.svc.OnPlayerKilled(sc.blueMember, sc.redMember)
	}
	if len(out) != 1 || out[0].State != SiegeFailed {
		t.Fatalf("defeat must not wait for the camp: %+v", out)
	}
}

func TestSiege_SwingMonotonicInLogins(t *testing.T) {
	oneDay := func(defLogged, attLogged bool) int {
		fx := newFixture(t, func(c *Config) {
			c.SwingNoDefenderLogins = 2
			c.SwingNoAttackerLogins = 1
		})
		sc := fx.startSiege(t)
		if defLogged {
			fx.svc.PlayerLoggedIn(sc.blueMember)
		}
		if attLogged {
			fx.svc.PlayerLoggedIn(sc.redMember)
		}
		fx.svc.AdvanceAllByOneDay()
		sg, _ := fx.svc.SiegeAt(targetRgn)
		return sg.Progress
	}
	for _, att := range []bool{false, true} {
		if oneDay(false, att) < oneDay(true, att) {
			t.Fatalf("absent defenders must not slow the attack (attackers logged=%v)", att)
		}
	}
	for _, def := range []bool{false, true} {
		if oneDay(def, true) < oneDay(def, false) {
			t.Fatalf("present attackers must not slow the attack (defenders logged=%v)", def)
		}
	}
	if got := oneDay(false, false); got != 1+2-1 {
		t.Fatalf("swing=%d", got)
	}
}

func TestEndSiege(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)

	o, ok := fx.svc.EndSiege(targetRgn)
	if !ok || o.State != SiegeCancelled || o.Attacker != sc.red {
		t.Fatalf("outcome=%+v ok=%v", o, ok)
	}
	if fx.svc.SiegeInProgress(targetRgn) || len(fx.svc.Conquered()) != 0 {
		t.Fatalf("cancel must not leave state behind")
	}
	camp := fx.grid.campAt(t, campPos)
	if camp.target != nil || camp.succeeded+camp.failed != 0 {
		t.Fatalf("camp=%+v", camp)
	}
	if fx.svc.OwnerOf(targetRgn) != sc.blue {
		t.Fatalf("ownership changed on cancel")
	}
	if _, ok := fx.svc.EndSiege(targetRgn); ok {
		t.Fatalf("second end should find nothing")
	}
}

func TestJoinSiege(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	camp2 := BlockPos{X: 40, Y: 64, Z: 24}
	mustOK(t, fx.svc.PlaceSiegeCamp(sc.redLeader, camp2))

	wantCode(t, fx.svc.JoinSiege(sc.redMember, camp2, targetRgn), protocol.ErrNoPermission)
	wantCode(t, fx.svc.JoinSiege(sc.redLeader, camp2, RegionPos{X: 7}), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.JoinSiege(sc.redLeader, redCitadel, targetRgn), protocol.ErrInvalidTarget)
	mustOK(t, fx.svc.JoinSiege(sc.redLeader, camp2, targetRgn))
	wantCode(t, fx.svc.JoinSiege(sc.redLeader, camp2, targetRgn), protocol.ErrConflict)

	sg, _ := fx.svc.SiegeAt(targetRgn)
	if len(sg.Camps) != 2 {
		t.Fatalf("camps=%v", sg.Camps)
	}
	if c := fx.grid.campAt(t, camp2); c.target == nil || *c.target != targetPos {
		t.Fatalf("joined camp not aimed at the target")
	}
	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.redLeader}, camp2), protocol.ErrBlocked)
}
