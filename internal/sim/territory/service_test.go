package territory

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"siegecraft.ai/internal/protocol"
)

func TestCreateFaction_Validation(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	eve := fx.player("eve", BlockPos{X: 200, Y: 64, Z: 200})

	cases := []struct {
		name   string
		player uuid.UUID
		pos    BlockPos
		fname  string
		color  int
		code   string
	}{
		{"empty name", eve, BlockPos{X: 200, Y: 64, Z: 200}, "", 0, protocol.ErrBadRequest},
		{"space in name", eve, BlockPos{X: 200, Y: 64, Z: 200}, "Bad Name", 0, protocol.ErrBadRequest},
		{"too long", eve, BlockPos{X: 200, Y: 64, Z: 200}, strings.Repeat("a", 33), 0, protocol.ErrBadRequest},
		{"already member", sc.redMember, BlockPos{X: 200, Y: 64, Z: 200}, "Green", 0, protocol.ErrConflict},
		{"duplicate name", eve, BlockPos{X: 200, Y: 64, Z: 200}, "Red", 0, protocol.ErrConflict},
		{"neutral zone key", eve, BlockPos{X: 200, Y: 64, Z: 200}, "safezone", 0, protocol.ErrConflict},
		{"claimed region", eve, campPos, "Green", 0, protocol.ErrConflict},
		{"bad color", eve, BlockPos{X: 200, Y: 64, Z: 200}, "Green", 0x1000000, protocol.ErrBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := fx.svc.CreateFaction(c.player, c.pos, c.fname, c.color)
			wantCode(t, err, c.code)
		})
	}
}

func TestCreateFaction_RandomColorAndRanking(t *testing.T) {
	fx := newFixture(t, nil)
	eve := fx.player("eve", BlockPos{})
	id, err := fx.svc.CreateFaction(eve, BlockPos{X: 200, Y: 64, Z: 200}, "Green", RandomColor)
	mustOK(t, err)
	if id != FactionID("Green") {
		t.Fatalf("id=%s", id)
	}
	v, ok := fx.svc.Faction(id)
	if !ok {
		t.Fatalf("faction missing")
	}
	if v.Color == RandomColor || v.Color < 0 || v.Color > 0xffffff {
		t.Fatalf("random color not resolved: %#x", v.Color)
	}
	if v.Roles[eve] != RoleLeader || v.Citadel != (BlockPos{X: 200, Y: 64, Z: 200}) {
		t.Fatalf("view=%+v", v)
	}
	if _, ok := fx.ranking.regs[id]; !ok {
		t.Fatalf("new faction not ranked")
	}
	if fx.svc.OwnerOf(RegionPos{X: 12, Z: 12}) != id {
		t.Fatalf("citadel region not owned")
	}
}

func TestMembership_Permissions(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	eve := fx.player("eve", BlockPos{})

	wantCode(t, fx.svc.Invite(Actor{Player: sc.redMember}, uuid.Nil, eve), protocol.ErrNoPermission)
	wantCode(t, fx.svc.Invite(Actor{Player: sc.redLeader}, uuid.Nil, sc.blueMember), protocol.ErrConflict)
	wantCode(t, fx.svc.AcceptInvite(eve), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.RemovePlayer(Actor{Player: sc.redMember}, uuid.Nil, sc.redLeader), protocol.ErrNoPermission)
	wantCode(t, fx.svc.Promote(sc.redMember, sc.redLeader), protocol.ErrNoPermission)

	mustOK(t, fx.svc.Promote(sc.redLeader, sc.redMember))
	wantCode(t, fx.svc.Promote(sc.redLeader, sc.redMember), protocol.ErrInvalidTarget)
	mustOK(t, fx.svc.Invite(Actor{Player: sc.redMember}, uuid.Nil, eve))
	mustOK(t, fx.svc.AcceptInvite(eve))
	mustOK(t, fx.svc.RemovePlayer(Actor{Player: sc.redMember}, uuid.Nil, eve))
	if _, ok := fx.svc.FactionOf(eve); ok {
		t.Fatalf("kicked player still in a faction")
	}
	mustOK(t, fx.svc.Demote(sc.redLeader, sc.redMember))
	v, _ := fx.svc.Faction(sc.red)
	if v.Roles[sc.redMember] != RoleMember {
		t.Fatalf("role=%s", v.Roles[sc.redMember])
	}

	// Admins act without a role, but neutral zones take no members.
	wantCode(t, fx.svc.Invite(Actor{Admin: true}, SafeZoneID, eve), protocol.ErrNoPermission)
	wantCode(t, fx.svc.Invite(Actor{Admin: true}, WarZoneID, eve), protocol.ErrNoPermission)
	wantCode(t, fx.svc.AcceptInvite(eve), protocol.ErrInvalidTarget)
	mustOK(t, fx.svc.Invite(Actor{Admin: true}, sc.blue, eve))
	mustOK(t, fx.svc.AcceptInvite(eve))
	if v, _ := fx.svc.FactionOf(eve); v.ID != sc.blue {
		t.Fatalf("eve joined %s", v.Name)
	}
}

func TestTransferLeadership(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)

	wantCode(t, fx.svc.TransferLeadership(Actor{Player: sc.redLeader}, uuid.Nil, sc.blueMember), protocol.ErrInvalidTarget)
	mustOK(t, fx.svc.TransferLeadership(Actor{Player: sc.redLeader}, uuid.Nil, sc.redMember))
	v, _ := fx.svc.Faction(sc.red)
	if v.Roles[sc.redMember] != RoleLeader || v.Roles[sc.redLeader] != RoleOfficer {
		t.Fatalf("roles=%v", v.Roles)
	}
}

func TestLeaderLeaving_PassesOnThenDisbands(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)

	mustOK(t, fx.svc.RemovePlayer(Actor{Player: sc.redLeader}, uuid.Nil, sc.redLeader))
	v, ok := fx.svc.Faction(sc.red)
	if !ok || v.Roles[sc.redMember] != RoleLeader {
		t.Fatalf("member should inherit leadership: %+v", v.Roles)
	}

	mustOK(t, fx.svc.RemovePlayer(Actor{Player: sc.redMember}, uuid.Nil, sc.redMember))
	if _, ok := fx.svc.Faction(sc.red); ok {
		t.Fatalf("empty faction should be disbanded")
	}
	if fx.svc.OwnerOf(RegionPos{}) != uuid.Nil || fx.svc.OwnerOf(campRgn) != uuid.Nil {
		t.Fatalf("regions of a disbanded faction must be released")
	}
	if _, ok := fx.grid.StructureAt(redCitadel); ok {
		t.Fatalf("citadel block left behind")
	}
	if _, ok := fx.ranking.regs[sc.red]; ok {
		t.Fatalf("disbanded faction still ranked")
	}
}

func TestDisband_CancelsSieges(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	outpost := BlockPos{X: 72, Y: 64, Z: 8}
	mustOK(t, fx.svc.PlaceClaim(sc.blueLeader, outpost))
	if _, ok := fx.ranking.regs[sc.blue]; !ok {
		t.Fatalf("blue not ranked before disband")
	}

	wantCode(t, fx.svc.Disband(sc.blueMember, uuid.Nil), protocol.ErrNoPermission)
	mustOK(t, fx.svc.Disband(sc.blueLeader, uuid.Nil))

	if fx.svc.SiegeInProgress(targetRgn) {
		t.Fatalf("siege survived its defender")
	}
	for _, r := range []RegionPos{targetRgn, blueCitadel.Region(), outpost.Region()} {
		if owner := fx.svc.OwnerOf(r); owner != uuid.Nil {
			t.Fatalf("region %s still owned by %s", r, owner)
		}
	}
	if _, ok := fx.svc.Faction(sc.blue); ok {
		t.Fatalf("disbanded faction still registered")
	}
	if _, ok := fx.svc.FactionOf(sc.blueMember); ok {
		t.Fatalf("member still in a faction")
	}
	if _, ok := fx.ranking.regs[sc.blue]; ok {
		t.Fatalf("disbanded faction still ranked")
	}
	if camp := fx.grid.campAt(t, campPos); camp.target != nil || camp.succeeded+camp.failed != 0 {
		t.Fatalf("camp not reset cleanly: %+v", camp)
	}
	if fx.svc.OwnerOf(campRgn) != sc.red {
		t.Fatalf("attacker keeps its camp")
	}
}

func TestFactionDefeated_RejectsNeutral(t *testing.T) {
	fx := newFixture(t, nil)
	wantCode(t, fx.svc.FactionDefeated(SafeZoneID), protocol.ErrNoPermission)
	wantCode(t, fx.svc.FactionDefeated(uuid.New()), protocol.ErrInvalidTarget)
}

func TestRemoveClaim(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)

	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.redLeader}, redCitadel), protocol.ErrNoPermission)
	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.blueLeader}, targetPos), protocol.ErrBlocked)
	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.redLeader}, campPos), protocol.ErrBlocked)
	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.redLeader}, BlockPos{X: 300}), protocol.ErrInvalidTarget)

	if _, ok := fx.svc.EndSiege(targetRgn); !ok {
		t.Fatalf("end siege")
	}
	wantCode(t, fx.svc.RemoveClaim(Actor{Player: sc.redMember}, campPos), protocol.ErrNoPermission)
	mustOK(t, fx.svc.RemoveClaim(Actor{Admin: true}, campPos))
	if fx.svc.OwnerOf(campRgn) != uuid.Nil {
		t.Fatalf("camp region not released")
	}
	if _, ok := fx.grid.StructureAt(campPos); ok {
		t.Fatalf("camp block left behind")
	}
}

func TestOpClaim_NeutralZone(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	spawn := RegionPos{X: 10}

	mustOK(t, fx.svc.OpClaim(spawn, SafeZoneID))
	wantCode(t, fx.svc.OpClaim(spawn, WarZoneID), protocol.ErrConflict)
	wantCode(t, fx.svc.OpClaim(RegionPos{X: 11}, uuid.New()), protocol.ErrInvalidTarget)

	if fx.svc.OwnerOf(spawn) != SafeZoneID {
		t.Fatalf("owner=%s", fx.svc.OwnerOf(spawn))
	}
	if st, ok := fx.grid.StructureAt(spawn.Origin()); !ok || st.DefenceStrength() != 1000 {
		t.Fatalf("admin claim block missing")
	}
	wantCode(t, fx.svc.PlaceClaim(sc.redLeader, spawn.Origin()), protocol.ErrConflict)

	board := fx.svc.Leaderboard()
	if len(board) != 2 {
		t.Fatalf("neutral zones must stay off the leaderboard: %+v", board)
	}
	if _, ok := fx.ranking.regs[SafeZoneID]; ok {
		t.Fatalf("neutral zone registered for ranking")
	}
}

func TestPlaceClaim_ConqueredWindow(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	r := RegionPos{X: 5}
	fx.svc.conquered.Protect(r, sc.blue, 3600e9)

	wantCode(t, fx.svc.PlaceClaim(sc.redLeader, r.Origin()), protocol.ErrBlocked)
	mustOK(t, fx.svc.PlaceClaim(sc.blueLeader, r.Origin()))
}

func TestMoveCitadel(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	next := BlockPos{X: 9, Y: 64, Z: 9}

	wantCode(t, fx.svc.MoveCitadel(sc.redMember, next), protocol.ErrNoPermission)
	wantCode(t, fx.svc.MoveCitadel(sc.redLeader, BlockPos{X: 300, Y: 64}), protocol.ErrInvalidTarget)
	wantCode(t, fx.svc.MoveCitadel(sc.redLeader, redCitadel), protocol.ErrBadRequest)
	mustOK(t, fx.svc.MoveCitadel(sc.redLeader, next))

	v, _ := fx.svc.Faction(sc.red)
	if v.Citadel != next || v.CitadelMoveCooldown != 3 {
		t.Fatalf("citadel=%s cooldown=%d", v.Citadel, v.CitadelMoveCooldown)
	}
	if st, _ := fx.grid.StructureAt(redCitadel); st.DefenceStrength() != fx.grid.basic.defence {
		t.Fatalf("old citadel should become a basic claim")
	}
	wantCode(t, fx.svc.MoveCitadel(sc.redLeader, redCitadel), protocol.ErrCooldown)
	for i := 0; i < 3; i++ {
		fx.svc.EndDay()
	}
	mustOK(t, fx.svc.MoveCitadel(sc.redLeader, redCitadel))
}

func TestMoveCitadel_BlockedUnderSiege(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	wantCode(t, fx.svc.MoveCitadel(sc.blueLeader, targetPos), protocol.ErrBlocked)
}

func TestPlaceFlag_Cooldown(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)

	// Placing the camp planted ada's flag on it.
	wantCode(t, fx.svc.PlaceFlag(sc.redLeader, campPos), protocol.ErrConflict)
	wantCode(t, fx.svc.PlaceFlag(sc.redLeader, redCitadel), protocol.ErrCooldown)
	wantCode(t, fx.svc.PlaceFlag(sc.redMember, targetPos), protocol.ErrInvalidTarget)

	fx.svc.EndDay()
	mustOK(t, fx.svc.PlaceFlag(sc.redLeader, redCitadel))
	wantCode(t, fx.svc.PlaceFlag(sc.redLeader, campPos), protocol.ErrCooldown)
	fx.svc.ResetFlagCooldowns()
	mustOK(t, fx.svc.PlaceFlag(sc.redLeader, campPos))
}

func TestEndDay_ResetsLogins(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	fx.svc.PlayerLoggedIn(sc.blueMember)
	if v, _ := fx.svc.Faction(sc.blue); !v.LoggedInToday {
		t.Fatalf("login not recorded")
	}
	fx.svc.EndDay()
	if v, _ := fx.svc.Faction(sc.blue); v.LoggedInToday {
		t.Fatalf("login survived the end of day")
	}
}

func TestLegacyAndClears(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	fx.svc.AdvanceAllByOneDay()
	fx.svc.AdvanceAllByOneDay()
	fx.svc.AdvanceYieldDay()

	v, _ := fx.svc.Faction(sc.red)
	if v.Legacy != 2 || fx.svc.Day() != 2 {
		t.Fatalf("legacy=%d day=%d", v.Legacy, fx.svc.Day())
	}
	if fx.ranking.regs[sc.red].Legacy != 2 {
		t.Fatalf("ranking not refreshed")
	}
	fx.svc.ClearLegacy()
	if v, _ := fx.svc.Faction(sc.red); v.Legacy != 0 {
		t.Fatalf("legacy not cleared")
	}
}

func TestLegacy_YieldTimer(t *testing.T) {
	fx := newFixture(t, func(c *Config) { c.LegacyUsesYieldTimer = true })
	sc := fx.setupFactions(t)
	fx.svc.AdvanceAllByOneDay()
	fx.svc.AdvanceYieldDay()
	fx.svc.AdvanceYieldDay()
	if v, _ := fx.svc.Faction(sc.blue); v.Legacy != 2 {
		t.Fatalf("legacy=%d", v.Legacy)
	}
}

func TestExportImport_DigestStable(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.startSiege(t)
	mustOK(t, fx.svc.OpClaim(RegionPos{X: 10}, SafeZoneID))
	fx.svc.OnPlayerKilled(sc.blueMember, sc.redMember)
	fx.svc.AdvanceAllByOneDay()
	fx.svc.conquered.Protect(RegionPos{X: -4, Z: 7}, sc.red, 90e9)

	want, err := fx.svc.Digest()
	mustOK(t, err)

	other := newFixture(t, nil)
	mustOK(t, other.svc.Import(fx.svc.Export()))
	got, err := other.svc.Digest()
	mustOK(t, err)
	if got != want {
		t.Fatalf("digest changed across export/import")
	}
	if other.svc.OwnerOf(RegionPos{X: 10}) != SafeZoneID {
		t.Fatalf("neutral claim lost")
	}
	sg, ok := other.svc.SiegeAt(targetRgn)
	if !ok || sg.Progress != 0 || len(sg.Camps) != 1 {
		t.Fatalf("siege=%+v ok=%v", sg, ok)
	}
	if _, ok := other.ranking.regs[sc.blue]; !ok {
		t.Fatalf("imported factions not ranked")
	}
}

func TestExportImport_LastSiegeAtExact(t *testing.T) {
	fx := newFixture(t, nil)
	fx.now = fx.now.Add(123456789 * time.Nanosecond)
	sc := fx.startSiege(t)
	want := fx.svc.factions.Get(sc.red).LastSiegeAt
	if want.IsZero() || want.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatalf("last siege at %v", want)
	}

	other := newFixture(t, nil)
	mustOK(t, other.svc.Import(fx.svc.Export()))
	got := other.svc.factions.Get(sc.red).LastSiegeAt
	if !got.Equal(want) {
		t.Fatalf("last siege at %v after import, want %v", got, want)
	}
}

func TestImport_RejectsTwoLeaders(t *testing.T) {
	fx := newFixture(t, nil)
	sc := fx.setupFactions(t)
	exp := fx.svc.Export()
	for i := range exp.Factions {
		if exp.Factions[i].ID != sc.red {
			continue
		}
		for j := range exp.Factions[i].Members {
			exp.Factions[i].Members[j].Role = string(RoleLeader)
		}
	}
	other := newFixture(t, nil)
	if err := other.svc.Import(exp); err == nil {
		t.Fatalf("expected error")
	}
	if len(other.svc.Leaderboard()) != 0 {
		t.Fatalf("failed import must leave state untouched")
	}
}
