package territory

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStructure struct {
	pos                    BlockPos
	faction                uuid.UUID
	defence, attack, suppt int
}

func (s *fakeStructure) Pos() BlockPos { return s.pos }
func (s *fakeStructure) Faction() uuid.UUID { return s.faction }
func (s *fakeStructure) DefenceStrength() int { return s.defence }
func (s *fakeStructure) AttackStrength() int { return s.attack }
func (s *fakeStructure) SupportStrength() int { return s.suppt }
func (s *fakeStructure) OnOwnerChanged(id uuid.UUID) { s.faction = id }

type fakeCamp struct {
	fakeStructure
	target    *BlockPos
	abandon   int
	succeeded int
	failed    int
}

func (c *fakeCamp) AbandonTimer() int { return c.abandon }
func (c *fakeCamp) SetSiegeTarget(t *BlockPos) {
	c.target = t
}
func (c *fakeCamp) OnSiegeSucceeded() {
	c.succeeded++
	c.target = nil
}
func (c *fakeCamp) OnSiegeFailed() {
	c.failed++
	c.target = nil
}

// fakeGrid hands out structures with configurable strengths. Defaults keep
// adjacency modifiers at zero so tests control difficulty explicitly.
type fakeGrid struct {
	byPos map[BlockPos]Structure

	citadel, basic, camp, admin fakeStructure
}

func newFakeGrid() *fakeGrid {
	return &fakeGrid{
		byPos:   map[BlockPos]Structure{},
		citadel: fakeStructure{defence: 15},
		basic:   fakeStructure{defence: 5},
		camp:    fakeStructure{defence: 1},
		admin:   fakeStructure{defence: 1000},
	}
}

func (g *fakeGrid) place(tmpl fakeStructure, pos BlockPos, f uuid.UUID) *fakeStructure {
	s := tmpl
	s.pos, s.faction = pos, f
	g.byPos[pos] = &s
	return &s
}

func (g *fakeGrid) StructureAt(pos BlockPos) (Structure, bool) {
	s, ok := g.byPos[pos]
	return s, ok
}
func (g *fakeGrid) PlaceBasicClaim(pos BlockPos, f uuid.UUID) (Structure, error) {
	return g.place(g.basic, pos, f), nil
}
func (g *fakeGrid) PlaceCitadel(pos BlockPos, f uuid.UUID) (Structure, error) {
	return g.place(g.citadel, pos, f), nil
}
func (g *fakeGrid) PlaceAdminClaim(pos BlockPos, f uuid.UUID) (Structure, error) {
	return g.place(g.admin, pos, f), nil
}
func (g *fakeGrid) PlaceSiegeCamp(pos BlockPos, f uuid.UUID) (SiegeCamp, error) {
	c := &fakeCamp{fakeStructure: g.camp}
	c.pos, c.faction = pos, f
	g.byPos[pos] = c
	return c, nil
}
func (g *fakeGrid) Remove(pos BlockPos) { delete(g.byPos, pos) }

func (g *fakeGrid) campAt(t *testing.T, pos BlockPos) *fakeCamp {
	t.Helper()
	c, ok := g.byPos[pos].(*fakeCamp)
	if !ok {
		t.Fatalf("no camp at %s", pos)
	}
	return c
}

type fakePlayers struct {
	pos   map[uuid.UUID]BlockPos
	names map[uuid.UUID]string
}

func (p *fakePlayers) Position(id uuid.UUID) (BlockPos, bool) {
	pos, ok := p.pos[id]
	return pos, ok
}
func (p *fakePlayers) Name(id uuid.UUID) string { return p.names[id] }

type recNotifier struct {
	toPlayer map[uuid.UUID][]string
	all      []string
	nearby   []SiegeInfo
}

func (n *recNotifier) SendToPlayer(p uuid.UUID, msg string) {
	n.toPlayer[p] = append(n.toPlayer[p], msg)
}
func (n *recNotifier) BroadcastAll(msg string) { n.all = append(n.all, msg) }
func (n *recNotifier) BroadcastNearby(_ BlockPos, _ int, info SiegeInfo) {
	n.nearby = append(n.nearby, info)
}

type fakeRanking struct {
	regs map[uuid.UUID]FactionSummary
}

func (r *fakeRanking) RegisterFaction(s FactionSummary) { r.regs[s.ID] = s }
func (r *fakeRanking) UnregisterFaction(id uuid.UUID) { delete(r.regs, id) }

type fixture struct {
	svc     *Service
	grid    *fakeGrid
	players *fakePlayers
	notes   *recNotifier
	ranking *fakeRanking
	now     time.Time
}

// newFixture builds a service whose daily swing is the base pressure only.
func newFixture(t *testing.T, tweak func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SwingPerDayBase = 1
	cfg.SwingNoDefenderLogins = 0
	cfg.SwingNoAttackerLogins = 0
	cfg.SwingPerDefenderFlag = 0
	cfg.SwingPerAttackerFlag = 0
	if tweak != nil {
		tweak(&cfg)
	}
	fx := &fixture{
		grid:    newFakeGrid(),
		players: &fakePlayers{pos: map[uuid.UUID]BlockPos{}, names: map[uuid.UUID]string{}},
		notes:   &recNotifier{toPlayer: map[uuid.UUID][]string{}},
		ranking: &fakeRanking{regs: map[uuid.UUID]FactionSummary{}},
		now:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewService(cfg, Deps{
		Grid:     fx.grid,
		Players:  fx.players,
		Notifier: fx.notes,
		Ranking:  fx.ranking,
		Clock:    func() time.Time { return fx.now },
		Rand:     rand.New(rand.NewSource(7)),
	})
	return fx
}

func (fx *fixture) player(name string, pos BlockPos) uuid.UUID {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	fx.players.names[id] = name
	fx.players.pos[id] = pos
	return id
}

// Layout along z=8 in dim 0, one region per 16 blocks:
//
//	region 0: Red citadel   region 1: Red camp
//	region 2: Blue claim    region 3: Blue citadel
var (
	redCitadel  = BlockPos{X: 8, Y: 64, Z: 8}
	campPos     = BlockPos{X: 24, Y: 64, Z: 8}
	targetPos   = BlockPos{X: 40, Y: 64, Z: 8}
	blueCitadel = BlockPos{X: 56, Y: 64, Z: 8}
	targetRgn   = RegionPos{X: 2}
	campRgn     = RegionPos{X: 1}
)

type scenario struct {
	red, blue              uuid.UUID
	redLeader, redMember   uuid.UUID
	blueLeader, blueMember uuid.UUID
}

// setupFactions founds Red and Blue, gives each a second member, claims the
// target region for Blue and places Red's camp. No siege is started.
func (fx *fixture) setupFactions(t *testing.T) scenario {
	t.Helper()
	sc := scenario{
		redLeader:  fx.player("ada", campPos),
		redMember:  fx.player("bob", campPos),
		blueLeader: fx.player("cyd", targetPos),
		blueMember: fx.player("dee", targetPos),
	}
	var err error
	if sc.red, err = fx.svc.CreateFaction(sc.redLeader, redCitadel, "Red", 0xaa0000); err != nil {
		t.Fatalf("create red: %v", err)
	}
	if sc.blue, err = fx.svc.CreateFaction(sc.blueLeader, blueCitadel, "Blue", 0x0000aa); err != nil {
		t.Fatalf("create blue: %v", err)
	}
	mustOK(t, fx.svc.Invite(Actor{Player: sc.redLeader}, uuid.Nil, sc.redMember))
	mustOK(t, fx.svc.AcceptInvite(sc.redMember))
	mustOK(t, fx.svc.Invite(Actor{Player: sc.blueLeader}, uuid.Nil, sc.blueMember))
	mustOK(t, fx.svc.AcceptInvite(sc.blueMember))
	mustOK(t, fx.svc.PlaceClaim(sc.blueLeader, targetPos))
	mustOK(t, fx.svc.PlaceSiegeCamp(sc.redLeader, campPos))
	return sc
}

func (fx *fixture) startSiege(t *testing.T) scenario {
	t.Helper()
	sc := fx.setupFactions(t)
	mustOK(t, fx.svc.StartSiege(sc.redLeader, campPos, East))
	return sc
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if r := AsRejection(err); r.Code != code {
		t.Fatalf("expected %s, got %s (%s)", code, r.Code, r.Msg)
	}
}
