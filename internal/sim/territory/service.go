package territory

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Deps struct {
	Grid     Grid
	Players  Players
	Notifier Notifier
	Ranking  Ranking
	Logger   *log.Logger
	Clock    func() time.Time
	Rand     *rand.Rand
}

// Actor is the player issuing a request. Admin marks an operator override.
type Actor struct {
	Player uuid.UUID
	Admin  bool
}

// Service is the authoritative territory state: factions, region ownership,
// sieges and conquered windows. Every exported method holds the lock for its
// whole duration, so each request is applied atomically.
type Service struct {
	mu sync.Mutex

	cfg      Config
	grid     Grid
	players  Players
	notifier Notifier
	ranking  Ranking
	log      *log.Logger
	now      func() time.Time
	rng      *rand.Rand

	factions  *Registry
	claims    *OwnershipTable
	sieges    *Ledger
	conquered *ConqueredRegistry

	day int
}

func NewService(cfg Config, deps Deps) *Service {
	cfg.normalize()
	s := &Service{
		cfg:       cfg,
		grid:      deps.Grid,
		players:   deps.Players,
		notifier:  deps.Notifier,
		ranking:   deps.Ranking,
		log:       deps.Logger,
		now:       deps.Clock,
		rng:       deps.Rand,
		factions:  NewRegistry(),
		claims:    NewOwnershipTable(),
		sieges:    NewLedger(),
		conquered: NewConqueredRegistry(),
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// siegeEnv

func (s *Service) faction(id uuid.UUID) *Faction { return s.factions.Get(id) }

func (s *Service) ownerOf(r RegionPos) uuid.UUID { return s.claims.OwnerOf(r) }

func (s *Service) structureAt(pos BlockPos) (Structure, bool) {
	if s.grid == nil {
		return nil, false
	}
	return s.grid.StructureAt(pos)
}

func (s *Service) config() *Config { return &s.cfg }

func (s *Service) sendToFaction(f *Faction, msg string) {
	if f == nil {
		return
	}
	for _, id := range f.MemberIDs() {
		s.notifier.SendToPlayer(id, msg)
	}
}

func (s *Service) broadcastSiegeInfo(sg *Siege) {
	info, ok := sg.info(s)
	if !ok {
		return
	}
	s.notifier.BroadcastNearby(sg.Region().Origin(), s.cfg.SiegeInfoRadius, info)
}

func (s *Service) logf(format string, args ...any) { s.log.Printf(format, args...) }

// helpers

func (s *Service) tell(p uuid.UUID, format string, args ...any) {
	s.notifier.SendToPlayer(p, fmt.Sprintf(format, args...))
}

func (s *Service) playerName(p uuid.UUID) string {
	if s.players != nil {
		if n := s.players.Name(p); n != "" {
			return n
		}
	}
	return p.String()
}

// refreshAllSieges recomputes difficulty for every siege and pushes status to
// nearby players. Called after anything that changes flags or membership.
func (s *Service) refreshAllSieges() {
	for _, sg := range s.sieges.All() {
		sg.recalculateExtra(s)
		s.broadcastSiegeInfo(sg)
	}
}

func (s *Service) removeBlock(pos BlockPos) {
	if s.grid != nil {
		s.grid.Remove(pos)
	}
}

func (s *Service) registerRanking(f *Faction) {
	if s.ranking != nil && !f.IsNeutral() {
		s.ranking.RegisterFaction(f.summary())
	}
}

func (s *Service) randomColor() int {
	return hsbToRGB(s.rng.Float64(), s.rng.Float64()*0.5+0.5, 1.0)
}

func hsbToRGB(h, sat, v float64) int {
	h = (h - math.Floor(h)) * 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - sat)
	q := v * (1 - f*sat)
	t := v * (1 - (1-f)*sat)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return int(r*255+0.5)<<16 | int(g*255+0.5)<<8 | int(b*255+0.5)
}
