package world

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/structures"
	"siegecraft.ai/internal/sim/territory"
)

// World is the single writer for territory state. Sessions push joins, leaves
// and acts into channels; Run applies them at tick boundaries.
type World struct {
	cfg WorldConfig
	log *log.Logger
	now func() time.Time

	grid *structures.Grid
	svc  *territory.Service

	tick atomic.Uint64

	players map[uuid.UUID]*player

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan uuid.UUID
	admin chan adminSnapshotReq
	stop  chan struct{}

	auditLogger   AuditLogger
	dayLogger     DayLogger
	siegeRecorder SiegeRecorder
	snapshotSink  chan<- snapshot.SnapshotV1

	lastDecay time.Time
	resolved  int

	metrics atomic.Value
}

func New(cfg WorldConfig, deps Deps) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, errors.New("tick rate must be > 0")
	}
	if cfg.DayTicks <= 0 {
		return nil, errors.New("day ticks must be > 0")
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	seed := deps.Seed
	if seed == 0 {
		seed = clock().UnixNano()
	}

	w := &World{
		cfg:     cfg,
		log:     logger,
		now:     clock,
		grid:    structures.NewGrid(cfg.Structures),
		players: map[uuid.UUID]*player{},
		inbox:   make(chan ActionEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan uuid.UUID, 64),
		admin:   make(chan adminSnapshotReq, 16),
		stop:    make(chan struct{}),
	}
	w.svc = territory.NewService(cfg.Territory, territory.Deps{
		Grid:     w.grid,
		Players:  w,
		Notifier: w,
		Ranking:  deps.Ranking,
		Logger:   log.New(logger.Writer(), "[territory] ", logger.Flags()),
		Clock:    clock,
		Rand:     rand.New(rand.NewSource(seed)),
	})
	w.lastDecay = clock()
	return w, nil
}

func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetDayLogger(l DayLogger)                      { w.dayLogger = l }
func (w *World) SetSiegeRecorder(r SiegeRecorder)              { w.siegeRecorder = r }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- uuid.UUID      { return w.leave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Territory exposes the territory service for read-only queries. Mutations
// must go through the inbox so they run on the world goroutine.
func (w *World) Territory() *territory.Service { return w.svc }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []uuid.UUID
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick with the same ordering as Run.
// It must not be called while Run is active.
func (w *World) StepOnce(joins []JoinRequest, leaves []uuid.UUID, actions []ActionEnvelope) {
	w.step(joins, leaves, actions)
}

func (w *World) step(joins []JoinRequest, leaves []uuid.UUID, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	for _, id := range leaves {
		w.handleLeave(nowTick, id)
	}
	for _, req := range joins {
		resp := w.handleJoin(nowTick, req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}

	// Acts run in inbox order.
	for _, env := range actions {
		p := w.players[env.PlayerID]
		if p == nil || !p.online() {
			continue
		}
		w.handleAct(nowTick, p, env.Act)
	}

	w.systemCamps(nowTick)
	w.systemDays(nowTick)
	w.systemImmunity(nowTick)

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			w.emitSnapshot(nowTick, snapshot.ReasonPeriodic)
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
}

// emitSnapshot hands a snapshot to the sink without blocking the loop.
func (w *World) emitSnapshot(nowTick uint64, reason string) bool {
	if w.snapshotSink == nil {
		return false
	}
	snap := w.ExportSnapshot(nowTick, reason)
	select {
	case w.snapshotSink <- snap:
		return true
	default:
		w.log.Printf("snapshot sink backed up; dropped tick=%d reason=%q", nowTick, reason)
		return false
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
