package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"siegecraft.ai/internal/persistence/indexdb"
	persistlog "siegecraft.ai/internal/persistence/log"
	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/tuning"
	"siegecraft.ai/internal/sim/world"
	"siegecraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "random seed for faction colors (0 = from clock)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable-db", false, "disable the sqlite index (audit, siege results, leaderboard)")
		adminHTTP  = flag.Bool("admin-http", defaultEnableAdminHTTP(), "serve loopback-only /admin/v1 endpoints")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load-latest-snapshot", true, "load latest snapshot from data dir if present (when --snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := loadTuning(*tuningPath, logger)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	cfg := worldConfig(*worldID, tune)
	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, s.Header.WorldID)
		}
		// The day clock of a running world is fixed by its first snapshot.
		if s.TickRate > 0 {
			cfg.TickRateHz = s.TickRate
		}
		if s.DayTicks > 0 {
			cfg.DayTicks = s.DayTicks
		}
		snap = &s
	}

	deps := world.Deps{
		Logger: log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
		Seed:   *seed,
	}
	if idx != nil {
		deps.Ranking = idx
	}
	w, err := world.New(cfg, deps)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d day=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), w.Territory().Day())
	}

	ctx, cancel := signalContext()
	defer cancel()

	if idx != nil {
		syncCtx, syncCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := idx.SyncFactions(syncCtx, w.Territory().Leaderboard()); err != nil {
			logger.Printf("index: sync factions: %v", err)
		}
		syncCancel()
	}

	auditLog := persistlog.NewAuditLogger(worldDir)
	dayLog := persistlog.NewDayLogger(worldDir)
	siegeLog := persistlog.NewSiegeLogger(worldDir)
	defer auditLog.Close()
	defer dayLog.Close()
	defer siegeLog.Close()

	audits := persistlog.AuditTee{auditLog}
	sieges := persistlog.SiegeTee{siegeLog}
	if idx != nil {
		audits = append(audits, idx)
		sieges = append(sieges, idx)
	}
	w.SetAuditLogger(audits)
	w.SetDayLogger(dayLog)
	w.SetSiegeRecorder(sieges)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	sw := &snapshotWriter{worldDir: worldDir, idx: idx, log: logger}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sw.run(ctx, snapCh)
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.Metrics(), idx.Stats())
	})
	if *adminHTTP {
		registerAdminHandlers(mux, w, idx)
	} else {
		logger.Printf("admin endpoints disabled (--admin-http=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, validator, ws.Options{
		AdminToken:    tune.AdminToken,
		OutboundQueue: tune.OutboundQueue,
	}, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tick_rate=%dHz day_ticks=%d", *addr, *worldID, cfg.TickRateHz, cfg.DayTicks)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-worldDone
	<-writerDone
	if tick := w.CurrentTick(); tick > 0 {
		if _, err := sw.write(w.ExportSnapshot(tick-1, snapshot.ReasonShutdown)); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		}
	}
}

// loadTuning reads tuning.yaml over the defaults, then applies SIEGE_* env
// overrides. A missing file is not an error.
func loadTuning(path string, logger *log.Logger) (tuning.Tuning, error) {
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return tune, err
		}
		logger.Printf("tuning not found (%s); using defaults", path)
		tune = tuning.Defaults()
	}
	if err := tuning.ApplyEnv(&tune); err != nil {
		return tune, err
	}
	if err := tune.Validate(); err != nil {
		return tune, err
	}
	return tune, nil
}

func worldConfig(id string, tune tuning.Tuning) world.WorldConfig {
	return world.WorldConfig{
		ID:                 id,
		TickRateHz:         tune.TickRateHz,
		DayTicks:           tune.DayTicks,
		YieldTicks:         tune.YieldTicks,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		ImmunityDecayEvery: tune.ImmunityDecayEvery,
		Territory:          tune.TerritoryConfig(),
		Structures:         tune.StructuresConfig(),
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
