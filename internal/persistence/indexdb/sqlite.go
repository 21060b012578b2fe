package indexdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/territory"
	"siegecraft.ai/internal/sim/world"
)

// SQLiteIndex is a query-friendly copy of what the world emits: faction
// standings, siege outcomes, snapshots and audit entries. Writes are queued
// and applied by one goroutine; the JSONL logs and snapshots stay the source
// of truth.
type SQLiteIndex struct {
	db *sqlx.DB
	// ro serves queries so they never wait on the writer's open transaction.
	ro *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAudit    atomic.Uint64
	dropSiege    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropFaction  atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSiege
	reqSnapshot
	reqFactionUpsert
	reqFactionDelete
	reqFactionSync
)

type req struct {
	kind reqKind

	audit    world.AuditEntry
	siege    world.SiegeResult
	snapshot SnapshotRow
	faction  FactionRow
	sync     []FactionRow
	done     chan error
}

type FactionRow struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Color     int    `db:"color" json:"color"`
	Notoriety int    `db:"notoriety" json:"notoriety"`
	Legacy    int    `db:"legacy" json:"legacy"`
	Wealth    int    `db:"wealth" json:"wealth"`
	Members   int    `db:"members" json:"members"`
	Claims    int    `db:"claims" json:"claims"`
	Score     int    `db:"score" json:"score"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

type SiegeRow struct {
	ID           int64  `db:"id" json:"id"`
	Tick         int64  `db:"tick" json:"tick"`
	Day          int    `db:"day" json:"day"`
	Dim          int    `db:"dim" json:"dim"`
	RX           int    `db:"rx" json:"rx"`
	RZ           int    `db:"rz" json:"rz"`
	Attacker     string `db:"attacker" json:"attacker"`
	Defender     string `db:"defender" json:"defender"`
	AttackerName string `db:"attacker_name" json:"attacker_name"`
	DefenderName string `db:"defender_name" json:"defender_name"`
	State        string `db:"state" json:"state"`
	Progress     int    `db:"progress" json:"progress"`
	Threshold    int    `db:"threshold" json:"threshold"`
	CitadelLost  bool   `db:"citadel_lost" json:"citadel_lost"`
}

type SnapshotRow struct {
	Tick       int64  `db:"tick" json:"tick"`
	Path       string `db:"path" json:"path"`
	Reason     string `db:"reason" json:"reason"`
	Day        int    `db:"day" json:"day"`
	Factions   int    `db:"factions" json:"factions"`
	Sieges     int    `db:"sieges" json:"sieges"`
	Structures int    `db:"structures" json:"structures"`
	Players    int    `db:"players" json:"players"`
	Digest     string `db:"digest" json:"digest"`
}

type auditRow struct {
	Tick    int64  `db:"tick"`
	Seq     int    `db:"seq"`
	Actor   string `db:"actor"`
	Action  string `db:"action"`
	Dim     int    `db:"dim"`
	X       int    `db:"x"`
	Y       int    `db:"y"`
	Z       int    `db:"z"`
	Reason  string `db:"reason"`
	RawJSON string `db:"raw_json"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSiegeTotal    uint64 `json:"drop_siege_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropFactionTotal  uint64 `json:"drop_faction_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ro, err := openDB(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ro.SetMaxOpenConns(4)

	s := &SQLiteIndex{
		db: db,
		ro: ro,
		// High buffer: allow bursty audit writes (e.g. a siege day resolving many claims) without stalling the sim.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sqlx.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS factions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color INTEGER NOT NULL,
			notoriety INTEGER NOT NULL,
			legacy INTEGER NOT NULL,
			wealth INTEGER NOT NULL,
			members INTEGER NOT NULL,
			claims INTEGER NOT NULL,
			score INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_factions_score ON factions(score DESC, name);`,
		`CREATE TABLE IF NOT EXISTS siege_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			day INTEGER NOT NULL,
			dim INTEGER NOT NULL,
			rx INTEGER NOT NULL,
			rz INTEGER NOT NULL,
			attacker TEXT NOT NULL,
			defender TEXT NOT NULL,
			attacker_name TEXT NOT NULL,
			defender_name TEXT NOT NULL,
			state TEXT NOT NULL,
			progress INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			citadel_lost INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_siege_results_tick ON siege_results(tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			reason TEXT NOT NULL,
			day INTEGER NOT NULL,
			factions INTEGER NOT NULL,
			sieges INTEGER NOT NULL,
			structures INTEGER NOT NULL,
			players INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			dim INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action ON audits(action, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
		if s.ro != nil {
			_ = s.ro.Close()
		}
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSiegeTotal:    s.dropSiege.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropFactionTotal:  s.dropFaction.Load(),
	}
}

// Reader queries the same database the index writes.
func (s *SQLiteIndex) Reader() *Reader { return &Reader{db: s.ro} }

// enqueue drops the request if the indexer falls behind.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSiegeResult(r world.SiegeResult) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSiege, siege: r}, &s.dropSiege)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	digest, _ := snapshot.Digest(snap)
	r := SnapshotRow{
		Tick:       int64(snap.Header.Tick),
		Path:       path,
		Reason:     snap.Header.Reason,
		Day:        snap.Header.Day,
		Factions:   len(snap.Territory.Factions),
		Sieges:     len(snap.Territory.Sieges),
		Structures: len(snap.Structures),
		Players:    len(snap.Players),
		Digest:     digest,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RegisterFaction and UnregisterFaction keep the leaderboard table current.

func (s *SQLiteIndex) RegisterFaction(sum territory.FactionSummary) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqFactionUpsert, faction: factionRow(sum)}, &s.dropFaction)
}

func (s *SQLiteIndex) UnregisterFaction(id uuid.UUID) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqFactionDelete, faction: FactionRow{ID: id.String()}}, &s.dropFaction)
}

// SyncFactions replaces the leaderboard table with list and waits until the
// writer has applied it.
func (s *SQLiteIndex) SyncFactions(ctx context.Context, list []territory.FactionSummary) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	rows := make([]FactionRow, 0, len(list))
	for _, sum := range list {
		rows = append(rows, factionRow(sum))
	}
	done := make(chan error, 1)
	select {
	case s.ch <- req{kind: reqFactionSync, sync: rows, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func factionRow(sum territory.FactionSummary) FactionRow {
	return FactionRow{
		ID:        sum.ID.String(),
		Name:      sum.Name,
		Color:     sum.Color,
		Notoriety: sum.Notoriety,
		Legacy:    sum.Legacy,
		Wealth:    sum.Wealth,
		Members:   sum.Members,
		Claims:    sum.Claims,
		Score:     sum.Score(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

const (
	upsertFaction = `INSERT OR REPLACE INTO factions(id,name,color,notoriety,legacy,wealth,members,claims,score,updated_at)
		VALUES(:id,:name,:color,:notoriety,:legacy,:wealth,:members,:claims,:score,:updated_at)`
	insertSiege = `INSERT INTO siege_results(tick,day,dim,rx,rz,attacker,defender,attacker_name,defender_name,state,progress,threshold,citadel_lost)
		VALUES(:tick,:day,:dim,:rx,:rz,:attacker,:defender,:attacker_name,:defender_name,:state,:progress,:threshold,:citadel_lost)`
	insertSnapshot = `INSERT OR REPLACE INTO snapshots(tick,path,reason,day,factions,sieges,structures,players,digest)
		VALUES(:tick,:path,:reason,:day,:factions,:sieges,:structures,:players,:digest)`
	insertAudit = `INSERT OR REPLACE INTO audits(tick,seq,actor,action,dim,x,y,z,reason,raw_json)
		VALUES(:tick,:seq,:actor,:action,:dim,:x,:y,:z,:reason,:raw_json)`
)

func siegeRow(r world.SiegeResult) SiegeRow {
	return SiegeRow{
		Tick:         int64(r.Tick),
		Day:          r.Day,
		Dim:          r.Region[0],
		RX:           r.Region[1],
		RZ:           r.Region[2],
		Attacker:     r.Attacker.String(),
		Defender:     r.Defender.String(),
		AttackerName: r.AttackerName,
		DefenderName: r.DefenderName,
		State:        r.State,
		Progress:     r.Progress,
		Threshold:    r.Threshold,
		CitadelLost:  r.CitadelLost,
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sqlx.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		return err
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(query string, arg any) bool {
		if _, err := tx.NamedExec(query, arg); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	handle := func(r req) {
		begin()
		if tx == nil {
			if r.done != nil {
				r.done <- fmt.Errorf("index unavailable")
			}
			return
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, auditRow{
				Tick:    int64(a.Tick),
				Seq:     seq,
				Actor:   a.Actor,
				Action:  a.Action,
				Dim:     a.Pos[0],
				X:       a.Pos[1],
				Y:       a.Pos[2],
				Z:       a.Pos[3],
				Reason:  a.Reason,
				RawJSON: string(raw),
			})

		case reqSiege:
			exec(insertSiege, siegeRow(r.siege))

		case reqSnapshot:
			exec(insertSnapshot, r.snapshot)

		case reqFactionUpsert:
			exec(upsertFaction, r.faction)

		case reqFactionDelete:
			if _, err := tx.Exec(`DELETE FROM factions WHERE id=?`, r.faction.ID); err != nil {
				rollback()
				return
			}
			opCount++

		case reqFactionSync:
			err := func() error {
				if _, err := tx.Exec(`DELETE FROM factions`); err != nil {
					return err
				}
				for _, row := range r.sync {
					if _, err := tx.NamedExec(upsertFaction, row); err != nil {
						return err
					}
				}
				return nil
			}()
			if err != nil {
				rollback()
			} else {
				err = commit()
			}
			r.done <- err
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			_ = commit()
		}
	}

	// Idle transactions are committed on a timer so readers see recent rows.
	ticker := time.NewTicker(commitMaxWait / 4)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				_ = commit()
				return
			}
			handle(r)
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				_ = commit()
			}
		}
	}
}
