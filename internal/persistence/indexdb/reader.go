package indexdb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Reader runs the read-side queries used by the admin endpoints and tools.
type Reader struct {
	db    *sqlx.DB
	owned bool
}

// OpenReader opens an index database for queries only.
func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db, owned: true}, nil
}

func (r *Reader) Close() error {
	if r == nil || !r.owned {
		return nil
	}
	return r.db.Close()
}

func (r *Reader) Leaderboard(ctx context.Context, limit int) ([]FactionRow, error) {
	var rows []FactionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id,name,color,notoriety,legacy,wealth,members,claims,score,updated_at
		FROM factions ORDER BY score DESC, name ASC LIMIT ?`,
		clampLimit(limit),
	)
	return rows, err
}

func (r *Reader) RecentSieges(ctx context.Context, limit int) ([]SiegeRow, error) {
	var rows []SiegeRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id,tick,day,dim,rx,rz,attacker,defender,attacker_name,defender_name,state,progress,threshold,citadel_lost
		FROM siege_results ORDER BY id DESC LIMIT ?`,
		clampLimit(limit),
	)
	return rows, err
}

func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	var rows []SnapshotRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT tick,path,reason,day,factions,sieges,structures,players,digest
		FROM snapshots ORDER BY tick DESC LIMIT ?`,
		clampLimit(limit),
	)
	return rows, err
}

// LatestSnapshot returns the newest indexed snapshot, or ok=false when none.
func (r *Reader) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	rows, err := r.Snapshots(ctx, 1)
	if err != nil || len(rows) == 0 {
		return SnapshotRow{}, false, err
	}
	return rows[0], true, nil
}

type ActionCount struct {
	Action string `db:"action" json:"action"`
	Count  int    `db:"n" json:"count"`
}

// AuditCounts tallies audit entries by action since the given tick.
func (r *Reader) AuditCounts(ctx context.Context, sinceTick uint64) ([]ActionCount, error) {
	var rows []ActionCount
	err := r.db.SelectContext(ctx, &rows,
		`SELECT action, COUNT(*) AS n FROM audits WHERE tick >= ? GROUP BY action ORDER BY n DESC, action ASC`,
		int64(sinceTick),
	)
	return rows, err
}

func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 1000 {
		return 1000
	}
	return n
}
