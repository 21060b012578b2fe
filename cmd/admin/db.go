package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"siegecraft.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless --db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	sinceTick := fs.Uint64("since-tick", 0, "first tick for `actions`")
	_ = fs.Parse(args)

	q := "leaderboard"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing --world or --db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := runQuery(ctx, r, q, *limit, *sinceTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	printJSON(out)
}

func runQuery(ctx context.Context, r *indexdb.Reader, q string, limit int, sinceTick uint64) (any, error) {
	switch q {
	case "leaderboard":
		return r.Leaderboard(ctx, limit)
	case "sieges":
		return r.RecentSieges(ctx, limit)
	case "snapshots":
		return r.Snapshots(ctx, limit)
	case "actions":
		return r.AuditCounts(ctx, sinceTick)
	default:
		return nil, fmt.Errorf("unknown query (want leaderboard|sieges|snapshots|actions)")
	}
}
