package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	flag "github.com/spf13/pflag"

	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotSummary is what `inspect` prints for one snapshot file.
type snapshotSummary struct {
	Path       string         `json:"path"`
	WorldID    string         `json:"world_id"`
	Tick       uint64         `json:"tick"`
	Day        int            `json:"day"`
	Reason     string         `json:"reason,omitempty"`
	Factions   int            `json:"factions"`
	Claims     int            `json:"claims"`
	Sieges     int            `json:"sieges"`
	Conquered  int            `json:"conquered"`
	Structures map[string]int `json:"structures"`
	Players    int            `json:"players"`
	Digest     string         `json:"digest"`
}

func summarize(path string, snap snapshot.SnapshotV1) (snapshotSummary, error) {
	digest, err := snapshot.Digest(snap)
	if err != nil {
		return snapshotSummary{}, err
	}
	s := snapshotSummary{
		Path:       path,
		WorldID:    snap.Header.WorldID,
		Tick:       snap.Header.Tick,
		Day:        snap.Territory.Day,
		Reason:     snap.Header.Reason,
		Factions:   len(snap.Territory.Factions),
		Sieges:     len(snap.Territory.Sieges),
		Conquered:  len(snap.Territory.ConqueredChunks),
		Structures: map[string]int{},
		Players:    len(snap.Players),
		Digest:     digest,
	}
	for _, f := range snap.Territory.Factions {
		s.Claims += len(f.Claims)
	}
	for _, st := range snap.Structures {
		s.Structures[st.Kind]++
	}
	return s, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide --snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	s, err := summarize(path, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "digest:", err)
		os.Exit(1)
	}
	printJSON(s)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	sinceTick := fs.Uint64("since-tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to-tick", 0, "last tick (inclusive, 0 = no limit)")
	actions := fs.StringSlice("action", nil, "only these actions (repeatable)")
	actor := fs.String("actor", "", "only this actor id")
	_ = fs.Parse(args)

	filter := auditFilter{SinceTick: *sinceTick, ToTick: *toTick, Actor: strings.TrimSpace(*actor)}
	if len(*actions) > 0 {
		filter.Actions = map[string]bool{}
		for _, a := range *actions {
			filter.Actions[strings.ToUpper(strings.TrimSpace(a))] = true
		}
	}
	entries, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID), filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		_ = enc.Encode(e)
	}
}

type auditFilter struct {
	SinceTick uint64
	ToTick    uint64
	Actions   map[string]bool
	Actor     string
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	if f.Actions != nil && !f.Actions[e.Action] {
		return false
	}
	return f.Actor == "" || e.Actor == f.Actor
}

// readAudit scans the hourly audit files in name order, which is also time order.
func readAudit(worldDir string, f auditFilter) ([]world.AuditEntry, error) {
	dir := filepath.Join(worldDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []world.AuditEntry
	for _, name := range names {
		path := filepath.Join(dir, name)
		got, err := readAuditFile(path, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, got...)
	}
	return out, nil
}

func readAuditFile(path string, f auditFilter) ([]world.AuditEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []world.AuditEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e world.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out, sc.Err()
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
