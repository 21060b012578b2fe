package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"siegecraft.ai/internal/persistence/indexdb"
	"siegecraft.ai/internal/persistence/snapshot"
	"siegecraft.ai/internal/sim/tuning"
	"siegecraft.ai/internal/sim/world"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	worldDir := t.TempDir()
	dir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "30.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if got := latestSnapshot(worldDir); filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir should give no snapshot, got %q", got)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.4:5000":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

func TestLoadTuning_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv(tuning.EnvPrefix+"DAY_TICKS", "77")
	tune, err := loadTuning(filepath.Join(t.TempDir(), "missing.yaml"), quietLogger())
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if tune.DayTicks != 77 || tune.TickRateHz != tuning.Defaults().TickRateHz {
		t.Fatalf("tuning: day=%d rate=%d", tune.DayTicks, tune.TickRateHz)
	}

	cfg := worldConfig("w", tune)
	if cfg.DayTicks != 77 || cfg.Structures.AbandonTicks != tune.Structures.AbandonTicks {
		t.Fatalf("world config: %+v", cfg)
	}
}

func TestLoadTuning_RejectsInvalid(t *testing.T) {
	t.Setenv(tuning.EnvPrefix+"TICK_RATE_HZ", "0")
	if _, err := loadTuning(filepath.Join(t.TempDir(), "missing.yaml"), quietLogger()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, "w1", world.WorldMetrics{Tick: 12, Day: 2, OnlinePlayers: 3, ActiveSieges: 1}, indexdb.Stats{})
	out := buf.String()
	for _, want := range []string{
		`siegecraft_world_tick{world="w1"} 12`,
		`siegecraft_world_players{world="w1",state="online"} 3`,
		`siegecraft_world_active_sieges{world="w1"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "siegecraft_index_") {
		t.Fatalf("index metrics should be omitted without an index")
	}

	buf.Reset()
	writeMetrics(&buf, "w1", world.WorldMetrics{}, indexdb.Stats{QueueCapacity: 8, DropAuditTotal: 4})
	if !strings.Contains(buf.String(), `siegecraft_index_dropped_total{world="w1",kind="audit"} 4`) {
		t.Fatalf("index metrics missing:\n%s", buf.String())
	}
}

func TestSnapshotWriter_ArchivesPreReset(t *testing.T) {
	worldDir := t.TempDir()
	sw := &snapshotWriter{worldDir: worldDir, log: quietLogger()}

	path, err := sw.write(snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 5}})
	if err != nil {
		t.Fatalf("write periodic: %v", err)
	}
	if filepath.Base(path) != "5.snap.zst" {
		t.Fatalf("path=%s", path)
	}
	if _, err := os.Stat(filepath.Join(worldDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("periodic snapshot should not be archived")
	}

	if _, err := sw.write(snapshot.SnapshotV1{Header: snapshot.Header{
		Version: snapshot.Version, Tick: 9, Reason: snapshot.PreResetReason("CLEAR_NOTORIETY"),
	}}); err != nil {
		t.Fatalf("write pre-reset: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(worldDir, "archives", "reset_*", "9.snap.zst"))
	if len(matches) != 1 {
		t.Fatalf("expected archived pre-reset snapshot, got %v", matches)
	}
	if got := latestSnapshot(worldDir); filepath.Base(got) != "9.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
}

func TestAdminHandlers_LoopbackOnly(t *testing.T) {
	w, err := world.New(worldConfig("w1", tuning.Defaults()), world.Deps{Seed: 1})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	mux := http.NewServeMux()
	registerAdminHandlers(mux, w, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote request: code=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback request: code=%d body=%s", rec.Code, rec.Body.String())
	}
	var state struct {
		WorldID string `json:"world_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil || state.WorldID != "w1" {
		t.Fatalf("state: %+v err=%v", state, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET snapshot: code=%d", rec.Code)
	}
}

func TestAdminHandlers_SnapshotServedByRunningWorld(t *testing.T) {
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(worldConfig("w1", tune), world.Deps{Seed: 1})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	mux := http.NewServeMux()
	registerAdminHandlers(mux, w, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: code=%d body=%s", rec.Code, rec.Body.String())
	}
	select {
	case snap := <-sink:
		if snap.Header.Reason != snapshot.ReasonRequested {
			t.Fatalf("reason=%q", snap.Header.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
}
