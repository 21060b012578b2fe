package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"siegecraft.ai/internal/persistence/indexdb"
	"siegecraft.ai/internal/sim/world"
)

// registerAdminHandlers mounts the local-only operator endpoints.
func registerAdminHandlers(mux *http.ServeMux, w *world.World, idx *indexdb.SQLiteIndex) {
	mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		})
	}))

	mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := w.RequestSnapshot(ctx)
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
	}))

	if idx == nil {
		return
	}
	reader := idx.Reader()
	mux.HandleFunc("/admin/v1/leaderboard", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		rows, err := reader.Leaderboard(r.Context(), queryLimit(r))
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, rows)
	}))
	mux.HandleFunc("/admin/v1/sieges", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		rows, err := reader.RecentSieges(r.Context(), queryLimit(r))
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, rows)
	}))
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
