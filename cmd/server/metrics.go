package main

import (
	"fmt"
	"io"

	"siegecraft.ai/internal/persistence/indexdb"
	"siegecraft.ai/internal/sim/world"
)

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(out io.Writer, worldID string, m world.WorldMetrics, st indexdb.Stats) {
	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s counter\n", name)
	}

	gauge("siegecraft_world_tick", "Current world tick.")
	fmt.Fprintf(out, "siegecraft_world_tick{world=%q} %d\n", worldID, m.Tick)

	gauge("siegecraft_world_day", "Current siege day.")
	fmt.Fprintf(out, "siegecraft_world_day{world=%q} %d\n", worldID, m.Day)

	gauge("siegecraft_world_players", "Known players by state.")
	fmt.Fprintf(out, "siegecraft_world_players{world=%q,state=%q} %d\n", worldID, "known", m.Players)
	fmt.Fprintf(out, "siegecraft_world_players{world=%q,state=%q} %d\n", worldID, "online", m.OnlinePlayers)

	gauge("siegecraft_world_factions", "Registered factions, neutral zones excluded.")
	fmt.Fprintf(out, "siegecraft_world_factions{world=%q} %d\n", worldID, m.Factions)

	gauge("siegecraft_world_structures", "Placed claim structures.")
	fmt.Fprintf(out, "siegecraft_world_structures{world=%q} %d\n", worldID, m.Structures)

	gauge("siegecraft_world_active_sieges", "Sieges in progress.")
	fmt.Fprintf(out, "siegecraft_world_active_sieges{world=%q} %d\n", worldID, m.ActiveSieges)

	gauge("siegecraft_world_conquered_regions", "Regions under capture immunity.")
	fmt.Fprintf(out, "siegecraft_world_conquered_regions{world=%q} %d\n", worldID, m.Conquered)

	counter("siegecraft_world_sieges_resolved_total", "Sieges resolved since start.")
	fmt.Fprintf(out, "siegecraft_world_sieges_resolved_total{world=%q} %d\n", worldID, m.SiegesResolved)

	gauge("siegecraft_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "siegecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "siegecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "siegecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	gauge("siegecraft_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "siegecraft_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	if st.QueueCapacity == 0 {
		return
	}
	gauge("siegecraft_index_queue_depth", "Pending sqlite index writes.")
	fmt.Fprintf(out, "siegecraft_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)

	counter("siegecraft_index_dropped_total", "Index writes dropped because the queue was full.")
	fmt.Fprintf(out, "siegecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", st.DropAuditTotal)
	fmt.Fprintf(out, "siegecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "siege", st.DropSiegeTotal)
	fmt.Fprintf(out, "siegecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", st.DropSnapshotTotal)
	fmt.Fprintf(out, "siegecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "faction", st.DropFactionTotal)
}
