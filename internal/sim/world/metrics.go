package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`
	Day  int    `json:"day"`

	Players       int `json:"players"`
	OnlinePlayers int `json:"online_players"`
	Factions      int `json:"factions"`
	Structures    int `json:"structures"`
	ActiveSieges  int `json:"active_sieges"`
	Conquered     int `json:"conquered"`

	SiegesResolved int `json:"sieges_resolved"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	w.metrics.Store(WorldMetrics{
		Tick:           nextTick,
		Day:            w.svc.Day(),
		Players:        len(w.players),
		OnlinePlayers:  len(w.onlinePlayers()),
		Factions:       len(w.svc.Leaderboard()),
		Structures:     w.grid.Len(),
		ActiveSieges:   len(w.svc.Sieges()),
		Conquered:      len(w.svc.Conquered()),
		SiegesResolved: w.resolved,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: stepMS,
	})
}
