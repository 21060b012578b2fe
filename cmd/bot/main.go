package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"

	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/world"
)

// bot joins a server, founds a faction and keeps claiming regions around its
// citadel. It is a smoke-test client for the websocket protocol.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "player name")
		faction = flag.String("faction", "", "faction to found (default: <name>s)")
		every   = flag.Duration("every", 5*time.Second, "delay between claim attempts")
		token   = flag.String("admin-token", "", "operator token (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        world.OfflinePlayerID(*name).String(),
		PlayerName:      *name,
		AdminToken:      *token,
	}
	hello.Capabilities.MaxQueue = 32
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, log: logger, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	fname := *faction
	if fname == "" {
		fname = *name + "s"
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.readLoop()
	}()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			b.step(fname)
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  *log.Logger
	rng  *rand.Rand

	mu        sync.Mutex
	welcomed  bool
	inFaction bool
	home      [4]int
	seq       int
}

func (b *bot) readLoop() {
	for {
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			b.log.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.mu.Lock()
			b.welcomed = true
			b.inFaction = w.FactionID != ""
			b.mu.Unlock()
			b.log.Printf("WELCOME player_id=%s faction=%q tick_rate=%d region_size=%d", w.PlayerID, w.FactionID, w.WorldParams.TickRateHz, w.WorldParams.RegionSize)

		case protocol.TypeActResult:
			var r protocol.ActResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if r.OK {
				b.log.Printf("%s ok", r.ActID)
			} else {
				b.log.Printf("%s rejected: %s %s", r.ActID, r.Code, r.Message)
			}
			if r.OK && len(r.ActID) > 2 && r.ActID[:2] == "F_" {
				b.mu.Lock()
				b.inFaction = true
				b.mu.Unlock()
			}

		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if err := json.Unmarshal(msg, &n); err == nil {
				b.log.Printf("notice: %s", n.Text)
			}

		case protocol.TypeSiegeInfo:
			var s protocol.SiegeInfoMsg
			if err := json.Unmarshal(msg, &s); err == nil {
				b.log.Printf("siege %s -> %s: %d/%d", s.AttackingName, s.DefendingName, s.Progress, s.CompletionPoint)
			}
		}
	}
}

func (b *bot) step(faction string) {
	b.mu.Lock()
	welcomed, inFaction := b.welcomed, b.inFaction
	b.seq++
	seq := b.seq
	b.mu.Unlock()
	if !welcomed {
		return
	}

	if !inFaction {
		b.home = [4]int{0, b.rng.Intn(4096) - 2048, 64, b.rng.Intn(4096) - 2048}
		b.send(protocol.ActMsg{ID: fmt.Sprintf("F_%d", seq), Action: protocol.ActCreateFaction, Name: faction, Pos: &b.home})
		return
	}

	// Walk to a neighbouring region and try to claim it.
	pos := b.home
	pos[1] += (b.rng.Intn(3) - 1) * 16
	pos[3] += (b.rng.Intn(3) - 1) * 16
	b.send(protocol.ActMsg{ID: fmt.Sprintf("M_%d", seq), Action: protocol.ActMove, Pos: &pos})
	b.send(protocol.ActMsg{ID: fmt.Sprintf("C_%d", seq), Action: protocol.ActPlaceClaim, Pos: &pos})
}

func (b *bot) send(act protocol.ActMsg) {
	act.Type = protocol.TypeAct
	act.ProtocolVersion = protocol.Version
	if act.ID == "" {
		act.ID = uuid.NewString()[:8]
	}
	if err := b.conn.WriteJSON(act); err != nil {
		b.log.Printf("send %s: %v", act.Action, err)
	}
}
