package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/structures"
	"siegecraft.ai/internal/sim/territory"
	"siegecraft.ai/internal/sim/world"
)

func startServer(t *testing.T, opts Options) string {
	t.Helper()
	w, err := world.New(world.WorldConfig{
		ID:                 "ws_test",
		TickRateHz:         50,
		DayTicks:           100000,
		ImmunityDecayEvery: time.Minute,
		Territory:          territory.DefaultConfig(),
		Structures:         structures.DefaultConfig(),
	}, world.Deps{Seed: 7})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	srv := httptest.NewServer(NewServer(w, v, opts, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialHello(t *testing.T, url string, hello map[string]any) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	hello["type"] = protocol.TypeHello
	hello["protocol_version"] = protocol.Version
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err == nil && base.Type == typ {
			return msg
		}
	}
}

func TestServer_HelloActRoundTrip(t *testing.T) {
	url := startServer(t, Options{})
	id := uuid.New()
	conn := dialHello(t, url, map[string]any{"player_id": id.String(), "player_name": "Alice"})

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if welcome.PlayerID != id.String() || welcome.Admin || welcome.WorldParams.TickRateHz != 50 {
		t.Fatalf("welcome: %+v", welcome)
	}

	if err := conn.WriteJSON(map[string]any{
		"type": protocol.TypeAct, "protocol_version": protocol.Version,
		"id": "a1", "action": protocol.ActCreateFaction, "name": "Red", "pos": []int{0, 10, 64, 10},
	}); err != nil {
		t.Fatalf("write act: %v", err)
	}
	var res protocol.ActResultMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeActResult), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.OK || res.ActID != "a1" {
		t.Fatalf("create faction: %+v", res)
	}
}

func TestServer_RejectsInvalidActWithoutDisconnect(t *testing.T) {
	url := startServer(t, Options{})
	conn := dialHello(t, url, map[string]any{"player_id": uuid.NewString(), "player_name": "Bob"})
	readType(t, conn, protocol.TypeWelcome)

	// PLACE_CLAIM without a position fails the schema.
	if err := conn.WriteJSON(map[string]any{
		"type": protocol.TypeAct, "protocol_version": protocol.Version,
		"id": "bad1", "action": protocol.ActPlaceClaim,
	}); err != nil {
		t.Fatalf("write act: %v", err)
	}
	var res protocol.ActResultMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeActResult), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrBadRequest || res.ActID != "bad1" {
		t.Fatalf("invalid act: %+v", res)
	}

	// The session keeps working afterwards; an operator act is refused by the world.
	if err := conn.WriteJSON(map[string]any{
		"type": protocol.TypeAct, "protocol_version": protocol.Version,
		"id": "op1", "action": protocol.ActResetFlagCooldowns,
	}); err != nil {
		t.Fatalf("write act: %v", err)
	}
	if err := json.Unmarshal(readType(t, conn, protocol.TypeActResult), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrNoPermission || res.ActID != "op1" {
		t.Fatalf("operator act: %+v", res)
	}
}

func TestServer_AdminToken(t *testing.T) {
	url := startServer(t, Options{AdminToken: "s3cret"})

	conn := dialHello(t, url, map[string]any{"player_id": uuid.NewString(), "player_name": "Op", "admin_token": "s3cret"})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if !welcome.Admin {
		t.Fatalf("expected admin session: %+v", welcome)
	}

	bad := dialHello(t, url, map[string]any{"player_id": uuid.NewString(), "player_name": "Eve", "admin_token": "guess"})
	_ = bad.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := bad.ReadMessage()
	var ce *websocket.CloseError
	if err == nil || !errors.As(err, &ce) || !strings.HasPrefix(ce.Text, protocol.ErrProtoAuth) {
		t.Fatalf("expected auth close, got %v", err)
	}
}

func TestServer_DuplicateSessionRefused(t *testing.T) {
	url := startServer(t, Options{})
	id := uuid.NewString()
	first := dialHello(t, url, map[string]any{"player_id": id, "player_name": "Carol"})
	readType(t, first, protocol.TypeWelcome)

	second := dialHello(t, url, map[string]any{"player_id": id, "player_name": "Carol"})
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := second.ReadMessage()
	var ce *websocket.CloseError
	if err == nil || !errors.As(err, &ce) || !strings.HasPrefix(ce.Text, protocol.ErrConflict) {
		t.Fatalf("expected conflict close, got %v", err)
	}
}
