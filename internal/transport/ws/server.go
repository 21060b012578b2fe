package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"siegecraft.ai/internal/protocol"
	"siegecraft.ai/internal/sim/world"
)

type Options struct {
	// AdminToken enables operator sessions. Empty disables them.
	AdminToken string
	// OutboundQueue caps the per-session send buffer.
	OutboundQueue int
}

type Server struct {
	world     *world.World
	validator *protocol.Validator
	opts      Options
	log       *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = 64
	}
	return &Server{
		world:     w,
		validator: v,
		opts:      opts,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out := s.handshake(conn)
		if out == nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			act, code, reason := s.decodeAct(msg)
			if code != "" {
				trySend(out, actResult(act.ID, code, reason))
				continue
			}
			if act.Type == "" {
				continue
			}
			select {
			case s.world.Inbox() <- world.ActionEnvelope{PlayerID: playerID, Act: act}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.world.Leave() <- playerID
	}
}

// decodeAct validates one inbound frame. Frames that are not ACT messages are
// ignored and come back with an empty Type.
func (s *Server) decodeAct(msg []byte) (act protocol.ActMsg, code, reason string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return act, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeAct {
		return act, "", ""
	}
	// Best effort so a rejection can echo the act id.
	_ = json.Unmarshal(msg, &act)
	if base.ProtocolVersion != protocol.Version {
		return act, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	if s.validator != nil {
		if err := s.validator.ValidateAct(msg); err != nil {
			return act, protocol.ErrBadRequest, err.Error()
		}
	}
	if act.Type == "" {
		return act, protocol.ErrBadRequest, "bad act"
	}
	return act, "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (uuid.UUID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return uuid.Nil, nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return uuid.Nil, nil
	}
	if s.validator != nil {
		if err := s.validator.ValidateHello(msg); err != nil {
			closeWith(conn, protocol.ErrProtoBadRequest, "invalid HELLO")
			return uuid.Nil, nil
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest, "invalid HELLO")
		return uuid.Nil, nil
	}

	admin := false
	if hello.AdminToken != "" {
		if !s.checkAdminToken(hello.AdminToken) {
			closeWith(conn, protocol.ErrProtoAuth, "bad admin token")
			return uuid.Nil, nil
		}
		admin = true
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 || maxQ > s.opts.OutboundQueue {
		maxQ = s.opts.OutboundQueue
	}
	out := make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		PlayerID: hello.PlayerID,
		Name:     hello.PlayerName,
		Admin:    admin,
		Out:      out,
		Resp:     respCh,
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(10 * time.Second):
		closeWith(conn, protocol.ErrWorldBusy, "join timed out")
		return uuid.Nil, nil
	}
	if resp.Code != "" {
		closeWith(conn, resp.Code, resp.Err)
		return uuid.Nil, nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- uuid.MustParse(resp.Welcome.PlayerID)
		return uuid.Nil, nil
	}
	if admin {
		s.log.Printf("operator session %s (%s)", resp.Welcome.PlayerID, hello.PlayerName)
	}
	return uuid.MustParse(resp.Welcome.PlayerID), out
}

func (s *Server) checkAdminToken(got string) bool {
	if s.opts.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminToken)) == 1
}

func actResult(actID, code, msg string) []byte {
	b, _ := json.Marshal(protocol.ActResultMsg{
		Type:            protocol.TypeActResult,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		Code:            code,
		Message:         msg,
	})
	return b
}

func trySend(ch chan []byte, b []byte) {
	select {
	case ch <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, code, reason string) {
	text := code + ": " + reason
	if len(text) > 120 {
		text = text[:120]
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
