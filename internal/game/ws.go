package game

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"example.com/degenpizza/internal/auth"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
)

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{ws: ws, send: make(chan []byte, 64)}
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// trySend drops the message when the client is not keeping up.
func (c *ClientConn) trySend(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *ClientConn) sendEnvelope(env Envelope) {
	b, _ := json.Marshal(env)
	c.trySend(b)
}

func (c *ClientConn) sendError(err error) {
	c.sendEnvelope(Envelope{
		Type:    "error",
		Payload: mustJSON(ErrorPayload{Code: CodeOf(err), Message: err.Error()}),
	})
}

func (c *ClientConn) writeLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.WriteMessage(websocket.TextMessage, msg)
		case <-ticker.C:
			_ = c.ws.WriteMessage(websocket.PingMessage, []byte{})
		}
	}
}

// Hub fans state changes out to every connected client. A client is removed
// before it is closed, so Broadcast never writes to a closed channel.
type Hub struct {
	mu      sync.Mutex
	clients map[*ClientConn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*ClientConn]struct{})}
}

func (h *Hub) add(c *ClientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *ClientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) Broadcast(env Envelope) {
	b, _ := json.Marshal(env)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.trySend(b)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleWS streams game state and accepts player actions.
// A token may come as "Authorization: Bearer ..." or in an auth message;
// without one the connection is read-only.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	if h := r.Header.Get("Authorization"); h != "" {
		c, err := s.verifier.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", "err", err)
		return
	}
	cc := newClientConn(ws)
	go cc.writeLoop()

	hub := s.svc.Hub()
	hub.add(cc)
	cc.sendEnvelope(Envelope{Type: "state", Payload: mustJSON(s.svc.Coordinator().Snapshot())})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "bad_json", Message: "invalid json"})})
			continue
		}
		if env.Type == "auth" {
			var p AuthPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "bad_input", Message: "invalid payload"})})
				continue
			}
			c, err := s.verifier.Verify(p.Token)
			if err != nil {
				cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "unauthorized", Message: "invalid token"})})
				continue
			}
			claims = c
			cc.sendEnvelope(Envelope{Type: "authenticated", Payload: mustJSON(map[string]string{"address": c.Address.Hex()})})
			continue
		}
		s.dispatch(r.Context(), cc, claims, env)
	}

	hub.remove(cc)
	cc.Close()
}

func (s *Server) dispatch(ctx context.Context, cc *ClientConn, claims *auth.Claims, env Envelope) {
	coord := s.svc.Coordinator()

	if env.Type == "state" {
		cc.sendEnvelope(Envelope{Type: "state", Payload: mustJSON(coord.Snapshot())})
		return
	}
	if claims == nil {
		cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "unauthorized", Message: "authenticate first"})})
		return
	}
	player := claims.Address

	badInput := func(err error) {
		cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "bad_input", Message: err.Error()})})
	}

	var err error
	switch env.Type {
	case "join":
		var p JoinPayload
		if derr := json.Unmarshal(env.Payload, &p); derr != nil {
			badInput(derr)
			return
		}
		err = coord.Join(ctx, player, p.Stake)
	case "leave":
		var refund *uint256.Int
		if refund, err = coord.Leave(ctx, player); err == nil {
			cc.sendEnvelope(Envelope{Type: "left", Payload: mustJSON(map[string]any{"refunded": refund})})
		}
	case "commit":
		var p CommitPayload
		if derr := json.Unmarshal(env.Payload, &p); derr != nil {
			badInput(derr)
			return
		}
		err = coord.Commit(ctx, player, p.Hash)
	case "reveal":
		var p RevealPayload
		if derr := json.Unmarshal(env.Payload, &p); derr != nil {
			badInput(derr)
			return
		}
		err = coord.Reveal(ctx, player, p.Salt, p.Ingredients)
	default:
		cc.sendEnvelope(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: "unknown_type", Message: "unknown message type"})})
		return
	}
	if err != nil {
		cc.sendError(err)
	}
}
