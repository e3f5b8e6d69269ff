// Package gamehub wires the duplex websocket transport and HTTP routes
// to the session runtime in internal/session. It is a connection
// registry addressed by 6-digit quiz pin.
package gamehub

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/nullhaven/quizhost/internal/quiz"
	"github.com/nullhaven/quizhost/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts a gorilla websocket connection to session.Conn.
type wsConn struct {
	conn *websocket.Conn
	send chan any
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c, send: make(chan any, 16)}
}

// Send enqueues a message for delivery. A full buffer means this
// connection is stalled; rather than block the session's single
// serialization goroutine, the connection is torn down.
func (c *wsConn) Send(v any) {
	select {
	case c.send <- v:
	default:
		go c.conn.Close()
	}
}

func (c *wsConn) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// record is the connection-local {session, role, participantId}
// binding: it lives only in the goroutine that owns this one websocket
// connection, never in a shared map, so a session reap never leaves a
// dangling handle.
type record struct {
	sess          *session.Session
	role          string // "", "host", or "player"
	participantID string
}

// Hub dispatches incoming websocket connections to the session named
// by their pin. It holds no per-connection state of its own; the
// directory is the only shared structure.
type Hub struct {
	dir     *session.Directory
	verbose bool
}

func NewHub(dir *session.Directory, verbose bool) *Hub {
	return &Hub{dir: dir, verbose: verbose}
}

// ServeWS upgrades the connection and runs its read pump for the
// session named by the :pin URL parameter.
func (h *Hub) ServeWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")
		if !session.ValidPin(pin) {
			http.Error(w, "invalid pin", http.StatusBadRequest)
			return
		}

		sess, ok := h.dir.Lookup(pin)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if h.verbose {
				log.Println("upgrade error:", err)
			}
			return
		}

		// A little slack over MaxFrameBytes so oversized frames surface
		// as a read error instead of being buffered in full; the exact
		// byte-length check still happens per message in readPump.
		conn.SetReadLimit(session.MaxFrameBytes + 256)

		c := newWSConn(conn)
		go c.writePump()

		h.readPump(&record{sess: sess}, c)
	}
}

func (h *Hub) readPump(rec *record, c *wsConn) {
	defer func() {
		disconnect(rec)
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if len(data) > session.MaxFrameBytes {
			c.Send(session.NewError("message too large"))
			continue
		}

		msg, ok := session.DecodeFrame(data)
		if !ok {
			continue // malformed frame or bad pin, silently dropped
		}

		dispatch(rec, c, msg)
	}
}

func dispatch(rec *record, c *wsConn, msg session.ClientMessage) {
	switch msg.Type {
	case session.TypeHostJoin:
		if rec.role != "" {
			return
		}
		if rec.sess.HostJoin(c) {
			rec.role = "host"
		}

	case session.TypePlayerJoin:
		if rec.role != "" {
			return
		}
		result := rec.sess.PlayerJoin(c, msg.Name, newParticipantID)
		if result.Err == "" {
			rec.role = "player"
			rec.participantID = result.ParticipantID
		}

	case session.TypeStartGame:
		if rec.role == "host" {
			rec.sess.StartGame()
		}

	case session.TypeNextQuestion:
		if rec.role == "host" {
			rec.sess.NextQuestion()
		}

	case session.TypeEndGame:
		if rec.role == "host" {
			rec.sess.EndGame()
		}

	case session.TypeAnswer:
		if rec.role != "player" {
			return
		}
		sel, ok := decodeSelection(msg.Answer)
		if !ok {
			return
		}
		final := msg.Final != nil && *msg.Final
		rec.sess.Answer(rec.participantID, sel, final)
	}
}

func disconnect(rec *record) {
	switch rec.role {
	case "host":
		rec.sess.HostDisconnected()
	case "player":
		if rec.participantID != "" {
			rec.sess.PlayerDisconnected(rec.participantID)
		}
	}
}

// decodeSelection accepts either a bare index (single-choice) or an
// array of indices (multi-choice).
func decodeSelection(raw json.RawMessage) (quiz.Selection, bool) {
	if len(raw) == 0 {
		return quiz.Selection{}, false
	}

	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return quiz.Selection{Single: single}, true
	}

	var multi []int
	if err := json.Unmarshal(raw, &multi); err == nil {
		return quiz.Selection{Multi: multi}, true
	}

	return quiz.Selection{}, false
}

var participantSeq uint64

// newParticipantID mints an opaque per-session participant id,
// server-side per join rather than carried in a cookie, since a
// disconnected participant cannot resume their identity.
func newParticipantID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	n := atomic.AddUint64(&participantSeq, 1)
	return fmt.Sprintf("%x%x", buf, n)
}
