package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"collabboard/internal/auth"
	"collabboard/pkg/interfaces"
	"collabboard/pkg/types"
)

// Upgrader shared across handler instances. Origin checking is permissive;
// deployments put a reverse proxy with origin rules in front.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// SessionHub accepts connection lifecycle events and inbound client events
// for serialized processing.
type SessionHub interface {
	Join(conn *Connection, board *types.Board) error
	Leave(conn *Connection) error
	Submit(conn *Connection, event *types.Event) error
}

// Handler performs the realtime channel handshake: credential verification,
// board lookup, admission, then the per-connection read pump.
type Handler struct {
	verifier *auth.Verifier
	store    interfaces.BoardStore
	hub      SessionHub
}

// NewHandler creates a websocket handler with its dependencies.
func NewHandler(verifier *auth.Verifier, store interfaces.BoardStore, hub SessionHub) *Handler {
	return &Handler{
		verifier: verifier,
		store:    store,
		hub:      hub,
	}
}

// HandleWebSocket admits a connection for a board. Handshake failures emit a
// single error event and close the connection without touching session state:
// the Connecting -> Closed transition of the lifecycle.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(raw)

	token := r.URL.Query().Get("token")
	boardID := r.URL.Query().Get("boardId")
	if token == "" || boardID == "" {
		h.reject(conn, "Missing token or boardId")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.reject(conn, "Invalid token")
		return
	}

	// The one blocking lookup of the admission path, done before any
	// session mutation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	board, err := h.store.GetBoard(ctx, boardID)
	cancel()
	if err != nil {
		if err == interfaces.ErrBoardNotFound {
			h.reject(conn, "Invalid board ID")
		} else {
			log.Printf("Board lookup failed during admission: %v", err)
			h.reject(conn, "Server error")
		}
		return
	}

	conn.SetCredentials(identity.Email, identity.Username, boardID)

	if err := h.hub.Join(conn, board); err != nil {
		log.Printf("Admission failed for %s on board %s: %v", identity.Email, boardID, err)
		h.reject(conn, "Server error")
		return
	}

	go h.handleConnection(conn)
}

// reject emits a terminal error event and closes the connection.
func (h *Handler) reject(conn *Connection, message string) {
	event, err := types.NewEvent(types.EventError, types.ErrorPayload{Message: message})
	if err == nil {
		_ = conn.WriteJSON(event)
	}
	_ = conn.Close()
}

// handleConnection runs the read pump with heartbeat monitoring. Any read
// error, including a dropped transport, is treated as an explicit disconnect.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		_ = h.hub.Leave(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for %s: %v", conn.Email(), err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			// Malformed payloads are dropped; only the sender hears about it.
			h.sendError(conn, "Malformed event payload")
			continue
		}

		if err := h.hub.Submit(conn, &event); err != nil {
			h.sendError(conn, "Server is busy, event dropped")
		}
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	event, err := types.NewEvent(types.EventError, types.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to send error event to %s: %v", conn.Email(), err)
	}
}
