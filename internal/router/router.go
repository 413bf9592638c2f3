package router

import (
	"log"
	"sync"

	"collabboard/internal/session"
	"collabboard/internal/websocket"
	"collabboard/pkg/types"
)

// Router validates inbound events against the permission model and relays
// them to the right subset of a board's connections. Authorization failures
// are signaled to the offending connection only; the relay is suppressed and
// session state stays untouched.
//
// The hub invokes the Handle* methods from its single event loop, which is
// what gives one board's events their processing order.
type Router struct {
	registry    *session.Registry
	rateLimiter *RateLimiter

	mu    sync.RWMutex
	conns map[string]map[string]*websocket.Connection // boardID -> connID -> conn
}

// NewRouter creates an event router over the given session registry.
func NewRouter(registry *session.Registry) *Router {
	return &Router{
		registry:    registry,
		rateLimiter: NewRateLimiter(),
		conns:       make(map[string]map[string]*websocket.Connection),
	}
}

// HandleJoin admits a connection into its board's session and runs the
// admission broadcast sequence: host designation on first join, personalized
// state to the newcomer, then a full participant and permission re-sync to
// every peer (an identity takeover may have changed what peers believe).
func (r *Router) HandleJoin(conn *websocket.Connection, board *types.Board) error {
	boardID := conn.BoardID()

	result, err := r.registry.Admit(boardID, conn.Email(), conn.Username(), conn.ID(), board.CreatorEmail)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.conns[boardID] == nil {
		r.conns[boardID] = make(map[string]*websocket.Connection)
	}
	var evicted *websocket.Connection
	if result.EvictedConnID != "" {
		evicted = r.conns[boardID][result.EvictedConnID]
		delete(r.conns[boardID], result.EvictedConnID)
	}
	r.conns[boardID][conn.ID()] = conn
	r.mu.Unlock()

	if evicted != nil {
		// Close asynchronously; the stale read pump's Leave finds the
		// registry entry already replaced and becomes a no-op.
		go func() {
			if err := evicted.Close(); err != nil {
				log.Printf("Failed to close evicted connection: %v", err)
			}
		}()
	}

	conn.Activate()

	if result.IsNewSession {
		r.broadcast(boardID, types.EventHostUpdated, types.HostUpdatedPayload{Host: result.Host})
	}

	r.sendTo(conn, types.EventParticipantsUpdated, result.Participants)
	r.sendTo(conn, types.EventPermissionUpdated, types.PermissionUpdatedPayload{
		Email:   conn.Email(),
		CanDraw: result.CanDraw,
	})
	r.sendTo(conn, types.EventHostUpdated, types.HostUpdatedPayload{Host: result.Host})

	r.broadcastExcept(boardID, conn.ID(), types.EventUserJoined, types.Participant{
		Email:    conn.Email(),
		Username: conn.Username(),
	})

	r.broadcast(boardID, types.EventParticipantsUpdated, result.Participants)
	for _, p := range result.Participants {
		r.broadcast(boardID, types.EventPermissionUpdated, types.PermissionUpdatedPayload{
			Email:   p.Email,
			CanDraw: r.registry.PermissionFor(boardID, p.Email),
		})
	}

	log.Printf("Connection admitted: board=%s user=%s conn=%s", boardID, conn.Email(), conn.ID())
	return nil
}

// HandleLeave removes a connection from its session. Peers learn about the
// departure only through user-left and the refreshed participant list.
func (r *Router) HandleLeave(conn *websocket.Connection) {
	boardID := conn.BoardID()
	if boardID == "" {
		return // never admitted
	}

	r.mu.Lock()
	if board, ok := r.conns[boardID]; ok {
		if board[conn.ID()] == conn {
			delete(board, conn.ID())
		}
		if len(board) == 0 {
			delete(r.conns, boardID)
		}
	}
	r.mu.Unlock()

	result := r.registry.Remove(boardID, conn.ID())
	if result.Removed == nil || result.TornDown {
		return
	}

	r.broadcast(boardID, types.EventUserLeft, result.Removed.Email)
	r.broadcast(boardID, types.EventParticipantsUpdated, result.Participants)
	log.Printf("Connection removed: board=%s user=%s", boardID, result.Removed.Email)
}

// HandleEvent validates and routes one inbound client event.
func (r *Router) HandleEvent(conn *websocket.Connection, event *types.Event) {
	if err := event.Validate(); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}

	if !r.rateLimiter.Allow(conn.Email()) {
		r.sendError(conn, msgRateLimited)
		return
	}

	switch event.Type {
	case types.EventDrawAction:
		r.handleDrawAction(conn, event)
	case types.EventViewportUpdate:
		r.handleViewportUpdate(conn, event)
	case types.EventClearLayer:
		r.handleClearLayer(conn, event)
	case types.EventGrantPermission:
		r.handlePermissionChange(conn, event, true)
	case types.EventRevokePermission:
		r.handlePermissionChange(conn, event, false)
	case types.EventEndSession:
		r.handleEndSession(conn)
	}
}

// handleDrawAction relays a layer's stroke list to everyone else in the
// session, stamped with the sender identity. Drawing requires permission and
// the sender's own layer: host on the host layer, guests on the guest layer.
func (r *Router) handleDrawAction(conn *websocket.Connection, event *types.Event) {
	var payload types.DrawActionPayload
	if err := event.DecodePayload(&payload); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}
	if err := payload.Validate(); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}

	boardID := conn.BoardID()
	if !r.registry.CanDraw(boardID, conn.Email()) {
		r.sendError(conn, msgNoDrawPermission)
		return
	}

	isHost := r.registry.CanAdminister(boardID, conn.Email())
	if isHost && payload.LayerID != types.HostLayerID {
		r.sendError(conn, msgWrongLayerHost)
		return
	}
	if !isHost && payload.LayerID != types.GuestLayerID {
		r.sendError(conn, msgWrongLayerGuest)
		return
	}

	payload.Email = conn.Email()
	r.broadcastExcept(boardID, conn.ID(), types.EventDrawAction, payload)
}

// handleViewportUpdate relays the host's pan/zoom state to every guest.
func (r *Router) handleViewportUpdate(conn *websocket.Connection, event *types.Event) {
	var payload types.ViewportUpdatePayload
	if err := event.DecodePayload(&payload); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}
	if err := payload.Validate(); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}

	if !r.registry.CanAdminister(conn.BoardID(), conn.Email()) {
		r.sendError(conn, msgHostOnlyViewport)
		return
	}

	r.broadcastExcept(conn.BoardID(), conn.ID(), types.EventViewportUpdate, payload)
}

// handleClearLayer relays a clear to the whole session, sender included, so
// every replica (including the host's own) applies the same transition.
func (r *Router) handleClearLayer(conn *websocket.Connection, event *types.Event) {
	var payload types.ClearLayerPayload
	if err := event.DecodePayload(&payload); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}
	if err := payload.Validate(); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}

	if !r.registry.CanAdminister(conn.BoardID(), conn.Email()) {
		r.sendError(conn, msgHostOnlyClear)
		return
	}

	r.broadcast(conn.BoardID(), types.EventClearLayer, payload)
}

// handlePermissionChange applies a grant or revoke and broadcasts the new
// permission status to the entire session.
func (r *Router) handlePermissionChange(conn *websocket.Connection, event *types.Event, grant bool) {
	var payload types.PermissionChangePayload
	if err := event.DecodePayload(&payload); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}
	if err := payload.Validate(); err != nil {
		r.sendError(conn, msgInvalidPayload)
		return
	}

	boardID := conn.BoardID()
	var err error
	if grant {
		err = r.registry.Grant(boardID, conn.Email(), payload.Email)
	} else {
		err = r.registry.Revoke(boardID, conn.Email(), payload.Email)
	}

	switch err {
	case nil:
	case session.ErrUnauthorized:
		if grant {
			r.sendError(conn, msgHostOnlyGrant)
		} else {
			r.sendError(conn, msgHostOnlyRevoke)
		}
		return
	case session.ErrCannotRevokeHost:
		r.sendError(conn, msgHostNotRevocable)
		return
	default:
		log.Printf("Permission change failed: board=%s target=%s: %v", boardID, payload.Email, err)
		r.sendError(conn, msgInvalidPayload)
		return
	}

	r.broadcast(boardID, types.EventPermissionUpdated, types.PermissionUpdatedPayload{
		Email:   payload.Email,
		CanDraw: grant,
	})
}

// handleEndSession force-closes every non-host connection with a
// session-ended signal and rebroadcasts the participant list. The session
// itself survives with the host connected.
func (r *Router) handleEndSession(conn *websocket.Connection) {
	boardID := conn.BoardID()

	removed, err := r.registry.EndSession(boardID, conn.Email())
	switch err {
	case nil:
	case session.ErrSessionNotFound:
		r.sendError(conn, msgUnknownSession)
		return
	default:
		r.sendError(conn, msgHostOnlyEnd)
		return
	}

	r.mu.Lock()
	var closing []*websocket.Connection
	if board, ok := r.conns[boardID]; ok {
		for _, id := range removed {
			if c, exists := board[id]; exists {
				closing = append(closing, c)
				delete(board, id)
			}
		}
	}
	r.mu.Unlock()

	ended, eventErr := types.NewEvent(types.EventSessionEnded, nil)
	for _, c := range closing {
		if eventErr == nil {
			if err := c.WriteJSON(ended); err != nil {
				log.Printf("Failed to deliver session-ended to %s: %v", c.Email(), err)
			}
		}
		if err := c.Close(); err != nil {
			log.Printf("Failed to close connection for %s: %v", c.Email(), err)
		}
	}

	r.broadcast(boardID, types.EventParticipantsUpdated, r.registry.Participants(boardID))
	log.Printf("Session ended: board=%s host=%s disconnected=%d", boardID, conn.Email(), len(closing))
}

// CleanupRateLimiter drops stale per-identity rate limit windows.
func (r *Router) CleanupRateLimiter() {
	r.rateLimiter.Cleanup()
}

// broadcast delivers an event to every connection in a board's session.
// Delivery continues past individual write failures.
func (r *Router) broadcast(boardID, eventType string, payload interface{}) {
	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", eventType, err)
		return
	}

	for _, c := range r.sessionConnections(boardID) {
		if err := c.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", eventType, c.Email(), err)
		}
	}
}

// broadcastExcept delivers an event to every connection except one.
func (r *Router) broadcastExcept(boardID, exceptConnID, eventType string, payload interface{}) {
	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", eventType, err)
		return
	}

	for _, c := range r.sessionConnections(boardID) {
		if c.ID() == exceptConnID {
			continue
		}
		if err := c.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", eventType, c.Email(), err)
		}
	}
}

func (r *Router) sendTo(conn *websocket.Connection, eventType string, payload interface{}) {
	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", eventType, err)
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", eventType, conn.Email(), err)
	}
}

func (r *Router) sendError(conn *websocket.Connection, message string) {
	r.sendTo(conn, types.EventError, types.ErrorPayload{Message: message})
}

func (r *Router) sessionConnections(boardID string) []*websocket.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	board, ok := r.conns[boardID]
	if !ok {
		return nil
	}
	conns := make([]*websocket.Connection, 0, len(board))
	for _, c := range board {
		conns = append(conns, c)
	}
	return conns
}
