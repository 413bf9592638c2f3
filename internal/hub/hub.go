package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"collabboard/internal/router"
	"collabboard/internal/websocket"
	"collabboard/pkg/types"
)

// Hub serializes all session mutation through one goroutine. Every join,
// leave, and client event for every board flows through the run loop, which
// is the ordering guarantee: within one board, events are relayed in the
// order the loop processes them. No ordering is promised across boards.
type Hub struct {
	joinChannel     chan *joinRequest
	leaveChannel    chan *websocket.Connection
	eventChannel    chan *eventContext
	shutdownChannel chan struct{}

	router *router.Router

	running bool
	mu      sync.RWMutex
}

// joinRequest carries an admission request plus a reply channel so the
// handshake handler learns whether admission succeeded.
type joinRequest struct {
	conn   *websocket.Connection
	board  *types.Board
	result chan error
}

// eventContext pairs an inbound event with its sending connection.
type eventContext struct {
	conn  *websocket.Connection
	event *types.Event
}

// NewHub creates a hub over the given router.
func NewHub(r *router.Router) *Hub {
	return &Hub{
		joinChannel:     make(chan *joinRequest, 100),
		leaveChannel:    make(chan *websocket.Connection, 100),
		eventChannel:    make(chan *eventContext, 1000),
		shutdownChannel: make(chan struct{}),
		router:          r,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting session hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping session hub...")

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}

	return nil
}

// Join submits a connection for admission and waits for the outcome.
func (h *Hub) Join(conn *websocket.Connection, board *types.Board) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	req := &joinRequest{conn: conn, board: board, result: make(chan error, 1)}

	select {
	case h.joinChannel <- req:
	default:
		return ErrJoinChannelFull
	}

	select {
	case err := <-req.result:
		return err
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	}
}

// Leave submits a disconnect for processing. Safe to call for connections
// that were never admitted or were already removed.
func (h *Hub) Leave(conn *websocket.Connection) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.leaveChannel <- conn:
		return nil
	default:
		return ErrLeaveChannelFull
	}
}

// Submit queues an inbound client event for routing.
func (h *Hub) Submit(conn *websocket.Connection, event *types.Event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.eventChannel <- &eventContext{conn: conn, event: event}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the single event loop. Handlers run to completion without
// preemption; the one blocking admission step (board lookup) already
// happened in the handshake handler before Join was submitted.
func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	cleanupTicker := time.NewTicker(5 * time.Minute)
	defer cleanupTicker.Stop()

	for {
		select {
		case req := <-h.joinChannel:
			req.result <- h.router.HandleJoin(req.conn, req.board)

		case conn := <-h.leaveChannel:
			h.router.HandleLeave(conn)

		case evtCtx := <-h.eventChannel:
			h.router.HandleEvent(evtCtx.conn, evtCtx.event)

		case <-cleanupTicker.C:
			h.router.CleanupRateLimiter()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}
