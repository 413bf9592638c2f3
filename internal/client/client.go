package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabboard/internal/canvas"
	"collabboard/pkg/types"
)

// Client is a board participant over the realtime channel. It maintains a
// local canvas state machine, reconciles peer events into it, and coalesces
// outgoing draw traffic through a DrawEmitter. All exported methods are safe
// for concurrent use.
type Client struct {
	serverURL string
	token     string
	boardID   string
	identity  string

	conn    *websocket.Conn
	emitter *canvas.DrawEmitter

	// Serializes writes: gorilla permits one concurrent writer, and the
	// emitter's timer goroutine sends alongside caller goroutines.
	writeMu sync.Mutex

	mu           sync.RWMutex
	state        canvas.State
	host         string
	canDraw      bool
	participants []types.Participant
	connected    bool
	closed       bool
	endReason    string

	errors   chan error
	done     chan struct{}
	doneOnce sync.Once

	// Called from the read loop after each applied event. Optional.
	OnStateChange func(canvas.State)
}

// NewClient creates a client for one board. identity must match the email
// claim inside token; it is used to skip echoes of our own broadcasts.
func NewClient(serverURL, token, boardID, identity string) *Client {
	c := &Client{
		serverURL: serverURL,
		token:     token,
		boardID:   boardID,
		identity:  identity,
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	c.emitter = canvas.NewDrawEmitter(c.sendDrawAction, canvas.DefaultEmitInterval)
	return c
}

// Connect dials the realtime endpoint and starts the read loop. The local
// canvas state is initialized from the board layers once host-updated
// arrives; until then the client assumes the guest layer.
func (c *Client) Connect(ctx context.Context, layers []types.Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if c.closed {
		return ErrNotConnected
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	query := u.Query()
	query.Set("token", c.token)
	query.Set("boardId", c.boardID)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.state = canvas.NewState(c.identity, false, layers)

	go c.readLoop()

	return nil
}

// readLoop reads events off the wire and applies them to the canvas state
// until the connection drops or the session ends.
func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.doneOnce.Do(func() { close(c.done) })
	}()

	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()

		if closed || conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var event types.Event
		if err := conn.ReadJSON(&event); err != nil {
			c.mu.RLock()
			stillClosed := c.closed
			c.mu.RUnlock()
			if !stillClosed {
				select {
				case c.errors <- fmt.Errorf("read error: %w", err):
				default:
				}
			}
			return
		}

		if c.applyEvent(&event) {
			return
		}
	}
}

// applyEvent folds one server event into local state. Returns true when the
// event terminates the session.
func (c *Client) applyEvent(event *types.Event) bool {
	c.mu.Lock()

	switch event.Type {
	case types.EventParticipantsUpdated:
		var participants []types.Participant
		if json.Unmarshal(event.Payload, &participants) == nil {
			c.participants = participants
		}

	case types.EventHostUpdated:
		var payload types.HostUpdatedPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			c.host = payload.Host
			c.state = canvas.NewStateFrom(c.state, c.identity == payload.Host)
		}

	case types.EventPermissionUpdated:
		var payload types.PermissionUpdatedPayload
		if json.Unmarshal(event.Payload, &payload) == nil && payload.Email == c.identity {
			c.canDraw = payload.CanDraw
		}

	case types.EventDrawAction:
		var payload types.DrawActionPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			c.state = canvas.Reduce(c.state, canvas.RemoteDraw{
				LayerID: payload.LayerID,
				Lines:   payload.Lines,
				Email:   payload.Email,
			})
		}

	case types.EventClearLayer:
		var payload types.ClearLayerPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			c.state = canvas.Reduce(c.state, canvas.RemoteClear{LayerID: payload.LayerID})
		}

	case types.EventViewportUpdate:
		var payload types.ViewportUpdatePayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			c.state = canvas.Reduce(c.state, canvas.RemoteViewport{
				Viewport: types.Viewport{Offset: payload.Offset, Scale: payload.Scale},
			})
		}

	case types.EventSessionEnded:
		var payload types.ErrorPayload
		json.Unmarshal(event.Payload, &payload)
		c.endReason = payload.Message
		c.mu.Unlock()
		c.notifyStateChange()
		c.Close()
		return true

	case types.EventError:
		var payload types.ErrorPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			select {
			case c.errors <- fmt.Errorf("server error: %s", payload.Message):
			default:
			}
		}

	case types.EventUserJoined, types.EventUserLeft:
		// Roster changes arrive via participants-updated; nothing extra.
	}

	c.mu.Unlock()
	c.notifyStateChange()
	return false
}

func (c *Client) notifyStateChange() {
	if c.OnStateChange == nil {
		return
	}
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	c.OnStateChange(state)
}

// PointerDown starts a stroke or erase drag at a screen-space position.
func (c *Client) PointerDown(pos types.Vec) {
	c.applyLocalDraw(canvas.PointerDown{Pos: pos})
}

// PointerMove extends the gesture in progress. The resulting layer contents
// are staged on the emitter; the wire sees at most one update per interval.
func (c *Client) PointerMove(pos types.Vec) {
	c.applyLocalDraw(canvas.PointerMove{Pos: pos})
}

// PointerUp commits the stroke and flushes the emitter so peers always see
// the final geometry.
func (c *Client) PointerUp() error {
	c.applyLocalDraw(canvas.PointerUp{})
	return c.emitter.Flush()
}

// applyLocalDraw reduces a local pointer action and stages the active
// layer's contents for emission.
func (c *Client) applyLocalDraw(action canvas.Action) {
	c.mu.Lock()
	if !c.canDrawLocked() {
		c.mu.Unlock()
		return
	}
	c.state = canvas.Reduce(c.state, action)
	layer, ok := c.state.ActiveLayer()
	c.mu.Unlock()

	if ok {
		c.emitter.Offer(types.DrawActionPayload{
			LayerID: layer.ID,
			Lines:   layer.Lines,
		})
	}
	c.notifyStateChange()
}

func (c *Client) canDrawLocked() bool {
	return c.canDraw || c.host == c.identity
}

// SetTool switches between pen and eraser.
func (c *Client) SetTool(tool canvas.Tool) {
	c.reduceLocal(canvas.SetTool{Tool: tool})
}

// SetColor changes the pen color.
func (c *Client) SetColor(color string) {
	c.reduceLocal(canvas.SetColor{Color: color})
}

// SetBrushWidth changes the brush width.
func (c *Client) SetBrushWidth(width float64) {
	c.reduceLocal(canvas.SetBrushWidth{Width: width})
}

// Undo reverts the last local stroke or clear. Never broadcast as a
// distinct event; peers converge through the next draw-action.
func (c *Client) Undo() error {
	c.reduceLocal(canvas.Undo{})
	return c.emitActiveLayer()
}

// Redo reapplies the last undone change.
func (c *Client) Redo() error {
	c.reduceLocal(canvas.Redo{})
	return c.emitActiveLayer()
}

func (c *Client) reduceLocal(action canvas.Action) {
	c.mu.Lock()
	c.state = canvas.Reduce(c.state, action)
	c.mu.Unlock()
	c.notifyStateChange()
}

func (c *Client) emitActiveLayer() error {
	c.mu.RLock()
	layer, ok := c.state.ActiveLayer()
	canDraw := c.canDrawLocked()
	c.mu.RUnlock()

	if !ok || !canDraw {
		return nil
	}
	c.emitter.Offer(types.DrawActionPayload{LayerID: layer.ID, Lines: layer.Lines})
	return c.emitter.Flush()
}

// ClearLayer asks the server to clear a layer. Host only: the host applies
// it locally right away (the server's echo broadcast is then a no-op), while
// a guest's request is refused with no local effect, so the guest never
// diverges from the broadcast state.
func (c *Client) ClearLayer(layerID string) error {
	c.reduceAsHost(canvas.ClearLayer{LayerID: layerID})
	return c.sendEvent(types.EventClearLayer, types.ClearLayerPayload{LayerID: layerID})
}

// UpdateViewport broadcasts a pan/zoom. Host only; applied locally only on
// the host since viewport relays exclude the sender.
func (c *Client) UpdateViewport(vp types.Viewport) error {
	c.reduceAsHost(canvas.SetViewport{Viewport: vp})
	return c.sendEvent(types.EventViewportUpdate, types.ViewportUpdatePayload{
		Offset: vp.Offset,
		Scale:  vp.Scale,
	})
}

// reduceAsHost applies a host-only mutation locally, but only when this
// client is the host; otherwise the server refuses the event and the local
// state must stay untouched.
func (c *Client) reduceAsHost(action canvas.Action) {
	c.mu.Lock()
	if c.host != c.identity {
		c.mu.Unlock()
		return
	}
	c.state = canvas.Reduce(c.state, action)
	c.mu.Unlock()
	c.notifyStateChange()
}

// GrantPermission asks the server to let email draw. Host only.
func (c *Client) GrantPermission(email string) error {
	return c.sendEvent(types.EventGrantPermission, types.PermissionChangePayload{
		BoardID: c.boardID,
		Email:   email,
	})
}

// RevokePermission asks the server to stop email from drawing. Host only.
func (c *Client) RevokePermission(email string) error {
	return c.sendEvent(types.EventRevokePermission, types.PermissionChangePayload{
		BoardID: c.boardID,
		Email:   email,
	})
}

// EndSession asks the server to terminate the session for everyone. Host
// only; the caller stays connected and the session state resets around them.
func (c *Client) EndSession() error {
	return c.sendEvent(types.EventEndSession, types.EndSessionPayload{BoardID: c.boardID})
}

// sendDrawAction delivers a coalesced payload from the emitter.
func (c *Client) sendDrawAction(payload types.DrawActionPayload) error {
	return c.sendEvent(types.EventDrawAction, payload)
}

func (c *Client) sendEvent(eventType string, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(event); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

// State returns a snapshot of the local canvas state.
func (c *Client) State() canvas.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Host returns the current session host identity.
func (c *Client) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// CanDraw reports whether this client may draw right now.
func (c *Client) CanDraw() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canDrawLocked()
}

// Participants returns the current roster in admission order.
func (c *Client) Participants() []types.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	roster := make([]types.Participant, len(c.participants))
	copy(roster, c.participants)
	return roster
}

// IsConnected reports whether the realtime channel is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && !c.closed
}

// EndReason returns the message delivered with session-ended, if any.
func (c *Client) EndReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endReason
}

// Errors drains accumulated read and server errors.
func (c *Client) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-c.errors:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Done is closed once the connection is gone for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close flushes pending draw traffic and closes the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.emitter.Close()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(1 * time.Second))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	c.doneOnce.Do(func() { close(c.done) })

	return nil
}
