package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"collabboard/internal/auth"
	"collabboard/internal/hub"
	"collabboard/internal/router"
	"collabboard/internal/session"
	"collabboard/internal/websocket"
	"collabboard/pkg/interfaces"
	"collabboard/pkg/types"
)

var signingKey = []byte("client-test-key")

type memoryBoardStore struct {
	mu     sync.RWMutex
	boards map[string]*types.Board
}

func (m *memoryBoardStore) CreateBoard(ctx context.Context, board *types.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[board.ID] = board
	return nil
}

func (m *memoryBoardStore) GetBoard(ctx context.Context, boardID string) (*types.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	board, exists := m.boards[boardID]
	if !exists {
		return nil, interfaces.ErrBoardNotFound
	}
	return board, nil
}

func (m *memoryBoardStore) UpdateBoard(ctx context.Context, board *types.Board) error { return nil }
func (m *memoryBoardStore) ListBoardsByCreator(ctx context.Context, creatorEmail string) ([]*types.Board, error) {
	return nil, nil
}
func (m *memoryBoardStore) DeleteBoard(ctx context.Context, boardID string) error { return nil }
func (m *memoryBoardStore) HealthCheck(ctx context.Context) error                 { return nil }
func (m *memoryBoardStore) Close() error                                          { return nil }

func startStack(t *testing.T) (serverURL string, signer *auth.Signer) {
	t.Helper()

	verifier, err := auth.NewVerifier(signingKey)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	signer, err = auth.NewSigner(signingKey)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	store := &memoryBoardStore{boards: map[string]*types.Board{
		"board-1": {
			ID:           "board-1",
			Title:        "Client test board",
			Layers:       types.DefaultLayers(),
			CreatorEmail: "host@example.com",
		},
	}}

	registry := session.NewRegistry()
	eventRouter := router.NewRouter(registry)
	sessionHub := hub.NewHub(eventRouter)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sessionHub.Start(ctx); err != nil {
		t.Fatalf("hub Start failed: %v", err)
	}

	handler := websocket.NewHandler(verifier, store, sessionHub)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		sessionHub.Stop()
		cancel()
	})

	return server.URL, signer
}

func connect(t *testing.T, serverURL string, signer *auth.Signer, email string) *Client {
	t.Helper()

	token, err := signer.Sign(auth.Identity{Email: email, Username: email})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	c := NewClient(serverURL, token, "board-1", email)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, types.DefaultLayers()); err != nil {
		t.Fatalf("Connect failed for %s: %v", email, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func layerLines(c *Client, layerID string) []types.Stroke {
	for _, layer := range c.State().Layers {
		if layer.ID == layerID {
			return layer.Lines
		}
	}
	return nil
}

func TestClient_HostDrawPropagatesToGuest(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })

	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest roster sync", func() bool { return len(guest.Participants()) == 2 })

	host.PointerDown(types.Vec{X: 1, Y: 1})
	host.PointerMove(types.Vec{X: 2, Y: 2})
	if err := host.PointerUp(); err != nil {
		t.Fatalf("PointerUp failed: %v", err)
	}

	waitUntil(t, "stroke to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 1
	})

	lines := layerLines(guest, types.HostLayerID)
	if len(lines[0].Points) != 4 {
		t.Errorf("expected 2-point stroke, got points %v", lines[0].Points)
	}
}

func TestClient_GuestNeedsGrantToDraw(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })

	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	if guest.CanDraw() {
		t.Fatal("guest must start without drawing permission")
	}

	// Local pointer input is a no-op without permission.
	guest.PointerDown(types.Vec{X: 1, Y: 1})
	guest.PointerUp()
	if len(layerLines(guest, types.GuestLayerID)) != 0 {
		t.Error("guest without permission must not draw even locally")
	}

	if err := host.GrantPermission("guest@example.com"); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}
	waitUntil(t, "grant to reach guest", func() bool { return guest.CanDraw() })

	guest.PointerDown(types.Vec{X: 1, Y: 1})
	guest.PointerMove(types.Vec{X: 5, Y: 5})
	if err := guest.PointerUp(); err != nil {
		t.Fatalf("PointerUp failed: %v", err)
	}

	waitUntil(t, "guest stroke to reach host", func() bool {
		return len(layerLines(host, types.GuestLayerID)) == 1
	})

	if err := host.RevokePermission("guest@example.com"); err != nil {
		t.Fatalf("RevokePermission failed: %v", err)
	}
	waitUntil(t, "revoke to reach guest", func() bool { return !guest.CanDraw() })
}

func TestClient_ViewportFollowsHost(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	vp := types.Viewport{Offset: types.Vec{X: 10, Y: 10}, Scale: 2}
	if err := host.UpdateViewport(vp); err != nil {
		t.Fatalf("UpdateViewport failed: %v", err)
	}

	waitUntil(t, "viewport to reach guest", func() bool {
		state := guest.State()
		return state.Viewport.Scale == 2 && state.Viewport.Offset.X == 10
	})
}

func TestClient_ClearLayerPropagates(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	host.PointerDown(types.Vec{X: 1, Y: 1})
	host.PointerUp()
	waitUntil(t, "stroke to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 1
	})

	if err := host.ClearLayer(types.HostLayerID); err != nil {
		t.Fatalf("ClearLayer failed: %v", err)
	}

	waitUntil(t, "clear to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 0
	})
	if len(layerLines(host, types.HostLayerID)) != 0 {
		t.Error("clear should apply locally on the host too")
	}
}

func TestClient_EndSessionDisconnectsGuest(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "roster sync", func() bool { return len(host.Participants()) == 2 })

	if err := host.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	select {
	case <-guest.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("guest should be disconnected by end-session")
	}
	if guest.IsConnected() {
		t.Error("guest must report disconnected after session end")
	}

	if !host.IsConnected() {
		t.Error("host must stay connected after ending the session")
	}
	waitUntil(t, "host roster shrink", func() bool { return len(host.Participants()) == 1 })
}

func TestClient_UndoIsLocal(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	host.PointerDown(types.Vec{X: 1, Y: 1})
	host.PointerUp()
	waitUntil(t, "stroke to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 1
	})

	if err := host.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if len(layerLines(host, types.HostLayerID)) != 0 {
		t.Error("undo should remove the local stroke")
	}

	// Peers converge through the follow-up draw-action relay.
	waitUntil(t, "undo to converge on guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 0
	})
}

func TestClient_GuestHostOnlyOpsStayLocalNoops(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	host.PointerDown(types.Vec{X: 1, Y: 1})
	host.PointerUp()
	waitUntil(t, "stroke to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 1
	})

	if err := guest.ClearLayer(types.HostLayerID); err != nil {
		t.Fatalf("ClearLayer send failed: %v", err)
	}
	if err := guest.UpdateViewport(types.Viewport{Offset: types.Vec{X: 9, Y: 9}, Scale: 3}); err != nil {
		t.Fatalf("UpdateViewport send failed: %v", err)
	}

	var refusals []error
	waitUntil(t, "server refusals", func() bool {
		refusals = append(refusals, guest.Errors()...)
		return len(refusals) >= 2
	})

	// The refused operations must not have touched guest state.
	if len(layerLines(guest, types.HostLayerID)) != 1 {
		t.Error("guest clear-layer must not apply locally")
	}
	if vp := guest.State().Viewport; vp.Scale != 1 || vp.Offset.X != 0 {
		t.Errorf("guest viewport must not change locally, got %+v", vp)
	}
	if len(layerLines(host, types.HostLayerID)) != 1 {
		t.Error("host layer must survive a guest's refused clear")
	}
}

func TestClient_ConcurrentDrawAndViewportSends(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "guest host sync", func() bool { return guest.Host() == "host@example.com" })

	// Drive the emitter's timer sends and direct sends at the same time;
	// frames must stay intact on the shared connection.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		host.PointerDown(types.Vec{X: 0, Y: 0})
		for i := 1; i <= 200; i++ {
			host.PointerMove(types.Vec{X: float64(i), Y: float64(i)})
		}
		if err := host.PointerUp(); err != nil {
			t.Errorf("PointerUp failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := host.UpdateViewport(types.Viewport{Offset: types.Vec{X: float64(i)}, Scale: 1}); err != nil {
				t.Errorf("UpdateViewport %d failed: %v", i, err)
			}
		}
	}()
	wg.Wait()

	waitUntil(t, "stroke to reach guest", func() bool {
		return len(layerLines(guest, types.HostLayerID)) == 1
	})
	waitUntil(t, "final viewport to reach guest", func() bool {
		return guest.State().Viewport.Offset.X == 49
	})
	if errs := guest.Errors(); len(errs) != 0 {
		t.Errorf("guest saw unexpected errors: %v", errs)
	}
}

func TestClient_CloseRacesServerDisconnect(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")
	waitUntil(t, "host designation", func() bool { return host.Host() == "host@example.com" })
	guest := connect(t, serverURL, signer, "guest@example.com")
	waitUntil(t, "roster sync", func() bool { return len(host.Participants()) == 2 })

	// Session teardown from the server and an explicit Close land together;
	// both paths settle the done channel without panicking.
	go host.EndSession()
	guest.Close()

	select {
	case <-guest.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("done channel never closed")
	}
	if err := guest.Close(); err != nil {
		t.Errorf("repeated Close should be a no-op, got %v", err)
	}
}

func TestClient_ConnectTwiceRejected(t *testing.T) {
	serverURL, signer := startStack(t)

	host := connect(t, serverURL, signer, "host@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := host.Connect(ctx, nil); err != ErrAlreadyConnected {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestClient_SendWithoutConnect(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "token", "board-1", "x@example.com")

	if err := c.GrantPermission("y@example.com"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
