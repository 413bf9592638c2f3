package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"collabboard/pkg/types"
)

// wsPair upgrades a loopback connection and returns both ends.
func wsPair(t *testing.T) (*Connection, *gorilla.Conn) {
	t.Helper()

	serverSide := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- NewConnection(raw)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case conn := <-serverSide:
		t.Cleanup(func() { conn.Close() })
		return conn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server-side connection")
		return nil, nil
	}
}

func TestConnection_LifecycleStates(t *testing.T) {
	conn, _ := wsPair(t)

	if conn.State() != StateConnecting {
		t.Errorf("new connection should be Connecting, got %v", conn.State())
	}
	if conn.IsAdmitted() {
		t.Error("new connection must not be admitted")
	}

	conn.SetCredentials("user@example.com", "User", "board-1")
	if conn.State() != StateAdmitted {
		t.Errorf("expected Admitted, got %v", conn.State())
	}
	if conn.Email() != "user@example.com" || conn.BoardID() != "board-1" {
		t.Error("credentials should be recorded")
	}

	conn.Activate()
	if conn.State() != StateActive {
		t.Errorf("expected Active, got %v", conn.State())
	}

	conn.Close()
	if conn.State() != StateClosed {
		t.Errorf("expected Closed, got %v", conn.State())
	}
}

func TestConnection_ActivateRequiresAdmission(t *testing.T) {
	conn, _ := wsPair(t)

	conn.Activate()
	if conn.State() != StateConnecting {
		t.Error("Activate before admission must not change state")
	}
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	conn, client := wsPair(t)

	event, _ := types.NewEvent(types.EventHostUpdated, types.HostUpdatedPayload{Host: "h@example.com"})
	if err := conn.WriteJSON(event); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received types.Event
	if err := client.ReadJSON(&received); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if received.Type != types.EventHostUpdated {
		t.Errorf("expected host-updated, got %q", received.Type)
	}
}

func TestConnection_CloseFlushesQueuedWrites(t *testing.T) {
	// Terminal events are queued immediately before Close; none may be lost.
	for i := 0; i < 20; i++ {
		conn, client := wsPair(t)

		event, _ := types.NewEvent(types.EventSessionEnded, nil)
		if err := conn.WriteJSON(event); err != nil {
			t.Fatalf("iteration %d: WriteJSON failed: %v", i, err)
		}
		conn.Close()

		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var received types.Event
		if err := client.ReadJSON(&received); err != nil {
			t.Fatalf("iteration %d: event queued before Close was lost: %v", i, err)
		}
		if received.Type != types.EventSessionEnded {
			t.Fatalf("iteration %d: expected session-ended, got %q", i, received.Type)
		}

		if _, _, err := client.ReadMessage(); !gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
			t.Fatalf("iteration %d: expected a normal close frame, got %v", i, err)
		}
	}
}

func TestConnection_WriteAfterCloseFails(t *testing.T) {
	conn, _ := wsPair(t)

	conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "x"}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn, _ := wsPair(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	a, _ := wsPair(t)
	b, _ := wsPair(t)

	if a.ID() == b.ID() {
		t.Error("connections must have unique IDs")
	}
	if a.ID() == "" {
		t.Error("connection ID must not be empty")
	}
}
