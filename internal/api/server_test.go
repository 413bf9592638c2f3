package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"collabboard/internal/auth"
	"collabboard/pkg/interfaces"
	"collabboard/pkg/types"
)

var testKey = []byte("api-test-key")

// Mock BoardStore for API tests.
type mockBoardStore struct {
	mu     sync.RWMutex
	boards map[string]*types.Board

	shouldFailHealth bool
}

func newMockBoardStore() *mockBoardStore {
	return &mockBoardStore{boards: make(map[string]*types.Board)}
}

func (m *mockBoardStore) CreateBoard(ctx context.Context, board *types.Board) error {
	if board.ID == "" {
		board.ID = "board-" + board.Title
	}
	if board.Layers == nil {
		board.Layers = types.DefaultLayers()
	}
	if err := board.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[board.ID] = board
	return nil
}

func (m *mockBoardStore) GetBoard(ctx context.Context, boardID string) (*types.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	board, exists := m.boards[boardID]
	if !exists {
		return nil, interfaces.ErrBoardNotFound
	}
	return board, nil
}

func (m *mockBoardStore) UpdateBoard(ctx context.Context, board *types.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.boards[board.ID]; !exists {
		return interfaces.ErrBoardNotFound
	}
	m.boards[board.ID] = board
	return nil
}

func (m *mockBoardStore) ListBoardsByCreator(ctx context.Context, creatorEmail string) ([]*types.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var boards []*types.Board
	for _, board := range m.boards {
		if board.CreatorEmail == creatorEmail {
			boards = append(boards, board)
		}
	}
	return boards, nil
}

func (m *mockBoardStore) DeleteBoard(ctx context.Context, boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.boards[boardID]; !exists {
		return interfaces.ErrBoardNotFound
	}
	delete(m.boards, boardID)
	return nil
}

func (m *mockBoardStore) HealthCheck(ctx context.Context) error {
	if m.shouldFailHealth {
		return errors.New("database unreachable")
	}
	return nil
}

func (m *mockBoardStore) Close() error { return nil }

// Stub session stats.
type stubStats struct {
	counts map[string]int
}

func (s *stubStats) ConnectionCount(boardID string) int { return s.counts[boardID] }
func (s *stubStats) Stats() map[string]int {
	return map[string]int{"active_sessions": len(s.counts)}
}

type testServer struct {
	server *Server
	store  *mockBoardStore
	stats  *stubStats
	signer *auth.Signer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	verifier, err := auth.NewVerifier(testKey)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	signer, err := auth.NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	store := newMockBoardStore()
	stats := &stubStats{counts: make(map[string]int)}

	return &testServer{
		server: NewServer(store, verifier, stats),
		store:  store,
		stats:  stats,
		signer: signer,
	}
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	ts.server.ServeHTTP(recorder, req)
	return recorder
}

func (ts *testServer) tokenFor(t *testing.T, email string) string {
	t.Helper()
	token, err := ts.signer.Sign(auth.Identity{Email: email, Username: email})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return token
}

func TestCreateBoard(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, "host@example.com")

	resp := ts.request(t, http.MethodPost, "/api/boards", token, CreateBoardRequest{Title: "Planning"})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var body BoardResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Board.Title != "Planning" {
		t.Errorf("expected title Planning, got %q", body.Board.Title)
	}
	if body.Board.CreatorEmail != "host@example.com" {
		t.Errorf("creator should come from the token, got %q", body.Board.CreatorEmail)
	}
	if len(body.Board.Layers) != 2 {
		t.Errorf("expected default layers, got %d", len(body.Board.Layers))
	}
}

func TestCreateBoard_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/boards", "", CreateBoardRequest{Title: "Planning"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.Code)
	}

	resp = ts.request(t, http.MethodPost, "/api/boards", "bad-token", CreateBoardRequest{Title: "Planning"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", resp.Code)
	}
}

func TestCreateBoard_RequiresTitle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokenFor(t, "host@example.com")

	resp := ts.request(t, http.MethodPost, "/api/boards", token, CreateBoardRequest{})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty title, got %d", resp.Code)
	}
}

func TestGetBoard(t *testing.T) {
	ts := newTestServer(t)
	ts.store.CreateBoard(context.Background(), &types.Board{
		ID: "b1", Title: "Board", CreatorEmail: "host@example.com",
	})
	ts.stats.counts["b1"] = 3

	resp := ts.request(t, http.MethodGet, "/api/boards/b1", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body BoardResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Board.ID != "b1" {
		t.Errorf("expected board b1, got %q", body.Board.ID)
	}
	if body.ConnectionCount != 3 {
		t.Errorf("expected 3 live connections, got %d", body.ConnectionCount)
	}
}

func TestGetBoard_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/boards/missing", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.Code)
	}
}

func TestUpdateBoard_CreatorOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.store.CreateBoard(context.Background(), &types.Board{
		ID: "b1", Title: "Board", CreatorEmail: "host@example.com",
	})

	layers := types.DefaultLayers()
	layers[0].Lines = []types.Stroke{{Points: []float64{1, 2, 3, 4}}}
	update := UpdateBoardRequest{Title: "Saved", Layers: layers}

	// A different identity may not save.
	intruder := ts.tokenFor(t, "intruder@example.com")
	resp := ts.request(t, http.MethodPut, "/api/boards/b1", intruder, update)
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-creator, got %d", resp.Code)
	}

	// The creator may.
	creator := ts.tokenFor(t, "host@example.com")
	resp = ts.request(t, http.MethodPut, "/api/boards/b1", creator, update)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	saved, _ := ts.store.GetBoard(context.Background(), "b1")
	if saved.Title != "Saved" {
		t.Errorf("expected title updated, got %q", saved.Title)
	}
	if len(saved.Layers[0].Lines) != 1 {
		t.Errorf("expected checkpointed strokes, got %d", len(saved.Layers[0].Lines))
	}
}

func TestDeleteBoard_CreatorOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.store.CreateBoard(context.Background(), &types.Board{
		ID: "b1", Title: "Board", CreatorEmail: "host@example.com",
	})

	intruder := ts.tokenFor(t, "intruder@example.com")
	resp := ts.request(t, http.MethodDelete, "/api/boards/b1", intruder, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-creator, got %d", resp.Code)
	}

	creator := ts.tokenFor(t, "host@example.com")
	resp = ts.request(t, http.MethodDelete, "/api/boards/b1", creator, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}

	if _, err := ts.store.GetBoard(context.Background(), "b1"); err != interfaces.ErrBoardNotFound {
		t.Error("board should be gone after delete")
	}
}

func TestListBoards(t *testing.T) {
	ts := newTestServer(t)
	ts.store.CreateBoard(context.Background(), &types.Board{
		ID: "b1", Title: "Mine", CreatorEmail: "host@example.com",
	})
	ts.store.CreateBoard(context.Background(), &types.Board{
		ID: "b2", Title: "Theirs", CreatorEmail: "other@example.com",
	})

	token := ts.tokenFor(t, "host@example.com")
	resp := ts.request(t, http.MethodGet, "/api/boards", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body ListBoardsResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if len(body.Boards) != 1 {
		t.Fatalf("expected only the caller's boards, got %d", len(body.Boards))
	}
	if body.Boards[0].Title != "Mine" {
		t.Errorf("expected board Mine, got %q", body.Boards[0].Title)
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body HealthResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Status != "healthy" {
		t.Errorf("expected healthy, got %q", body.Status)
	}
	if time.Since(body.Timestamp) > time.Minute {
		t.Error("timestamp should be recent")
	}

	ts.store.shouldFailHealth = true
	resp = ts.request(t, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is down, got %d", resp.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPatch, "/api/boards", "", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.Code)
	}

	resp = ts.request(t, http.MethodPatch, "/api/boards/b1", "", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodOptions, "/api/boards", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected permissive CORS origin header")
	}
}
