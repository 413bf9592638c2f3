package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"collabboard/internal/auth"
	"collabboard/pkg/interfaces"
	"collabboard/pkg/types"
)

// SessionStats exposes the live session counters the API reports without
// coupling to the registry implementation.
type SessionStats interface {
	ConnectionCount(boardID string) int
	Stats() map[string]int
}

// Server is the HTTP surface for board CRUD and health. No business logic
// lives here, only HTTP handling, auth extraction, and JSON serialization.
type Server struct {
	store    interfaces.BoardStore
	verifier *auth.Verifier
	stats    SessionStats
	router   *http.ServeMux
}

// NewServer wires the API over the board store, token verifier, and live
// session stats.
func NewServer(store interfaces.BoardStore, verifier *auth.Verifier, stats SessionStats) *Server {
	s := &Server{
		store:    store,
		verifier: verifier,
		stats:    stats,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/boards", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleBoards))))
	s.router.Handle("/api/boards/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleBoardByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleBoards covers the collection: POST /api/boards, GET /api/boards.
func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBoard(w, r)
	case http.MethodGet:
		s.listBoards(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBoardByID covers GET/PUT/DELETE /api/boards/{id}.
func (s *Server) handleBoardByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/boards/")
	if path == "" {
		s.sendError(w, "Board ID required", http.StatusBadRequest)
		return
	}

	boardID := strings.Split(path, "/")[0]
	if boardID == "" {
		s.sendError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getBoard(w, r, boardID)
	case http.MethodPut:
		s.updateBoard(w, r, boardID)
	case http.MethodDelete:
		s.deleteBoard(w, r, boardID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type CreateBoardRequest struct {
	Title string `json:"title"`
}

type UpdateBoardRequest struct {
	Title  string        `json:"title"`
	Layers []types.Layer `json:"layers"`
}

type BoardResponse struct {
	Board           *types.Board `json:"board"`
	ConnectionCount int          `json:"connection_count"`
}

type ListBoardsResponse struct {
	Boards []BoardWithConnections `json:"boards"`
}

type BoardWithConnections struct {
	*types.Board
	ConnectionCount int `json:"connection_count"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authenticate extracts and verifies the Bearer token on a request.
func (s *Server) authenticate(r *http.Request) (*auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return nil, auth.ErrMissingToken
	}
	return s.verifier.Verify(token)
}

// createBoard handles POST /api/boards. The authenticated identity becomes
// the board creator, which makes them host of its live session.
func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		s.sendError(w, "Board title is required", http.StatusBadRequest)
		return
	}

	board := &types.Board{
		Title:        req.Title,
		CreatorEmail: identity.Email,
	}

	if err := s.store.CreateBoard(r.Context(), board); err != nil {
		if errors.Is(err, types.ErrInvalidBoardTitle) || errors.Is(err, types.ErrInvalidEmail) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to create board", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(BoardResponse{Board: board})
}

// getBoard handles GET /api/boards/{id} with the live connection count.
func (s *Server) getBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	board, err := s.store.GetBoard(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, interfaces.ErrBoardNotFound) {
			s.sendError(w, "Board not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get board", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(BoardResponse{
		Board:           board,
		ConnectionCount: s.stats.ConnectionCount(boardID),
	})
}

// updateBoard handles PUT /api/boards/{id}. Only the creator may save a
// checkpoint of the layer contents.
func (s *Server) updateBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	board, err := s.store.GetBoard(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, interfaces.ErrBoardNotFound) {
			s.sendError(w, "Board not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get board", http.StatusInternalServerError)
		}
		return
	}

	if board.CreatorEmail != identity.Email {
		s.sendError(w, "Only the board creator can save it", http.StatusForbidden)
		return
	}

	var req UpdateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Title != "" {
		board.Title = req.Title
	}
	if req.Layers != nil {
		board.Layers = req.Layers
	}

	if err := s.store.UpdateBoard(r.Context(), board); err != nil {
		if errors.Is(err, interfaces.ErrBoardNotFound) {
			s.sendError(w, "Board not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to update board", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(BoardResponse{
		Board:           board,
		ConnectionCount: s.stats.ConnectionCount(boardID),
	})
}

// deleteBoard handles DELETE /api/boards/{id}. Creator only.
func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	board, err := s.store.GetBoard(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, interfaces.ErrBoardNotFound) {
			s.sendError(w, "Board not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get board", http.StatusInternalServerError)
		}
		return
	}

	if board.CreatorEmail != identity.Email {
		s.sendError(w, "Only the board creator can delete it", http.StatusForbidden)
		return
	}

	if err := s.store.DeleteBoard(r.Context(), boardID); err != nil {
		s.sendError(w, "Failed to delete board", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Board deleted successfully"})
}

// listBoards handles GET /api/boards for the authenticated creator.
func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	boards, err := s.store.ListBoardsByCreator(r.Context(), identity.Email)
	if err != nil {
		s.sendError(w, "Failed to list boards", http.StatusInternalServerError)
		return
	}

	withConnections := make([]BoardWithConnections, len(boards))
	for i, board := range boards {
		withConnections[i] = BoardWithConnections{
			Board:           board,
			ConnectionCount: s.stats.ConnectionCount(board.ID),
		}
	}

	json.NewEncoder(w).Encode(ListBoardsResponse{Boards: withConnections})
}

// healthCheck handles GET /health: database connectivity plus live session
// counters. Returns 503 when any component is unhealthy.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.stats.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows web clients from any origin. Would be restricted
// behind a gateway in production.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
