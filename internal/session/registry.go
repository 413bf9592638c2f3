package session

import (
	"log"
	"sync"

	"collabboard/pkg/types"
)

// Registry is the authoritative record of who is connected to which board
// and in what role. It has no network effect of its own: every side effect
// becomes observable only through the event router's broadcasts.
//
// All mutation happens from the hub's single event loop, but reads come from
// the HTTP API as well, so access stays mutex-guarded.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*boardSession // boardID -> session
}

// boardSession is the ephemeral per-board state. It is created lazily on
// first admission and deleted when the participant count reaches zero.
type boardSession struct {
	host         string                 // identity equal to the board's creator
	participants map[string]participant // connectionID -> participant
	order        []string               // connection IDs in admission order
	permissions  map[string]bool        // identity -> may draw
}

type participant struct {
	email    string
	username string
}

// AdmitResult reports the registry state handed back to the router after a
// successful admission.
type AdmitResult struct {
	IsNewSession  bool
	Host          string
	CanDraw       bool
	EvictedConnID string // stale connection replaced by identity takeover
	Participants  []types.Participant
}

// RemoveResult reports the aftermath of a connection removal.
type RemoveResult struct {
	Removed      *types.Participant // nil if the connection was not registered
	Participants []types.Participant
	TornDown     bool // session state deleted because the last connection left
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*boardSession),
	}
}

// Admit registers a connection with the session for boardID, creating the
// session on first join with host seeded from the board's creator identity.
// A newer connection for the same identity evicts the older one. A
// previously seen identity keeps its existing permission grant; a new one
// is initialized to whether it is the host.
func (r *Registry) Admit(boardID, email, username, connID, creatorEmail string) (*AdmitResult, error) {
	if connID == "" {
		return nil, ErrInvalidConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[boardID]
	result := &AdmitResult{}

	if !exists {
		sess = &boardSession{
			host:         creatorEmail,
			participants: make(map[string]participant),
			permissions:  map[string]bool{creatorEmail: true},
		}
		r.sessions[boardID] = sess
		result.IsNewSession = true
		log.Printf("Session created: board=%s host=%s", boardID, creatorEmail)
	}

	// Stale-connection takeover: one live connection per identity.
	for id, p := range sess.participants {
		if p.email == email && id != connID {
			delete(sess.participants, id)
			sess.order = removeID(sess.order, id)
			result.EvictedConnID = id
			log.Printf("Evicted stale connection: board=%s user=%s conn=%s", boardID, email, id)
		}
	}

	sess.participants[connID] = participant{email: email, username: username}
	sess.order = append(sess.order, connID)

	if _, seen := sess.permissions[email]; !seen {
		sess.permissions[email] = email == sess.host
	}

	result.Host = sess.host
	result.CanDraw = sess.permissions[email]
	result.Participants = sess.snapshot()
	return result, nil
}

// Remove deletes a connection from the board's session. When the last
// connection leaves, the whole session (host, permissions, participants) is
// torn down so a later admission re-seeds host from the board store.
func (r *Registry) Remove(boardID, connID string) RemoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return RemoveResult{}
	}

	p, registered := sess.participants[connID]
	if !registered {
		return RemoveResult{Participants: sess.snapshot()}
	}

	delete(sess.participants, connID)
	sess.order = removeID(sess.order, connID)

	if len(sess.participants) == 0 {
		delete(r.sessions, boardID)
		log.Printf("Session torn down: board=%s", boardID)
		return RemoveResult{
			Removed:  &types.Participant{Email: p.email, Username: p.username},
			TornDown: true,
		}
	}

	return RemoveResult{
		Removed:      &types.Participant{Email: p.email, Username: p.username},
		Participants: sess.snapshot(),
	}
}

// EndSession disconnects every non-host participant and drops their
// permission entries. The session itself survives with the host connected.
// Returns the connection IDs to force-close.
func (r *Registry) EndSession(boardID, requesterEmail string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if requesterEmail != sess.host {
		return nil, ErrUnauthorized
	}

	var removed []string
	for id, p := range sess.participants {
		if p.email != sess.host {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(sess.participants, id)
		sess.order = removeID(sess.order, id)
	}

	for email := range sess.permissions {
		if email != sess.host {
			delete(sess.permissions, email)
		}
	}

	log.Printf("Session ended by host: board=%s removed=%d", boardID, len(removed))
	return removed, nil
}

// Participants returns the current participant list for a board, in
// admission order, unique by identity.
func (r *Registry) Participants(boardID string) []types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return nil
	}
	return sess.snapshot()
}

// Host returns the session host for a board, empty if no session exists.
func (r *Registry) Host(boardID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sess, exists := r.sessions[boardID]; exists {
		return sess.host
	}
	return ""
}

// HasSession reports whether a live session exists for the board.
func (r *Registry) HasSession(boardID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.sessions[boardID]
	return exists
}

// ConnectionCount returns the number of live connections for a board.
func (r *Registry) ConnectionCount(boardID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sess, exists := r.sessions[boardID]; exists {
		return len(sess.participants)
	}
	return 0
}

// Stats returns registry statistics for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := 0
	for _, sess := range r.sessions {
		connections += len(sess.participants)
	}

	return map[string]int{
		"active_sessions":   len(r.sessions),
		"total_connections": connections,
	}
}

// snapshot builds the participant list in admission order. Admission-time
// eviction guarantees at most one connection per identity, so the list is
// unique by email. Caller must hold at least a read lock.
func (s *boardSession) snapshot() []types.Participant {
	list := make([]types.Participant, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.participants[id]; ok {
			list = append(list, types.Participant{Email: p.email, Username: p.username})
		}
	}
	return list
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
