package session

import (
	"log"
)

// Permission model: derives, for any participant, whether they may draw or
// administer the session. Grant/revoke are host-only and idempotent.

// CanDraw reports whether identity may draw on the board. The host can
// always draw; everyone else needs an explicit grant.
func (r *Registry) CanDraw(boardID, email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return false
	}
	return email == sess.host || sess.permissions[email]
}

// CanAdminister reports whether identity may perform administrative actions:
// clear-layer, viewport updates, end-session, and grant/revoke.
func (r *Registry) CanAdminister(boardID, email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[boardID]
	return exists && email == sess.host
}

// Grant sets drawing permission for the target identity. Fails unless the
// requester is the session host.
func (r *Registry) Grant(boardID, requesterEmail, targetEmail string) error {
	return r.setPermission(boardID, requesterEmail, targetEmail, true)
}

// Revoke clears drawing permission for the target identity. The host entry
// is never removed or set false; revoking the host is rejected.
func (r *Registry) Revoke(boardID, requesterEmail, targetEmail string) error {
	return r.setPermission(boardID, requesterEmail, targetEmail, false)
}

func (r *Registry) setPermission(boardID, requesterEmail, targetEmail string, canDraw bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return ErrSessionNotFound
	}
	if requesterEmail != sess.host {
		return ErrUnauthorized
	}
	if targetEmail == sess.host && !canDraw {
		return ErrCannotRevokeHost
	}

	sess.permissions[targetEmail] = canDraw
	log.Printf("Permission updated: board=%s target=%s canDraw=%v", boardID, targetEmail, canDraw)
	return nil
}

// PermissionFor returns the current grant for an identity, defaulting to
// false for identities the session has never seen.
func (r *Registry) PermissionFor(boardID, email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[boardID]
	if !exists {
		return false
	}
	return sess.permissions[email]
}
