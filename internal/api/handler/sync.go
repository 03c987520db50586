package handler

import (
	"net/http"

	"github.com/Rrens/chatvault/internal/api/response"
)

// SyncHandler exposes the backup coordinator of the signed-in profile
type SyncHandler struct{}

// NewSyncHandler creates a new sync handler
func NewSyncHandler() *SyncHandler {
	return &SyncHandler{}
}

// Status returns the backup state
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	response.OK(w, sess.Sync.State())
}

// Push uploads the current set and waits for the result
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	if err := sess.Sync.Push(r.Context()); err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, sess.Sync.State())
}

// Pull replaces the local set with the remote backup
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	if err := sess.Sync.Pull(r.Context()); err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"state":         sess.Sync.State(),
		"conversations": sess.Conversations.List(),
	})
}
