package handler

import (
	"net/http"

	"github.com/Rrens/chatvault/internal/api/response"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ConversationHandler handles conversation endpoints of the signed-in profile
type ConversationHandler struct{}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler() *ConversationHandler {
	return &ConversationHandler{}
}

// List returns the full conversation set
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	response.OK(w, sess.Conversations.List())
}

// Create starts a new conversation and makes it active
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	conv, err := sess.Conversations.Create(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, conv)
}

// Get returns one conversation
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	conv, err := sess.Conversations.Get(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, conv)
}

// Active returns the active conversation
func (h *ConversationHandler) Active(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	conv := sess.Conversations.Active()
	if conv == nil {
		response.NotFound(w, "no active conversation")
		return
	}

	response.OK(w, conv)
}

// SetActive selects a conversation, or clears the selection on a null id
func (h *ConversationHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var input domain.ActiveSelection
	if !decodeAndValidate(w, r, &input) {
		return
	}

	var err error
	if input.ID == nil {
		err = sess.Conversations.ClearActive(r.Context())
	} else {
		err = sess.Conversations.Select(r.Context(), *input.ID)
	}
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.NoContent(w)
}

// Rename sets a conversation title
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var input domain.ConversationRename
	if !decodeAndValidate(w, r, &input) {
		return
	}

	id := chi.URLParam(r, "conversationID")
	found, err := sess.Conversations.Rename(r.Context(), id, input.Title)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !found {
		response.FromError(w, domain.ErrConversationNotFound)
		return
	}

	conv, err := sess.Conversations.Get(id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, conv)
}

// Delete removes a conversation. Deleting an unknown id succeeds.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	if _, err := sess.Conversations.Delete(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		response.FromError(w, err)
		return
	}

	response.NoContent(w)
}

// AppendMessage adds a message to a conversation
func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var input domain.MessageCreate
	if !decodeAndValidate(w, r, &input) {
		return
	}

	conv, err := sess.Conversations.AppendMessage(r.Context(), chi.URLParam(r, "conversationID"), domain.Message{
		Role:    input.Role,
		Content: input.Content,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, conv)
}
