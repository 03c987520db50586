package handler

import (
	"net/http"

	"github.com/Rrens/chatvault/internal/api/response"
	"github.com/Rrens/chatvault/internal/service"
)

// ChatRequest is a user message for the model
type ChatRequest struct {
	Text     string `json:"text" validate:"required,max=32000"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ChatHandler handles text generation
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Send stores the user message in the active conversation and replies
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var input ChatRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	reply, err := h.chatService.Send(r.Context(), sess, input.Text, input.Provider, input.Model)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, reply)
}
