package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
	"github.com/ManideepBangaru/lumos-backend/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	UserID      string              `json:"user_id"`
	ThreadID    string              `json:"thread_id"`
	Message     string              `json:"message"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type forkRequest struct {
	chatRequest
	KeepCount int `json:"keep_count"`
}

// Stream answers one turn over server-sent events: progress events while
// the turn is processed, one message event with the answer, then done.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ThreadID == "" || req.Message == "" {
		http.Error(w, "user_id, thread_id and message are required", http.StatusBadRequest)
		return
	}
	h.stream(w, r, req)
}

// Fork rewinds the thread to its first keep_count messages and then
// answers the new message from that point.
func (h *ChatHandler) Fork(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ThreadID == "" || req.Message == "" {
		http.Error(w, "user_id, thread_id and message are required", http.StatusBadRequest)
		return
	}
	if req.KeepCount < 0 {
		http.Error(w, "keep_count must be >= 0", http.StatusBadRequest)
		return
	}

	removed, err := h.chat.Rewind(r.Context(), req.ThreadID, req.KeepCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info().Str("thread", req.ThreadID).Int("removed", removed).Msg("thread rewound for fork")

	h.stream(w, r, req.chatRequest)
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event map[string]any) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	result, err := h.chat.Respond(r.Context(), req.UserID, req.ThreadID, req.Message, req.Attachments,
		func(stage string) {
			send(map[string]any{"type": "progress", "stage": stage})
		})
	if err != nil {
		log.Error().Err(err).Str("thread", req.ThreadID).Msg("chat turn failed")
		send(map[string]any{"type": "error", "error": "failed to generate a response"})
		return
	}

	send(map[string]any{
		"type":        "message",
		"message_id":  result.MessageID,
		"content":     result.Content,
		"relevant":    result.Relevant,
		"used_images": result.UsedImages,
	})
	send(map[string]any{"type": "done"})
}
