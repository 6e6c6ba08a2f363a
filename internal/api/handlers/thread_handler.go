package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

type ThreadHandler struct {
	dbclient core.DbClient
}

func NewThreadHandler(dbclient core.DbClient) *ThreadHandler {
	return &ThreadHandler{dbclient: dbclient}
}

type createThreadRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
}

// CreateThread makes (or revives) a conversation thread. Omitting
// thread_id creates a fresh one.
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}

	thread, err := h.dbclient.CreateThread(r.Context(), req.ThreadID, req.UserID, req.Title)
	if err != nil {
		http.Error(w, "failed to create thread", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(thread)
}

func (h *ThreadHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	threads, err := h.dbclient.ListThreads(r.Context(), userID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(threads)
}

func (h *ThreadHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	messages, err := h.dbclient.GetThreadMessages(r.Context(), threadID, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	deleted, err := h.dbclient.DeleteThread(r.Context(), threadID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
}

type renameThreadRequest struct {
	Title string `json:"title"`
}

func (h *ThreadHandler) RenameThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req renameThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	updated, err := h.dbclient.UpdateThreadTitle(r.Context(), threadID, req.Title)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"title": req.Title})
}
