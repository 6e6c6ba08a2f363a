package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/core/ingestion_engine"
	objectclient "github.com/ManideepBangaru/lumos-backend/internal/core/object-client"
	"github.com/ManideepBangaru/lumos-backend/internal/services"
)

const maxPresignTTL = 7 * 24 * time.Hour

type FileHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
	ingestor     ingestion_engine.Ingestor
	chat         *services.ChatService
	cfg          *config.Config
}

func NewFileHandler(dbclient core.DbClient, obj core.ObjectClient, ing ingestion_engine.Ingestor, chat *services.ChatService, cfg *config.Config) *FileHandler {
	return &FileHandler{dbclient: dbclient, objectclient: obj, ingestor: ing, chat: chat, cfg: cfg}
}

type uploadedFile struct {
	Filename    string `json:"filename"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Error       string `json:"error,omitempty"`
}

type multiUploadResponse struct {
	Uploaded            []uploadedFile `json:"uploaded"`
	SuccessCount        int            `json:"success_count"`
	ErrorCount          int            `json:"error_count"`
	ProcessingTriggered int            `json:"processing_triggered"`
}

// Upload accepts one or more files under the "files" multipart field and
// queues supported documents for ingestion.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	threadID := r.FormValue("thread_id")
	if userID == "" || threadID == "" {
		http.Error(w, "user_id and thread_id are required", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}

	resp := multiUploadResponse{}
	for _, header := range files {
		cleanName := filepath.Base(header.Filename)
		entry := uploadedFile{Filename: cleanName, Size: header.Size}

		if !objectclient.IsAllowedFile(cleanName) {
			entry.Error = fmt.Sprintf("unsupported file type, allowed: %v", objectclient.AllowedExtensions())
			resp.Uploaded = append(resp.Uploaded, entry)
			resp.ErrorCount++
			continue
		}

		file, err := header.Open()
		if err != nil {
			entry.Error = "could not open upload"
			resp.Uploaded = append(resp.Uploaded, entry)
			resp.ErrorCount++
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			entry.Error = "could not read upload"
			resp.Uploaded = append(resp.Uploaded, entry)
			resp.ErrorCount++
			continue
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mimetype.Detect(data).String()
		}

		key := objectclient.BuildKey(h.cfg.S3Prefix, userID, threadID, cleanName)
		if _, err := h.objectclient.UploadFile(r.Context(), key, data, contentType); err != nil {
			log.Error().Err(err).Str("key", key).Msg("upload failed")
			entry.Error = "storage upload failed"
			resp.Uploaded = append(resp.Uploaded, entry)
			resp.ErrorCount++
			continue
		}

		entry.Key = key
		entry.ContentType = contentType
		resp.Uploaded = append(resp.Uploaded, entry)
		resp.SuccessCount++

		// Only documents go through the ingestion pipeline; bare images
		// are stored as-is.
		switch strings.ToLower(filepath.Ext(cleanName)) {
		case ".pdf", ".pptx":
			h.ingestor.Enqueue(ingestion_engine.Job{
				S3Key:    key,
				UserID:   userID,
				ThreadID: threadID,
				Filename: cleanName,
			})
			resp.ProcessingTriggered++
		}
	}

	if resp.ProcessingTriggered > 0 {
		h.chat.InvalidateImages(threadID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	threadID := chi.URLParam(r, "threadID")

	prefix := objectclient.BuildKey(h.cfg.S3Prefix, userID, threadID, "")
	files, err := h.objectclient.ListFiles(r.Context(), prefix)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"files": files, "count": len(files)})
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	threadID := chi.URLParam(r, "threadID")
	filename := chi.URLParam(r, "filename")

	key := objectclient.BuildKey(h.cfg.S3Prefix, userID, threadID, filename)
	data, err := h.objectclient.GetFile(r.Context(), key)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", objectclient.ContentTypeForFilename(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// PresignedURL returns a temporary direct-download link. TTL is read from
// the expires_in query param (seconds) and capped at seven days.
func (h *FileHandler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	threadID := chi.URLParam(r, "threadID")
	filename := chi.URLParam(r, "filename")

	ttl := time.Hour
	if raw := r.URL.Query().Get("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			http.Error(w, "invalid expires_in", http.StatusBadRequest)
			return
		}
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}

	key := objectclient.BuildKey(h.cfg.S3Prefix, userID, threadID, filename)
	exists, err := h.objectclient.FileExists(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	url, err := h.objectclient.PresignURL(r.Context(), key, ttl)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"url":        url,
		"expires_in": int(ttl.Seconds()),
	})
}

// Status reports whether a document's chunks have been persisted yet, so
// clients can poll after uploading.
func (h *FileHandler) Status(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	filename := chi.URLParam(r, "filename")

	status, err := h.dbclient.GetProcessingStatus(r.Context(), threadID, filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Delete removes the stored object and its chunks, then drops the
// thread's image cache since cached pages may reference it.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	threadID := chi.URLParam(r, "threadID")
	filename := chi.URLParam(r, "filename")

	key := objectclient.BuildKey(h.cfg.S3Prefix, userID, threadID, filename)
	if err := h.objectclient.DeleteFile(r.Context(), key); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	removed, err := h.dbclient.DeleteDocumentChunks(r.Context(), threadID, filename)
	if err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("chunk cleanup failed")
	}

	h.chat.InvalidateImages(threadID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"deleted":        true,
		"chunks_removed": removed,
	})
}
