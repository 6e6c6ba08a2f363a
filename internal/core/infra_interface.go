package core

import (
	"context"
	"time"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateThread(ctx context.Context, threadID, userID, title string) (*models.Thread, error)
	ListThreads(ctx context.Context, userID string, limit int) ([]models.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (bool, error)
	TouchThread(ctx context.Context, threadID string) error
	UpdateThreadTitle(ctx context.Context, threadID, title string) (bool, error)

	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	GetThreadMessages(ctx context.Context, threadID string, limit int) ([]models.ChatMessage, error)
	TruncateThreadMessages(ctx context.Context, threadID string, keepCount int) (int, error)

	// SaveDocumentChunks upserts by (thread_id, filename, page_num, chunk_index)
	// and returns the number of chunks written.
	SaveDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error)
	// GetDocumentChunks returns a thread's chunks ordered by
	// (filename, page_num, chunk_index); filename == "" loads the whole thread.
	GetDocumentChunks(ctx context.Context, threadID, filename string) ([]models.DocumentChunk, error)
	DeleteDocumentChunks(ctx context.Context, threadID, filename string) (int, error)
	GetProcessingStatus(ctx context.Context, threadID, filename string) (*models.ProcessingStatus, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
	FileExists(ctx context.Context, key string) (bool, error)
	ListFiles(ctx context.Context, prefix string) ([]models.FileInfo, error)
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
