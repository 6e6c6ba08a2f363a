package models

import (
	"time"
)

// Thread represents one persistent conversation, scoping messages,
// document chunks and cached images.
type Thread struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Attachment is file metadata stored alongside a user message.
type Attachment struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	S3Key       string `json:"s3_key,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ChatMessage represents an individual chat message (human or ai).
type ChatMessage struct {
	ID          int64        `db:"id" json:"id"`
	ThreadID    string       `db:"thread_id" json:"thread_id"`
	UserID      string       `db:"user_id" json:"user_id"`
	Role        string       `db:"role" json:"role"` // "human" or "ai"
	Content     string       `db:"content" json:"content"`
	MessageID   string       `db:"message_id" json:"message_id,omitempty"`
	Attachments []Attachment `db:"attachments" json:"attachments"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// DocumentChunk is one stored text segment from a document page or slide.
// (ThreadID, Filename, PageNum, ChunkIndex) is the upsert key: re-ingesting
// the same file replaces matching rows instead of duplicating them.
type DocumentChunk struct {
	ThreadID   string    `db:"thread_id" json:"thread_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Filename   string    `db:"filename" json:"filename"`
	PageNum    int       `db:"page_num" json:"page_num"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	ImageKeys  []string  `db:"image_keys" json:"image_keys"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProcessingStatus reports whether a file's chunks have landed in the store.
// Processed is true iff at least one chunk exists; clients poll this after
// uploading since ingestion runs in the background.
type ProcessingStatus struct {
	Processed        bool       `json:"processed"`
	ChunkCount       int        `json:"chunk_count"`
	FirstProcessedAt *time.Time `json:"first_processed_at,omitempty"`
	LastProcessedAt  *time.Time `json:"last_processed_at,omitempty"`
}

// FileInfo describes one stored object under a user/thread prefix.
type FileInfo struct {
	Key          string    `json:"key"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ImagePayload is a resolved image ready for a vision model: the storage key
// it came from, its MIME type and the base64 data URL.
type ImagePayload struct {
	Key      string `json:"key"`
	MIMEType string `json:"mime_type"`
	DataURL  string `json:"base64_url"`
}

// Block kinds for multimodal context assembly.
const (
	BlockText  = "text"
	BlockImage = "image"
)

// ContentBlock is one element of an ordered multimodal context sequence:
// either a text segment or a base64 image data URL.
type ContentBlock struct {
	Kind     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(s string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: s}
}

// ImageBlock builds an image content block from a data URL.
func ImageBlock(dataURL string) ContentBlock {
	return ContentBlock{Kind: BlockImage, ImageURL: dataURL}
}
