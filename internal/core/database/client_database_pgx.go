package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.Info().Msg("Connected to Postgres")
	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Threads

// CreateThread inserts a thread, or refreshes updated_at if it already
// exists, so clients can call it before every conversation turn.
func (c *DatabaseClient) CreateThread(ctx context.Context, threadID, userID, title string) (*models.Thread, error) {
	const q = `
		INSERT INTO threads (id, user_id, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET updated_at = now()
		RETURNING id, user_id, title, created_at, updated_at
	`
	var t models.Thread
	err := c.db.QueryRowContext(ctx, q, threadID, userID, title).Scan(
		&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &t, nil
}

func (c *DatabaseClient) ListThreads(ctx context.Context, userID string, limit int) ([]models.Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM threads
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []models.Thread
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread with its messages and chunks. Returns
// false when the thread did not exist.
func (c *DatabaseClient) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE thread_id = $1`, threadID); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	// message_history rows cascade from threads.
	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, threadID)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete thread: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *DatabaseClient) TouchThread(ctx context.Context, threadID string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE threads SET updated_at = now() WHERE id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return nil
}

func (c *DatabaseClient) UpdateThreadTitle(ctx context.Context, threadID, title string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE threads SET title = $2, updated_at = now() WHERE id = $1`, threadID, title)
	if err != nil {
		return false, fmt.Errorf("update thread title: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Messages

func (c *DatabaseClient) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	const q = `
		INSERT INTO message_history (thread_id, user_id, role, content, message_id, attachments)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = c.db.QueryRowContext(ctx, q,
		msg.ThreadID, msg.UserID, msg.Role, msg.Content, msg.MessageID, raw,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetThreadMessages(ctx context.Context, threadID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
		SELECT id, thread_id, user_id, role, content, message_id, attachments, created_at
		FROM message_history
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m   models.ChatMessage
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.UserID, &m.Role, &m.Content, &m.MessageID, &raw, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TruncateThreadMessages keeps the oldest keepCount messages and deletes
// the rest, returning how many were removed. Used to rewind a
// conversation before forking it from an earlier point.
func (c *DatabaseClient) TruncateThreadMessages(ctx context.Context, threadID string, keepCount int) (int, error) {
	if keepCount < 0 {
		keepCount = 0
	}
	const q = `
		WITH keep AS (
			SELECT id FROM message_history
			WHERE thread_id = $1
			ORDER BY created_at ASC, id ASC
			LIMIT $2
		)
		DELETE FROM message_history
		WHERE thread_id = $1 AND id NOT IN (SELECT id FROM keep)
	`
	res, err := c.db.ExecContext(ctx, q, threadID, keepCount)
	if err != nil {
		return 0, fmt.Errorf("truncate messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Document chunks

// SaveDocumentChunks upserts all chunks in one transaction so a
// re-ingested file replaces its rows instead of duplicating them.
func (c *DatabaseClient) SaveDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO document_chunks
			(thread_id, user_id, filename, page_num, chunk_index, content, image_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (thread_id, filename, page_num, chunk_index)
		DO UPDATE SET content = EXCLUDED.content,
		              image_keys = EXCLUDED.image_keys,
		              created_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		keys := ch.ImageKeys
		if keys == nil {
			keys = []string{}
		}
		raw, err := json.Marshal(keys)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal image keys: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ThreadID, ch.UserID, ch.Filename, ch.PageNum, ch.ChunkIndex, ch.Content, raw,
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert chunk %s[%d/%d]: %w", ch.Filename, ch.PageNum, ch.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (c *DatabaseClient) GetDocumentChunks(ctx context.Context, threadID, filename string) ([]models.DocumentChunk, error) {
	const qAll = `
		SELECT thread_id, user_id, filename, page_num, chunk_index, content, image_keys, created_at
		FROM document_chunks
		WHERE thread_id = $1
		ORDER BY filename ASC, page_num ASC, chunk_index ASC
	`
	const qOne = `
		SELECT thread_id, user_id, filename, page_num, chunk_index, content, image_keys, created_at
		FROM document_chunks
		WHERE thread_id = $1 AND filename = $2
		ORDER BY page_num ASC, chunk_index ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if filename == "" {
		rows, err = c.db.QueryContext(ctx, qAll, threadID)
	} else {
		rows, err = c.db.QueryContext(ctx, qOne, threadID, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			raw []byte
		)
		if err := rows.Scan(&ch.ThreadID, &ch.UserID, &ch.Filename, &ch.PageNum, &ch.ChunkIndex, &ch.Content, &raw, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ch.ImageKeys); err != nil {
				return nil, fmt.Errorf("decode image keys: %w", err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, threadID, filename string) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE thread_id = $1 AND filename = $2`, threadID, filename)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *DatabaseClient) GetProcessingStatus(ctx context.Context, threadID, filename string) (*models.ProcessingStatus, error) {
	const q = `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM document_chunks
		WHERE thread_id = $1 AND filename = $2
	`
	var (
		count       int
		first, last sql.NullTime
	)
	if err := c.db.QueryRowContext(ctx, q, threadID, filename).Scan(&count, &first, &last); err != nil {
		return nil, fmt.Errorf("processing status: %w", err)
	}

	st := &models.ProcessingStatus{
		Processed:  count > 0,
		ChunkCount: count,
	}
	if first.Valid {
		st.FirstProcessedAt = &first.Time
	}
	if last.Valid {
		st.LastProcessedAt = &last.Time
	}
	return st, nil
}
