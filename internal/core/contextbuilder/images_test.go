package contextbuilder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// countingObjectStore serves fixed bytes for any key and counts fetches.
type countingObjectStore struct {
	mu       sync.Mutex
	fetches  int
	failKeys map[string]bool
}

func newCountingObjectStore() *countingObjectStore {
	return &countingObjectStore{failKeys: make(map[string]bool)}
}

func (s *countingObjectStore) GetFile(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.failKeys[key] {
		return nil, fmt.Errorf("object missing: %s", key)
	}
	return []byte("image-bytes-" + key), nil
}

func (s *countingObjectStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *countingObjectStore) UploadFile(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return key, nil
}
func (s *countingObjectStore) DeleteFile(_ context.Context, _ string) error { return nil }
func (s *countingObjectStore) FileExists(_ context.Context, _ string) (bool, error) {
	return true, nil
}
func (s *countingObjectStore) ListFiles(_ context.Context, _ string) ([]models.FileInfo, error) {
	return nil, nil
}
func (s *countingObjectStore) PresignURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", nil
}

func chunkWithImages(filename string, page int, keys ...string) models.DocumentChunk {
	return models.DocumentChunk{
		ThreadID:  "t1",
		Filename:  filename,
		PageNum:   page,
		Content:   fmt.Sprintf("content of %s page %d", filename, page),
		ImageKeys: keys,
	}
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", MIMEType("u/t/file_page0_img0.png"))
	assert.Equal(t, "image/jpeg", MIMEType("u/t/photo.JPG"))
	assert.Equal(t, "image/jpeg", MIMEType("u/t/photo.jpeg"))
	assert.Equal(t, "image/webp", MIMEType("a.webp"))
	// Unknown or missing extensions default to png.
	assert.Equal(t, "image/png", MIMEType("u/t/mystery.bin"))
	assert.Equal(t, "image/png", MIMEType("no-extension"))
}

func TestFetchForChunks(t *testing.T) {
	t.Run("resolves and groups by page", func(t *testing.T) {
		store := newCountingObjectStore()
		r := NewResolver(store)

		chunks := []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "k1.png", "k2.jpg"),
			chunkWithImages("a.pdf", 1, "k3.png"),
		}

		got, err := r.FetchForChunks(context.Background(), chunks, 10)
		require.NoError(t, err)
		require.Len(t, got[PageKey("a.pdf", 0)], 2)
		require.Len(t, got[PageKey("a.pdf", 1)], 1)

		p := got[PageKey("a.pdf", 0)][0]
		assert.Equal(t, "k1.png", p.Key)
		assert.Equal(t, "image/png", p.MIMEType)
		assert.Contains(t, p.DataURL, "data:image/png;base64,")
		assert.Equal(t, 3, store.fetchCount())
	})

	t.Run("budget truncates before fetching", func(t *testing.T) {
		store := newCountingObjectStore()
		r := NewResolver(store)

		var chunks []models.DocumentChunk
		for page := 0; page < 5; page++ {
			chunks = append(chunks, chunkWithImages("big.pdf", page,
				fmt.Sprintf("p%d-a.png", page), fmt.Sprintf("p%d-b.png", page), fmt.Sprintf("p%d-c.png", page)))
		}

		got, err := r.FetchForChunks(context.Background(), chunks, 4)
		require.NoError(t, err)

		// Only the budget's worth of storage round trips, first-seen wins.
		assert.Equal(t, 4, store.fetchCount())
		require.Len(t, got[PageKey("big.pdf", 0)], 3)
		require.Len(t, got[PageKey("big.pdf", 1)], 1)
		assert.Equal(t, "p1-a.png", got[PageKey("big.pdf", 1)][0].Key)
	})

	t.Run("duplicate keys fetched once", func(t *testing.T) {
		store := newCountingObjectStore()
		r := NewResolver(store)

		chunks := []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "shared.png"),
			chunkWithImages("a.pdf", 1, "shared.png", "own.png"),
		}

		got, err := r.FetchForChunks(context.Background(), chunks, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, store.fetchCount())
		assert.Len(t, got[PageKey("a.pdf", 0)], 1)
		assert.Len(t, got[PageKey("a.pdf", 1)], 1)
	})

	t.Run("failed fetch skips that image", func(t *testing.T) {
		store := newCountingObjectStore()
		store.failKeys["bad.png"] = true
		r := NewResolver(store)

		chunks := []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "good.png", "bad.png"),
		}

		got, err := r.FetchForChunks(context.Background(), chunks, 10)
		require.NoError(t, err)
		require.Len(t, got[PageKey("a.pdf", 0)], 1)
		assert.Equal(t, "good.png", got[PageKey("a.pdf", 0)][0].Key)
	})

	t.Run("no image keys means no fetches", func(t *testing.T) {
		store := newCountingObjectStore()
		r := NewResolver(store)

		got, err := r.FetchForChunks(context.Background(), []models.DocumentChunk{
			{Filename: "a.pdf", PageNum: 0, Content: "text only"},
		}, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, store.fetchCount())
	})
}
