package ingestion_engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core/extraction"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// fakeObjectStore records uploads and can be told to fail specific keys.
type fakeObjectStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	failSub  string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploaded: make(map[string][]byte)}
}

func (f *fakeObjectStore) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	if f.failSub != "" && strings.Contains(key, f.failSub) {
		return "", fmt.Errorf("simulated upload failure for %s", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[key] = data
	return key, nil
}

func (f *fakeObjectStore) GetFile(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.uploaded[key]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no such key: %s", key)
}

func (f *fakeObjectStore) DeleteFile(_ context.Context, _ string) error     { return nil }
func (f *fakeObjectStore) FileExists(_ context.Context, _ string) (bool, error) { return false, nil }
func (f *fakeObjectStore) ListFiles(_ context.Context, _ string) ([]models.FileInfo, error) {
	return nil, nil
}
func (f *fakeObjectStore) PresignURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", nil
}

func testIngestor(obj *fakeObjectStore) *DocumentIngestor {
	cfg := &config.Config{ChunkSize: 1000, ChunkOverlap: 200, S3Prefix: "docs"}
	return NewDocumentIngestor(nil, obj, cfg)
}

func TestBuildChunks(t *testing.T) {
	job := Job{UserID: "u1", ThreadID: "t1", Filename: "deck.pptx"}

	t.Run("text page splits with images on first chunk only", func(t *testing.T) {
		obj := newFakeObjectStore()
		ing := testIngestor(obj)

		pages := []extraction.PageRecord{
			{
				PageNum: 0,
				Text:    strings.Repeat("slide one narrative text. ", 60),
				Images: []extraction.PageImage{
					{Data: []byte("img-a"), Ext: "png"},
					{Data: []byte("img-b"), Ext: "jpeg"},
				},
			},
		}

		chunks := ing.buildChunks(context.Background(), pages, job)
		require.Greater(t, len(chunks), 1)

		assert.Len(t, chunks[0].ImageKeys, 2)
		assert.Contains(t, chunks[0].ImageKeys[0], "docs/u1/t1/deck_page0_img0.png")
		for _, ch := range chunks[1:] {
			assert.Empty(t, ch.ImageKeys)
		}
		for idx, ch := range chunks {
			assert.Equal(t, idx, ch.ChunkIndex)
			assert.Equal(t, 0, ch.PageNum)
		}
		assert.Len(t, obj.uploaded, 2)
	})

	t.Run("image-only page gets placeholder chunk", func(t *testing.T) {
		obj := newFakeObjectStore()
		ing := testIngestor(obj)

		pages := []extraction.PageRecord{
			{
				PageNum: 2,
				Text:    "  ",
				Images:  []extraction.PageImage{{Data: []byte("img"), Ext: "png"}},
			},
		}

		chunks := ing.buildChunks(context.Background(), pages, job)
		require.Len(t, chunks, 1)
		assert.Equal(t, "[Page 3: Contains 1 image(s)]", chunks[0].Content)
		assert.Len(t, chunks[0].ImageKeys, 1)
	})

	t.Run("empty page yields nothing", func(t *testing.T) {
		obj := newFakeObjectStore()
		ing := testIngestor(obj)

		chunks := ing.buildChunks(context.Background(), []extraction.PageRecord{{PageNum: 0}}, job)
		assert.Empty(t, chunks)
	})

	t.Run("failed image upload drops only that key", func(t *testing.T) {
		obj := newFakeObjectStore()
		obj.failSub = "img1"
		ing := testIngestor(obj)

		pages := []extraction.PageRecord{
			{
				PageNum: 0,
				Text:    "some slide text",
				Images: []extraction.PageImage{
					{Data: []byte("a"), Ext: "png"},
					{Data: []byte("b"), Ext: "png"},
					{Data: []byte("c"), Ext: "png"},
				},
			},
		}

		chunks := ing.buildChunks(context.Background(), pages, job)
		require.Len(t, chunks, 1)
		require.Len(t, chunks[0].ImageKeys, 2)
		assert.Contains(t, chunks[0].ImageKeys[0], "img0")
		assert.Contains(t, chunks[0].ImageKeys[1], "img2")
	})
}

func TestProcessOneUnsupportedFormat(t *testing.T) {
	obj := newFakeObjectStore()
	obj.uploaded["docs/u1/t1/notes.docx"] = []byte("not a deck")
	ing := testIngestor(obj)

	err := ing.ProcessOne(context.Background(), Job{
		S3Key: "docs/u1/t1/notes.docx", UserID: "u1", ThreadID: "t1", Filename: "notes.docx",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, extraction.ErrUnsupportedFormat)
}
