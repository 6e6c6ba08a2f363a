package contextbuilder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

func TestBuildTextContext(t *testing.T) {
	chunks := []models.DocumentChunk{
		{Filename: "a.pdf", PageNum: 0, ChunkIndex: 0, Content: "alpha", ImageKeys: []string{"k.png"}},
		{Filename: "a.pdf", PageNum: 0, ChunkIndex: 1, Content: "beta"},
		{Filename: "a.pdf", PageNum: 1, ChunkIndex: 0, Content: "gamma"},
		{Filename: "b.pptx", PageNum: 0, ChunkIndex: 0, Content: "delta"},
	}

	got := BuildTextContext(chunks)

	assert.Contains(t, got, "[FILE: a.pdf]")
	assert.Contains(t, got, "[FILE: b.pptx]")
	assert.Contains(t, got, "[Page 1] (contains 1 image(s))")
	assert.Contains(t, got, "[Page 2]")
	// File order preserved.
	assert.Less(t, strings.Index(got, "alpha"), strings.Index(got, "gamma"))
	assert.Less(t, strings.Index(got, "gamma"), strings.Index(got, "delta"))
}

func TestBuildSummaryContext(t *testing.T) {
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	chunks := []models.DocumentChunk{
		{Filename: "a.pdf", PageNum: 0, ChunkIndex: 0, Content: string(long)},
		{Filename: "a.pdf", PageNum: 0, ChunkIndex: 1, Content: "second chunk skipped"},
		{Filename: "a.pdf", PageNum: 1, ChunkIndex: 0, Content: "short page"},
	}

	got := BuildSummaryContext(chunks)

	assert.Contains(t, got, "a.pdf p1: ")
	assert.Contains(t, got, "...")
	assert.NotContains(t, got, "second chunk skipped")
	assert.Contains(t, got, "a.pdf p2: short page")
}

func TestHasImages(t *testing.T) {
	assert.False(t, HasImages(nil))
	assert.False(t, HasImages([]models.DocumentChunk{{Content: "text"}}))
	assert.True(t, HasImages([]models.DocumentChunk{{}, {ImageKeys: []string{"k"}}}))
}

func TestBuildMultimodalContext(t *testing.T) {
	t.Run("no images returns sentinel", func(t *testing.T) {
		a := NewAssembler(NewResolver(newCountingObjectStore()), 10)
		_, _, err := a.BuildMultimodalContext(context.Background(), []models.DocumentChunk{
			{Filename: "a.pdf", Content: "plain"},
		}, nil)
		assert.ErrorIs(t, err, ErrNoImages)
	})

	t.Run("all fetches failing falls back via sentinel", func(t *testing.T) {
		store := newCountingObjectStore()
		store.failKeys["gone.png"] = true
		a := NewAssembler(NewResolver(store), 10)

		_, _, err := a.BuildMultimodalContext(context.Background(), []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "gone.png"),
		}, nil)
		assert.ErrorIs(t, err, ErrNoImages)
	})

	t.Run("interleaves text and images in document order", func(t *testing.T) {
		store := newCountingObjectStore()
		a := NewAssembler(NewResolver(store), 10)

		chunks := []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "one.png", "two.png"),
			{ThreadID: "t1", Filename: "a.pdf", PageNum: 0, ChunkIndex: 1, Content: "more of page one"},
			chunkWithImages("a.pdf", 1, "three.png"),
		}

		blocks, resolved, err := a.BuildMultimodalContext(context.Background(), chunks, nil)
		require.NoError(t, err)
		require.NotEmpty(t, blocks)
		require.Len(t, resolved, 2)

		var imageCount, textCount int
		for _, b := range blocks {
			switch b.Kind {
			case models.BlockImage:
				imageCount++
			case models.BlockText:
				textCount++
			}
		}
		assert.Equal(t, 3, imageCount)
		assert.Greater(t, textCount, 3)

		// First block is the document separator, then the page header.
		assert.Equal(t, models.BlockText, blocks[0].Kind)
		assert.Contains(t, blocks[0].Text, "a.pdf")
		assert.Equal(t, "[Page 1]", blocks[1].Text)

		// Each image is preceded by its label block.
		for i, b := range blocks {
			if b.Kind == models.BlockImage {
				require.Greater(t, i, 0)
				assert.Contains(t, blocks[i-1].Text, "[Image ")
			}
		}
	})

	t.Run("page images emitted once across chunks", func(t *testing.T) {
		store := newCountingObjectStore()
		a := NewAssembler(NewResolver(store), 10)

		chunks := []models.DocumentChunk{
			chunkWithImages("a.pdf", 0, "img.png"),
			{Filename: "a.pdf", PageNum: 0, ChunkIndex: 1, Content: "same page continues"},
		}

		blocks, _, err := a.BuildMultimodalContext(context.Background(), chunks, nil)
		require.NoError(t, err)

		var imageCount int
		for _, b := range blocks {
			if b.Kind == models.BlockImage {
				imageCount++
			}
		}
		assert.Equal(t, 1, imageCount)
	})

	t.Run("cached images avoid storage entirely", func(t *testing.T) {
		store := newCountingObjectStore()
		a := NewAssembler(NewResolver(store), 10)

		chunks := []models.DocumentChunk{chunkWithImages("a.pdf", 0, "img.png")}

		cache := map[string][]models.ImagePayload{
			PageKey("a.pdf", 0): {{Key: "img.png", MIMEType: "image/png", DataURL: "data:image/png;base64,QUJD"}},
		}

		blocks, resolved, err := a.BuildMultimodalContext(context.Background(), chunks, cache)
		require.NoError(t, err)
		assert.Zero(t, store.fetchCount())
		assert.Equal(t, cache, resolved)

		var found bool
		for _, b := range blocks {
			if b.Kind == models.BlockImage && b.ImageURL == "data:image/png;base64,QUJD" {
				found = true
			}
		}
		assert.True(t, found)
	})
}
