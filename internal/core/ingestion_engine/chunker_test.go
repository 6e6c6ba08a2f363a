package ingestion_engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveSplitter(t *testing.T) {
	t.Run("empty and whitespace input", func(t *testing.T) {
		s := NewRecursiveSplitter(1000, 200)
		assert.Nil(t, s.SplitText(""))
		assert.Nil(t, s.SplitText("   \n\t  \n"))
	})

	t.Run("short text is a single chunk", func(t *testing.T) {
		s := NewRecursiveSplitter(1000, 200)
		chunks := s.SplitText("A short paragraph that fits in one chunk.")
		require.Len(t, chunks, 1)
		assert.Equal(t, "A short paragraph that fits in one chunk.", chunks[0])
	})

	t.Run("long text respects size and overlap", func(t *testing.T) {
		var b strings.Builder
		for b.Len() < 2500 {
			b.WriteString("lorem ipsum dolor sit amet consectetur ")
		}
		text := strings.TrimSpace(b.String()[:2500])

		s := NewRecursiveSplitter(1000, 200)
		chunks := s.SplitText(text)
		require.GreaterOrEqual(t, len(chunks), 3)

		for i, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000, "chunk %d too large", i)
			assert.NotEmpty(t, c)
		}

		// Consecutive chunks share a tail/head region.
		for i := 1; i < len(chunks); i++ {
			prev, cur := chunks[i-1], chunks[i]
			tail := prev[len(prev)-50:]
			assert.Contains(t, cur[:min(len(cur), 400)], tail[:20],
				"chunk %d should start with overlap from chunk %d", i, i-1)
		}
	})

	t.Run("prefers paragraph boundaries", func(t *testing.T) {
		para1 := strings.Repeat("first paragraph text ", 20)  // ~420 chars
		para2 := strings.Repeat("second paragraph text ", 20) // ~440 chars
		para3 := strings.Repeat("third paragraph text ", 20)
		text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2) + "\n\n" + strings.TrimSpace(para3)

		s := NewRecursiveSplitter(1000, 200)
		chunks := s.SplitText(text)
		require.NotEmpty(t, chunks)

		// The first chunk should end exactly at a paragraph boundary
		// rather than mid-word.
		assert.True(t, strings.HasSuffix(chunks[0], "text"),
			"chunk should end at a paragraph boundary, got %q", chunks[0][len(chunks[0])-30:])
	})

	t.Run("deterministic", func(t *testing.T) {
		text := strings.Repeat("deterministic splitting of the same input. ", 60)
		s := NewRecursiveSplitter(500, 100)
		first := s.SplitText(text)
		second := s.SplitText(text)
		assert.Equal(t, first, second)
	})

	t.Run("single token longer than chunk size", func(t *testing.T) {
		text := strings.Repeat("x", 1500)
		s := NewRecursiveSplitter(1000, 200)
		chunks := s.SplitText(text)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		}
	})
}
