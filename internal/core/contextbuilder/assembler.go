package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// ErrNoImages signals that a multimodal context was requested for chunks
// that reference no images; callers should fall back to the text path.
var ErrNoImages = errors.New("no images referenced by chunks")

// HasImages reports whether any chunk references at least one image.
func HasImages(chunks []models.DocumentChunk) bool {
	for _, ch := range chunks {
		if len(ch.ImageKeys) > 0 {
			return true
		}
	}
	return false
}

// BuildTextContext renders chunks as a plain-text document context, with
// file and page headers so the model can cite where content came from.
// Chunks must already be ordered by (filename, page_num, chunk_index).
func BuildTextContext(chunks []models.DocumentChunk) string {
	var (
		parts    []string
		curFile  string
		curPage  = -1
	)
	for _, ch := range chunks {
		if ch.Filename != curFile {
			curFile = ch.Filename
			curPage = -1
			parts = append(parts, fmt.Sprintf("\n[FILE: %s]", ch.Filename))
		}
		if ch.PageNum != curPage {
			curPage = ch.PageNum
			header := fmt.Sprintf("[Page %d]", ch.PageNum+1)
			if len(ch.ImageKeys) > 0 {
				header += fmt.Sprintf(" (contains %d image(s))", len(ch.ImageKeys))
			}
			parts = append(parts, header)
		}
		parts = append(parts, ch.Content)
	}
	return strings.Join(parts, "\n\n")
}

// BuildSummaryContext renders a condensed view for relevance
// classification: the first chunk of every page, truncated to 300 runes.
func BuildSummaryContext(chunks []models.DocumentChunk) string {
	var (
		parts   []string
		curFile string
		curPage = -1
	)
	for _, ch := range chunks {
		if ch.Filename == curFile && ch.PageNum == curPage {
			continue
		}
		curFile, curPage = ch.Filename, ch.PageNum
		text := ch.Content
		if utf8.RuneCountInString(text) > 300 {
			text = string([]rune(text)[:300]) + "..."
		}
		parts = append(parts, fmt.Sprintf("%s p%d: %s", ch.Filename, ch.PageNum+1, text))
	}
	return strings.Join(parts, "\n")
}

// Assembler builds multimodal context sequences, resolving images through
// storage and reusing the caller's per-thread cache to avoid refetching.
type Assembler struct {
	resolver  *Resolver
	maxImages int
}

func NewAssembler(resolver *Resolver, maxImages int) *Assembler {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	return &Assembler{resolver: resolver, maxImages: maxImages}
}

// BuildMultimodalContext interleaves chunk text with resolved images in
// document order. When cachedImages is non-empty it is used verbatim and
// no storage call is made; otherwise images are fetched within the budget.
// The returned map is the resolved image set for the caller to cache.
func (a *Assembler) BuildMultimodalContext(
	ctx context.Context,
	chunks []models.DocumentChunk,
	cachedImages map[string][]models.ImagePayload,
) ([]models.ContentBlock, map[string][]models.ImagePayload, error) {
	if !HasImages(chunks) {
		return nil, nil, ErrNoImages
	}

	images := cachedImages
	if len(images) == 0 {
		var err error
		images, err = a.resolver.FetchForChunks(ctx, chunks, a.maxImages)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve images: %w", err)
		}
		if len(images) == 0 {
			// Every referenced image failed to resolve; the text path
			// serves this turn instead.
			return nil, nil, ErrNoImages
		}
	}

	var (
		blocks   []models.ContentBlock
		consumed = make(map[string]bool)
		curFile  string
		curPage  = -1
	)
	for _, ch := range chunks {
		if ch.Filename != curFile {
			curFile = ch.Filename
			curPage = -1
			blocks = append(blocks, models.TextBlock(fmt.Sprintf("\n--- Document: %s ---\n", ch.Filename)))
		}
		newPage := ch.PageNum != curPage
		if newPage {
			curPage = ch.PageNum
			blocks = append(blocks, models.TextBlock(fmt.Sprintf("[Page %d]", ch.PageNum+1)))
		}
		if ch.Content != "" {
			blocks = append(blocks, models.TextBlock(ch.Content))
		}

		page := PageKey(ch.Filename, ch.PageNum)
		if consumed[page] {
			continue
		}
		pageImages := images[page]
		if len(pageImages) == 0 {
			continue
		}
		consumed[page] = true
		for i, img := range pageImages {
			blocks = append(blocks, models.TextBlock(
				fmt.Sprintf("[Image %d of %d on Page %d]", i+1, len(pageImages), ch.PageNum+1)))
			blocks = append(blocks, models.ImageBlock(img.DataURL))
		}
	}

	return blocks, images, nil
}
