package contextbuilder

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// DefaultMaxImages caps how many images one model call may carry.
const DefaultMaxImages = 10

var mimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// MIMEType infers an image's MIME type from its key suffix. Unknown
// extensions default to PNG, which vision models accept broadly.
func MIMEType(key string) string {
	lower := strings.ToLower(key)
	for ext, mt := range mimeTypes {
		if strings.HasSuffix(lower, ext) {
			return mt
		}
	}
	return "image/png"
}

// PageKey identifies a page of a file for grouping resolved images.
func PageKey(filename string, pageNum int) string {
	return fmt.Sprintf("%s:%d", filename, pageNum)
}

// Resolver turns stored image keys into base64 data URLs.
type Resolver struct {
	obj core.ObjectClient
}

func NewResolver(obj core.ObjectClient) *Resolver {
	return &Resolver{obj: obj}
}

// FetchForChunks resolves the images referenced by chunks, grouped by page
// key. Keys are deduplicated in first-seen chunk order and the list is cut
// to maxImages BEFORE any storage round trip, so a thread with many images
// costs at most maxImages fetches.
func (r *Resolver) FetchForChunks(ctx context.Context, chunks []models.DocumentChunk, maxImages int) (map[string][]models.ImagePayload, error) {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}

	type ref struct {
		key  string
		page string
	}
	var (
		refs []ref
		seen = make(map[string]bool)
	)
	for _, ch := range chunks {
		page := PageKey(ch.Filename, ch.PageNum)
		for _, k := range ch.ImageKeys {
			if seen[k] {
				continue
			}
			seen[k] = true
			refs = append(refs, ref{key: k, page: page})
		}
	}
	if len(refs) == 0 {
		return map[string][]models.ImagePayload{}, nil
	}
	if len(refs) > maxImages {
		log.Debug().
			Int("total", len(refs)).
			Int("budget", maxImages).
			Msg("image references exceed budget, truncating")
		refs = refs[:maxImages]
	}

	payloads := make([]*models.ImagePayload, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for idx, rf := range refs {
		g.Go(func() error {
			data, err := r.obj.GetFile(gctx, rf.key)
			if err != nil {
				log.Warn().Err(err).Str("key", rf.key).Msg("image fetch failed, skipping")
				return nil
			}
			mt := MIMEType(rf.key)
			payloads[idx] = &models.ImagePayload{
				Key:      rf.key,
				MIMEType: mt,
				DataURL:  "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]models.ImagePayload)
	for idx, rf := range refs {
		if payloads[idx] == nil {
			continue
		}
		out[rf.page] = append(out[rf.page], *payloads[idx])
	}
	return out, nil
}
