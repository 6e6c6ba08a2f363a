package ingestion_engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManideepBangaru/lumos-backend/internal/core/extraction"
	objectclient "github.com/ManideepBangaru/lumos-backend/internal/core/object-client"
)

// uploadPageImages stores a page's extracted images concurrently and
// returns the keys of those that landed, in original page order. A failed
// upload drops that image with a warning; text ingestion must not stall
// because one raster could not be stored.
func (i *DocumentIngestor) uploadPageImages(
	ctx context.Context,
	images []extraction.PageImage,
	pageNum int,
	userID, threadID, filename string,
) []string {
	if len(images) == 0 {
		return nil
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	keys := make([]string, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for idx, img := range images {
		g.Go(func() error {
			name := fmt.Sprintf("%s_page%d_img%d.%s", base, pageNum, idx, img.Ext)
			key := objectclient.BuildKey(i.cfg.S3Prefix, userID, threadID, name)
			contentType := objectclient.ContentTypeForFilename(name)

			if _, err := i.obj.UploadFile(gctx, key, img.Data, contentType); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("image upload failed, skipping")
				return nil
			}
			keys[idx] = key
			return nil
		})
	}
	_ = g.Wait()

	// Compact out failed slots, preserving order.
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
