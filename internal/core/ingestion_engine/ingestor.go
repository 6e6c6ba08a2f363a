package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/core/extraction"
	"github.com/ManideepBangaru/lumos-backend/internal/models"
)

// Job identifies one uploaded document to ingest.
type Job struct {
	S3Key    string
	UserID   string
	ThreadID string
	Filename string
}

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(job Job)
	ProcessOne(ctx context.Context, job Job) error
}

// DocumentIngestor runs the background pipeline: fetch the uploaded file
// from object storage, extract pages, upload embedded images, split text
// and upsert the resulting chunks.
type DocumentIngestor struct {
	db       core.DbClient
	obj      core.ObjectClient
	cfg      *config.Config
	splitter *RecursiveSplitter
	jobs     chan Job
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, cfg *config.Config) *DocumentIngestor {
	return &DocumentIngestor{
		db:       db,
		obj:      obj,
		cfg:      cfg,
		splitter: NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		jobs:     make(chan Job, 64),
	}
}

// Start launches numWorkers goroutines reading from the jobs channel.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Info().Int("worker", w).Msg("ingestor worker shutting down")
					return
				case job := <-i.jobs:
					log.Info().
						Int("worker", w).
						Str("file", job.Filename).
						Str("thread", job.ThreadID).
						Msg("processing document")

					if err := i.ProcessOne(ctx, job); err != nil {
						log.Error().Err(err).Str("file", job.Filename).Msg("document ingestion failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document for ingestion. Blocks when the queue is full.
func (i *DocumentIngestor) Enqueue(job Job) {
	i.jobs <- job
}

// ProcessOne runs the full pipeline for a single uploaded document.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, job Job) error {
	proctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	data, err := i.obj.GetFile(proctx, job.S3Key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", job.S3Key, err)
	}

	ext, err := extraction.ForFilename(job.Filename)
	if err != nil {
		return err
	}

	pages, err := ext.Extract(data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", job.Filename, err)
	}

	chunks := i.buildChunks(proctx, pages, job)
	if len(chunks) == 0 {
		log.Warn().Str("file", job.Filename).Msg("document produced no chunks")
		return nil
	}

	n, err := i.db.SaveDocumentChunks(proctx, chunks)
	if err != nil {
		return fmt.Errorf("save chunks for %s: %w", job.Filename, err)
	}

	log.Info().
		Str("file", job.Filename).
		Int("pages", len(pages)).
		Int("chunks", n).
		Msg("document ingested")
	return nil
}

// buildChunks turns extracted pages into storable chunks. Each page's text
// is split deterministically; the page's image keys ride on chunk 0 only so
// re-assembly never double-counts them. A page with images but no text
// still gets a placeholder chunk to anchor the keys.
func (i *DocumentIngestor) buildChunks(ctx context.Context, pages []extraction.PageRecord, job Job) []models.DocumentChunk {
	var out []models.DocumentChunk

	for _, page := range pages {
		keys := i.uploadPageImages(ctx, page.Images, page.PageNum, job.UserID, job.ThreadID, job.Filename)

		pieces := i.splitter.SplitText(page.Text)
		if len(pieces) == 0 {
			if len(keys) == 0 {
				continue
			}
			pieces = []string{fmt.Sprintf("[Page %d: Contains %d image(s)]", page.PageNum+1, len(keys))}
		}

		for idx, piece := range pieces {
			ch := models.DocumentChunk{
				ThreadID:   job.ThreadID,
				UserID:     job.UserID,
				Filename:   job.Filename,
				PageNum:    page.PageNum,
				ChunkIndex: idx,
				Content:    piece,
			}
			if idx == 0 {
				ch.ImageKeys = keys
			}
			out = append(out, ch)
		}
	}
	return out
}
