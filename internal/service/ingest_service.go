package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/chunker"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/vectorindex"
)

// IngestService turns one claimed job into the new content of the index.
type IngestService struct {
	files    filestore.Store
	loader   loader.Loader
	chunker  *chunker.Chunker
	embedder ai.IEmbedder
	index    vectorindex.Index
}

func NewIngestService(files filestore.Store, ld loader.Loader, ch *chunker.Chunker, embedder ai.IEmbedder, index vectorindex.Index) *IngestService {
	return &IngestService{files: files, loader: ld, chunker: ch, embedder: embedder, index: index}
}

// Process loads, chunks and embeds the job's document before touching the
// index, so load and embedding failures leave the index unchanged.
func (s *IngestService) Process(ctx context.Context, job *model.Job) error {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.String("filename", job.Payload.Filename))
	start := time.Now()

	doc, err := s.load(ctx, job.Payload)
	if err != nil {
		logger.Error("load document failed", zap.Error(err))
		return err
	}
	chunks := s.chunker.Split(doc)
	logger.Info("document chunked", zap.Int("pages", len(doc.Pages)), zap.Int("chunks", len(chunks)))

	if len(chunks) > 0 {
		texts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			texts = append(texts, c.Text)
		}
		vectors, err := s.embedder.Embed(ctx, texts, ai.TaskRetrievalDocument)
		if err != nil {
			logger.Error("embed chunks failed", zap.Error(err))
			return appErr.Wrap(appErr.ErrEmbeddingService, err)
		}
		if len(vectors) != len(chunks) {
			return appErr.Wrap(appErr.ErrEmbeddingService, errCountMismatch(len(vectors), len(chunks)))
		}
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
	}

	if err := s.index.Clear(ctx); err != nil {
		logger.Warn("clear index failed, continuing", zap.String("index", s.index.Type()), zap.Error(err))
	}
	if err := s.index.UpsertAll(ctx, chunks); err != nil {
		logger.Error("write index failed", zap.String("index", s.index.Type()), zap.Error(err))
		return appErr.Wrap(appErr.ErrIndexWrite, err)
	}
	logger.Info("document indexed", zap.Int("chunks", len(chunks)), zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *IngestService) load(ctx context.Context, payload model.JobPayload) (*loader.Document, error) {
	rc, err := s.files.Open(ctx, payload.StoragePath)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrDocumentLoad, err)
	}
	defer rc.Close()
	doc, err := s.loader.Load(ctx, payload.Filename, rc)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrDocumentLoad, err)
	}
	return doc, nil
}
