package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/chunker"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/db"
	"github.com/xxxsen/docchat/internal/embedcache"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/handler"
	"github.com/xxxsen/docchat/internal/job"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/queue"
	"github.com/xxxsen/docchat/internal/repo"
	"github.com/xxxsen/docchat/internal/schedule"
	"github.com/xxxsen/docchat/internal/service"
	"github.com/xxxsen/docchat/internal/vectorindex"
	"github.com/xxxsen/docchat/internal/worker"
)

// app holds the long-lived clients shared by every request and job.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	files      filestore.Store
	queue      queue.Queue
	index      vectorindex.Index
	generator  ai.IGenerator
	embedder   ai.IEmbedder
	loader     *loader.Registry
	cacheRepo  *repo.EmbeddingCacheRepo
	ingest     *service.IngestService
	scheduler  *schedule.CronScheduler
	workerPool *worker.Pool
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a := &app{cfg: cfg, db: conn, loader: loader.New(loader.WithPDFEngine(cfg.Loader.PDFEngine)), cacheRepo: repo.NewEmbeddingCacheRepo(conn)}

	if a.files, err = filestore.New(cfg.FileStore); err != nil {
		a.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	if a.queue, err = buildQueue(ctx, cfg, conn); err != nil {
		a.Close()
		return nil, fmt.Errorf("init queue: %w", err)
	}
	if a.index, err = vectorindex.New(cfg.VectorIndex, vectorindex.Deps{DB: conn}); err != nil {
		a.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	gen, emb, err := ai.BuildFromConfig(cfg.AI)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init ai: %w", err)
	}
	a.generator = gen
	a.embedder = buildEmbedder(cfg.AI, emb, a.cacheRepo)

	ch := chunker.New(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(*cfg.RAG.ChunkOverlap))
	a.ingest = service.NewIngestService(a.files, a.loader, ch, a.embedder, a.index)

	logutil.GetLogger(ctx).Info("components ready",
		zap.String("file_store", a.files.Type()),
		zap.String("queue", cfg.Queue.Type),
		zap.String("vector_index", a.index.Type()),
		zap.String("embedder", a.embedder.ModelName()),
	)
	return a, nil
}

func buildQueue(ctx context.Context, cfg *config.Config, conn *sql.DB) (queue.Queue, error) {
	if cfg.Queue.Type == "memory" {
		return queue.NewMemory(), nil
	}
	var opts []queue.PostgresOption
	if cfg.Queue.Notify {
		l, err := queue.NewListener(ctx, cfg.Database.ConnString())
		if err != nil {
			return nil, err
		}
		opts = append(opts, queue.WithListener(l))
	}
	return queue.NewPostgres(conn, opts...), nil
}

// buildEmbedder stacks the caches in front of the rate limited batcher so
// cache hits never spend rate budget.
func buildEmbedder(cfg config.AIConfig, base ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	var limiter *rate.Limiter
	if cfg.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRPS), 1)
	}
	e := ai.NewBatchEmbedder(base, cfg.EmbedBatchSize, limiter)
	if cfg.EmbedCache.DB {
		e = embedcache.WrapDBCacheToEmbedder(e, cacheRepo)
	}
	if cfg.EmbedCache.LRUSize > 0 {
		e = embedcache.WrapLruCacheToEmbedder(e, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSecs)*time.Second)
	}
	return e
}

func (a *app) startBackground(ctx context.Context) error {
	a.workerPool = worker.NewPool(a.queue, a.ingest, worker.Config{
		Concurrency:  a.cfg.Worker.Concurrency,
		PollInterval: time.Duration(a.cfg.Queue.PollIntervalMs) * time.Millisecond,
		JobTimeout:   time.Duration(a.cfg.Worker.JobTimeoutSeconds) * time.Second,
	})
	a.workerPool.Start(ctx)
	if !a.cfg.Schedule.Enabled {
		return nil
	}
	a.scheduler = schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewStaleJobReaper(a.queue, time.Duration(a.cfg.Schedule.StaleActiveMinutes)*time.Minute), "* * * * *"},
		{job.NewJobRetentionJob(a.queue, a.files, time.Duration(a.cfg.Schedule.JobRetentionHours)*time.Hour), "0 * * * *"},
		{job.NewEmbeddingCacheCleanupJob(a.cacheRepo, a.cfg.AI.EmbedCache.MaxAgeDays), "30 3 * * *"},
	}
	for _, item := range jobs {
		if err := a.scheduler.AddJob(item.job, item.spec); err != nil {
			return err
		}
	}
	a.scheduler.Start(ctx)
	return nil
}

func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.workerPool != nil {
		a.workerPool.Stop()
	}
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.Bool("embedded_worker", cfg.Worker.Embedded),
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if cfg.Worker.Embedded || cfg.Queue.Type == "memory" {
		if err := a.startBackground(ctx); err != nil {
			return err
		}
	}

	conversations := service.NewConversationService(repo.NewConversationStore(a.db))
	chat := service.NewChatService(
		service.NewRetrievalService(a.embedder, a.index),
		service.NewAnswerService(a.generator, time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
		conversations,
		service.ChatConfig{ChatTopK: cfg.RAG.ChatTopK, SummaryTopK: cfg.RAG.SummaryTopK},
	)
	deps := handler.RouterDeps{
		Uploads:         handler.NewUploadHandler(service.NewJobService(a.files, a.queue, a.loader), cfg.Upload.MaxSizeBytes, cfg.Upload.AllowedExts),
		Conversations:   handler.NewConversationHandler(conversations),
		Chat:            handler.NewChatHandler(chat, conversations),
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		RateLimitWindow: time.Duration(cfg.Schedule.RateLimitWindowMillis) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		cfg.RoutePrefix,
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS.AllowOrigins),
			middleware.Gzip(),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

func runWorker(cfg *config.Config) error {
	if cfg.Queue.Type == "memory" {
		return fmt.Errorf("a standalone worker needs queue.type postgres")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.startBackground(ctx); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("worker running", zap.Int("concurrency", cfg.Worker.Concurrency))
	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("worker stopping...")
	return nil
}
