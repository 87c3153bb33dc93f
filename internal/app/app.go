package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/generative-ai-go/genai"

	"docchat/features/chat"
	"docchat/features/document"
	"docchat/features/job"
	"docchat/features/stats"
	"docchat/internal/adapter/gemini"
	"docchat/internal/answer"
	"docchat/internal/config"
	"docchat/internal/middleware"
	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/text"
	"docchat/internal/vector"
	"docchat/internal/worker"
)

// TaskPublisher matches *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	IngestConsumer  *worker.IngestConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	index vector.Index,
	taskPub TaskPublisher,
	gclient *genai.Client,
) (*App, error) {

	// Adapters
	embedder := gemini.NewEmbedder(gclient, gemini.EmbedderConfig{
		Model:       cfg.EmbeddingModel,
		Dimension:   cfg.EmbeddingDim,
		RatePerSec:  cfg.EmbedRatePerSec,
		RateBurst:   cfg.EmbedRateBurst,
		MaxAttempts: cfg.EmbedMaxAttempts,
	})
	generator := gemini.NewGenerator(gclient, cfg.GenerationModel)
	summarizer := gemini.NewSummarizer(gclient, cfg.GenerationModel)

	var rewriter retrieval.Rewriter
	if cfg.RewriteQueries {
		rewriter = gemini.NewRewriter(gclient, cfg.GenerationModel)
	}

	// Sessions
	sessionStore := session.NewPostgresStore(db)
	sessions := session.NewManager(sessionStore, summarizer, session.ManagerConfig{
		HistoryBudgetChars: cfg.HistoryBudgetChars,
		HistoryPolicy:      cfg.HistoryPolicy,
		BusyPolicy:         cfg.SessionBusyPolicy,
	})

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retriever := retrieval.NewService(embedder, index, rewriter, retrieval.Config{
		TopK:          cfg.TopK,
		MinScore:      cfg.MinScore,
		DedupeOverlap: cfg.DedupeOverlap,
		Rewrite:       cfg.RewriteQueries,
	}, queryLogger)

	// Feature: Chat
	synthesizer := answer.NewSynthesizer(generator)
	chatService := chat.NewService(sessions, retriever, synthesizer)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, taskPub, index)
	documentHandler := document.NewHandler(documentService, cfg.UploadDir, int(cfg.MaxUploadSizeMB))

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, jobRepo, sessions, index)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/resync", middleware.CorrelationID(enableCORS(documentHandler.ReSync)))

	mux.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Chat)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker
	chunker := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	ingestConsumer := worker.NewIngestConsumer(
		documentRepo, embedder, index, chunker, jobRepo,
		cfg.MaxEmbedBatch, uint16(cfg.IngestMaxAttempts),
	)

	return &App{
		Handler:         mux,
		DocumentService: documentService,
		IngestConsumer:  ingestConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
