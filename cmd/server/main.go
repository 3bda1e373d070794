package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"study-assistant-backend/config"
	"study-assistant-backend/controller"
	"study-assistant-backend/dao"
	"study-assistant-backend/router"
	"study-assistant-backend/service/ingest"
	"study-assistant-backend/service/job"
	"study-assistant-backend/service/quiz"
	"study-assistant-backend/service/rag"
	"study-assistant-backend/service/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := config.Cfg

	ctx := context.Background()
	jobs := job.NewTracker()

	var engineOpts []rag.Option
	if cfg.MySQL.DSN != "" {
		if err := dao.Init(cfg.MySQL.DSN); err != nil {
			slog.Error("Failed to connect to mysql", "err", err)
			os.Exit(1)
		}
		engineOpts = append(engineOpts,
			rag.WithDocumentLookup(dao.GetDocumentsByIDs),
			rag.WithTagAppender(dao.AppendDocumentTags),
		)
	}

	engine, err := rag.Build(ctx, cfg.RAG, jobs, engineOpts...)
	if err != nil {
		slog.Error("Failed to build RAG engine", "err", err)
		os.Exit(1)
	}

	queue, err := ingest.New(cfg.MQ, engine)
	if err != nil {
		slog.Error("Failed to create ingestion queue", "err", err)
		os.Exit(1)
	}
	if err := queue.Start(); err != nil {
		slog.Error("Failed to start ingestion queue", "err", err)
		os.Exit(1)
	}

	var files *storage.Client
	if cfg.OSS.BucketName != "" {
		files = storage.NewClient(cfg.OSS)
	}

	quizGen := quiz.New(engine, quiz.WithLLM(engine.LLM()))
	ctrl := controller.New(engine, queue, quizGen, files)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router.Register(ctrl),
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr,
			"store_backend", cfg.RAG.StoreBackend,
			"embed_provider", cfg.RAG.EmbedProvider,
			"llm_provider", cfg.RAG.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server stopped", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "err", err)
	}
	queue.Shutdown()
}
