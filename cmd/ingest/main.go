// Command ingest indexes a document into the vector collection, or deletes
// one, or runs as a queue worker consuming ingest jobs from NATS.
//
// One-shot usage:
//
//	ingest <file> <title> <institution> <year> <document-id>
//	ingest -delete <document-id>
//
// The result is printed to stdout as a single JSON object so the command can
// be driven from other programs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/extract"
	"github.com/ciudadano-digital/civica/engine/ingest"
	"github.com/ciudadano-digital/civica/engine/semantic"
	"github.com/ciudadano-digital/civica/pkg/config"
	"github.com/ciudadano-digital/civica/pkg/openai"
)

func main() {
	var (
		configPath = flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to config file")
		deleteID   = flag.String("delete", "", "delete the document with this id instead of indexing")
		worker     = flag.Bool("worker", false, "consume ingest jobs from NATS")
		mediaType  = flag.String("media-type", "", "override media type detection for the input file")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, closeStore, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	switch {
	case *worker:
		if err := runWorker(ctx, cfg, pipeline, logger); err != nil {
			logger.Error("worker exited with error", "err", err)
			os.Exit(1)
		}
	case *deleteID != "":
		res := pipeline.DeleteDocument(ctx, *deleteID)
		emit(res)
		if !res.Success {
			os.Exit(1)
		}
	default:
		args := flag.Args()
		if len(args) != 5 {
			fmt.Fprintln(os.Stderr, "usage: ingest <file> <title> <institution> <year> <document-id>")
			os.Exit(2)
		}
		req := ingest.Request{
			FilePath:    args[0],
			MediaType:   *mediaType,
			Title:       args[1],
			Institution: args[2],
			Year:        args[3],
			DocumentID:  args[4],
		}
		res, err := pipeline.ProcessAndIndex(ctx, req)
		if err != nil {
			logger.Error("ingest failed", "document_id", req.DocumentID, "err", err)
			emit(ingest.Result{Success: false})
			os.Exit(1)
		}
		emit(res)
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ingest.Pipeline, func(), error) {
	aiOpts := openai.DefaultOptions()
	aiOpts.BaseURL = cfg.OpenAI.BaseURL
	aiOpts.APIKey = cfg.OpenAI.APIKey()
	aiOpts.EmbedModel = cfg.OpenAI.EmbedModel
	aiOpts.ChatModel = cfg.OpenAI.ChatModel
	aiOpts.Timeout = time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second
	ai := openai.New(aiOpts)

	store, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.Dims)
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if err := store.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("qdrant collection: %w", err)
	}

	chunker := &ingest.Chunker{
		Size:       cfg.Ingest.ChunkSize,
		Overlap:    cfg.Ingest.ChunkOverlap,
		Separators: ingest.DefaultSeparators,
	}
	opts := ingest.DefaultOptions()
	opts.BatchSize = cfg.Ingest.BatchSize
	opts.MinWords = cfg.Ingest.MinWords
	opts.Workers = cfg.Ingest.Workers

	p := ingest.NewPipeline(extract.New(logger), chunker, ai, classify.New(ai, logger), store, opts, logger)
	return p, func() { store.Close() }, nil
}

func runWorker(ctx context.Context, cfg *config.Config, p *ingest.Pipeline, logger *slog.Logger) error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("worker mode requires nats.url (or NATS_URL)")
	}
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, p, logger)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker started", "subject", ingest.JobSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func emit(v any) {
	json.NewEncoder(os.Stdout).Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
