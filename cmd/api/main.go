// Package main implements the Cívica API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ciudadano-digital/civica/engine/answer"
	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/engine/extract"
	"github.com/ciudadano-digital/civica/engine/ingest"
	"github.com/ciudadano-digital/civica/engine/retrieve"
	"github.com/ciudadano-digital/civica/engine/semantic"
	"github.com/ciudadano-digital/civica/pkg/config"
	"github.com/ciudadano-digital/civica/pkg/metrics"
	"github.com/ciudadano-digital/civica/pkg/mid"
	"github.com/ciudadano-digital/civica/pkg/openai"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// retrieveOptions narrows the config into retrieval options. The score
// threshold is stored as float64 in config but compared against float32
// similarity scores.
func retrieveOptions(cfg *config.Config) retrieve.Options {
	return retrieve.Options{
		TopK:           cfg.Answer.TopK,
		ScoreThreshold: float32(cfg.Answer.ScoreThreshold),
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- OpenAI client ---
	aiOpts := openai.DefaultOptions()
	aiOpts.BaseURL = cfg.OpenAI.BaseURL
	aiOpts.APIKey = cfg.OpenAI.APIKey()
	aiOpts.EmbedModel = cfg.OpenAI.EmbedModel
	aiOpts.ChatModel = cfg.OpenAI.ChatModel
	aiOpts.Timeout = time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second
	if cfg.OpenAI.RatePerSecond > 0 {
		aiOpts.RatePerSecond = cfg.OpenAI.RatePerSecond
	}
	ai := openai.New(aiOpts)

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.Dims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	// --- Ingestion pipeline ---
	classifier := classify.New(ai, logger)
	chunker := &ingest.Chunker{
		Size:       cfg.Ingest.ChunkSize,
		Overlap:    cfg.Ingest.ChunkOverlap,
		Separators: ingest.DefaultSeparators,
	}
	ingestOpts := ingest.DefaultOptions()
	ingestOpts.BatchSize = cfg.Ingest.BatchSize
	ingestOpts.MinWords = cfg.Ingest.MinWords
	ingestOpts.Workers = cfg.Ingest.Workers
	pipeline := ingest.NewPipeline(extract.New(logger), chunker, ai, classifier, vectorStore, ingestOpts, logger)

	// --- NATS (optional): queue ingest jobs instead of processing inline ---
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		logger.Info("ingest jobs will be queued", "nats", cfg.NATS.URL)
	}

	// --- Answer composer ---
	retriever := retrieve.New(ai, vectorStore, retrieveOptions(cfg), logger)
	composer := answer.New(classifier, retriever, ai, answer.Options{
		Temperature:      float32(cfg.Answer.Temperature),
		SummaryThreshold: cfg.Answer.SummaryThreshold,
		MaxFollowUps:     3,
	}, logger)

	// --- Metrics ---
	reg := metrics.New()
	documentsIngested := reg.Counter("civica_documents_ingested_total", "Documents accepted for indexing.")
	questionsAnswered := reg.Counter("civica_questions_answered_total", "Questions answered.")
	answerLatency := reg.Histogram("civica_answer_seconds", "End-to-end answer latency in seconds.", nil)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/documents", handleIngest(pipeline, nc, documentsIngested, logger))
	mux.HandleFunc("DELETE /api/documents/{id}", handleDelete(pipeline, logger))
	mux.HandleFunc("POST /api/questions", handleQuestion(composer, questionsAnswered, answerLatency, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("civica-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleIngest(p *ingest.Pipeline, nc *nats.Conn, ingested *metrics.Counter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.FilePath == "" || req.Title == "" || req.DocumentID == "" {
			writeError(w, http.StatusBadRequest, "file_path, title, and document_id are required")
			return
		}

		// Queued mode: accept now, index from the consumer.
		if nc != nil {
			if err := ingest.PublishJob(r.Context(), nc, req); err != nil {
				logger.Error("ingest publish failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			ingested.Inc()
			writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "document_id": req.DocumentID})
			return
		}

		res, err := p.ProcessAndIndex(r.Context(), req)
		if err != nil {
			status, msg := ingestStatus(err)
			logger.Error("ingest failed", "document_id", req.DocumentID, "err", err)
			writeError(w, status, msg)
			return
		}
		ingested.Inc()
		writeJSON(w, http.StatusOK, res)
	}
}

// ingestStatus maps pipeline errors onto HTTP statuses. Validation and
// unsupported-input errors are the caller's fault.
func ingestStatus(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func handleDelete(p *ingest.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "document id is required")
			return
		}
		res := p.DeleteDocument(r.Context(), id)
		if !res.Success {
			logger.Error("delete failed", "document_id", id, "err", res.Error)
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleQuestion(c *answer.Composer, answered *metrics.Counter, latency *metrics.Histogram, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answer.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		start := time.Now()
		ans, err := c.Ask(r.Context(), req)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) || errors.Is(err, domain.ErrEmptyQuestion) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("answer failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		answered.Inc()
		latency.Since(start)
		writeJSON(w, http.StatusOK, ans)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
