// Package ingest implements the indexing pipeline: extract → normalize →
// chunk → dedupe → categorize → embed → batched upsert. Indexing is
// idempotent at fragment granularity via content fingerprints.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/engine/extract"
	"github.com/ciudadano-digital/civica/engine/semantic"
	"github.com/ciudadano-digital/civica/pkg/fn"
)

// UpsertBatchSize is how many vectors accumulate before a flush; any
// remainder is flushed at end of document.
const UpsertBatchSize = 100

// Embedder is the embedding boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FragmentClassifier labels a fragment with the ingestion taxonomy.
type FragmentClassifier interface {
	ClassifyFragment(ctx context.Context, text string) classify.Outcome
}

// VectorIndex is the slice of the vector store the pipeline writes to.
type VectorIndex interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	HasFingerprint(ctx context.Context, digest string) (bool, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// Options configures pipeline behaviour.
type Options struct {
	BatchSize int
	// MinWords drops fragments below this word count when positive.
	MinWords int
	// Workers bounds concurrent per-fragment classification and embedding.
	// Fragments are independent; upsert order still follows document order.
	Workers int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize: UpsertBatchSize,
		MinWords:  0,
		Workers:   4,
	}
}

// Pipeline orchestrates document ingestion. All external clients are injected.
type Pipeline struct {
	extractor  *extract.Extractor
	chunker    *Chunker
	embed      Embedder
	classifier FragmentClassifier
	index      VectorIndex
	opts       Options
	logger     *slog.Logger
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(extractor *extract.Extractor, chunker *Chunker, embed Embedder, classifier FragmentClassifier, index VectorIndex, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = UpsertBatchSize
	}
	if chunker == nil {
		chunker = NewChunker()
	}
	return &Pipeline{
		extractor:  extractor,
		chunker:    chunker,
		embed:      embed,
		classifier: classifier,
		index:      index,
		opts:       opts,
		logger:     logger,
	}
}

// fragmentRecord pairs a fragment with its vector, or marks it skipped.
type fragmentRecord struct {
	record   *semantic.VectorRecord
	category domain.Category
	skipped  bool
}

// ProcessAndIndex runs one document through the full pipeline. The returned
// category is that of the last fragment actually indexed.
func (p *Pipeline) ProcessAndIndex(ctx context.Context, req Request) (Result, error) {
	doc := domain.Document{ID: req.DocumentID, Title: req.Title, Institution: req.Institution, Year: req.Year}
	if err := domain.ValidateDocument(&doc); err != nil {
		return Result{}, err
	}

	prepare := fn.Then(
		fn.TracedStage("ingest.extract", func(_ context.Context, r Request) fn.Result[string] {
			return fn.FromPair(p.extractor.Extract(r.FilePath, r.MediaType))
		}),
		fn.Then(
			fn.TracedStage("ingest.normalize", fn.MapStage(Normalize)),
			fn.TracedStage("ingest.chunk", fn.MapStage(p.chunker.Split)),
		),
	)

	chunks, err := prepare(ctx, req).Unwrap()
	if err != nil {
		return Result{}, err
	}

	chunks = fn.Filter(chunks, func(s string) bool { return strings.TrimSpace(s) != "" })
	if p.opts.MinWords > 0 {
		chunks = fn.Filter(chunks, func(s string) bool { return len(strings.Fields(s)) >= p.opts.MinWords })
	}
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("ingest: %s: %w", req.FilePath, domain.ErrEmptyDocument)
	}

	fragments := make([]domain.Fragment, len(chunks))
	for i, text := range chunks {
		fragments[i] = domain.Fragment{
			Text:        text,
			Index:       i,
			Fingerprint: Fingerprint(text),
			DocumentID:  doc.ID,
		}
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	// Fragments are read-only with respect to each other, so dedup check,
	// classification, and embedding fan out; the ordered result slice keeps
	// upserts in document order.
	processed := fn.ParMapResult(fragments, p.opts.Workers, func(f domain.Fragment) fn.Result[fragmentRecord] {
		return p.processFragment(ctx, doc, f, uploadedAt)
	})

	lastCategory := domain.CategoryGeneral
	var batch []semantic.VectorRecord
	indexed, skipped := 0, 0

	for _, r := range processed {
		out, err := r.Unwrap()
		if err != nil {
			return Result{}, err
		}
		if out.skipped {
			skipped++
			continue
		}
		lastCategory = out.category
		batch = append(batch, *out.record)
		indexed++

		if len(batch) >= p.opts.BatchSize {
			if err := p.index.Upsert(ctx, batch); err != nil {
				return Result{}, fmt.Errorf("ingest: flush batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := p.index.Upsert(ctx, batch); err != nil {
			return Result{}, fmt.Errorf("ingest: flush batch: %w", err)
		}
	}

	p.logger.Info("ingest: document done",
		"document_id", doc.ID,
		"fragments", len(fragments),
		"indexed", indexed,
		"skipped", skipped,
	)

	return Result{Success: true, Category: string(lastCategory)}, nil
}

// processFragment runs the dedup gate, classification, and embedding for one
// fragment. The dedup check is point-in-time: two concurrent ingestions of
// the same text may both pass it, and the duplicate insert is tolerated.
func (p *Pipeline) processFragment(ctx context.Context, doc domain.Document, f domain.Fragment, uploadedAt string) fn.Result[fragmentRecord] {
	seen, err := p.index.HasFingerprint(ctx, f.Fingerprint)
	if err != nil {
		return fn.Err[fragmentRecord](fmt.Errorf("ingest: dedup probe fragment %d: %w", f.Index, err))
	}
	if seen {
		p.logger.Debug("ingest: fragment already indexed", "document_id", doc.ID, "index", f.Index)
		return fn.Ok(fragmentRecord{skipped: true})
	}

	outcome := p.classifier.ClassifyFragment(ctx, f.Text)
	if outcome.Defaulted {
		p.logger.Warn("ingest: classification defaulted",
			"document_id", doc.ID, "index", f.Index, "err", outcome.Err)
	}

	embedding, err := p.embed.Embed(ctx, f.Text)
	if err != nil {
		return fn.Err[fragmentRecord](fmt.Errorf("ingest: embed fragment %d: %w", f.Index, err))
	}

	return fn.Ok(fragmentRecord{
		category: outcome.Category,
		record: &semantic.VectorRecord{
			ID:        uuid.NewString(),
			Embedding: embedding,
			Payload: map[string]any{
				domain.MetaDocumentID:  doc.ID,
				domain.MetaText:        f.Text,
				domain.MetaSource:      doc.Title,
				domain.MetaInstitution: doc.Institution,
				domain.MetaYear:        doc.Year,
				domain.MetaCategory:    string(outcome.Category),
				domain.MetaFingerprint: f.Fingerprint,
				domain.MetaUploadedAt:  uploadedAt,
			},
		},
	})
}

// DeleteDocument removes every vector whose metadata document_id matches.
// Store errors are reported in the result rather than raised past the
// boundary.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) DeleteResult {
	if err := p.index.DeleteByDocumentID(ctx, documentID); err != nil {
		p.logger.Error("ingest: delete document failed", "document_id", documentID, "err", err)
		msg := err.Error()
		return DeleteResult{Success: false, Error: &msg}
	}
	return DeleteResult{Success: true, DeletedDocument: &documentID}
}
