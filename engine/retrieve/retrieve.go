// Package retrieve embeds a question, searches the vector index with an
// optional category filter, retries unfiltered when the filter starves the
// result, and gates matches on a similarity threshold.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/engine/semantic"
)

// Embedder is the embedding boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector similarity search.
type Searcher interface {
	SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]semantic.SearchResult, error)
}

// Options configures retrieval.
type Options struct {
	TopK int
	// ScoreThreshold is the similarity gate: matches scoring below it are
	// discarded as irrelevant.
	ScoreThreshold float32
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{TopK: 5, ScoreThreshold: 0.35}
}

// Context is the retrieved evidence for one question. Empty fragments mean
// the composer must take the refusal path; that is a designed outcome, not an
// error.
type Context struct {
	// Fragments are prompt-ready context strings in descending score order.
	Fragments []string
	// Citations are display strings, one per fragment, same order.
	Citations []string
}

// Empty reports whether no relevant context was found.
func (c Context) Empty() bool { return len(c.Fragments) == 0 }

// Engine runs similarity-gated context retrieval.
type Engine struct {
	embed  Embedder
	store  Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a retrieval Engine.
func New(embed Embedder, store Searcher, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	return &Engine{embed: embed, store: store, opts: opts, logger: logger}
}

// Retrieve fetches context for a question. An empty category means no filter.
// A filtered query returning zero matches is retried once without the filter,
// so a category mismatch cannot starve retrieval entirely.
func (e *Engine) Retrieve(ctx context.Context, question string, category domain.Category) (Context, error) {
	embedding, err := e.embed.Embed(ctx, question)
	if err != nil {
		return Context{}, fmt.Errorf("retrieve: embed query: %w", err)
	}

	var filters map[string]string
	if category != "" {
		filters = map[string]string{domain.MetaCategory: string(category)}
	}

	matches, err := e.store.SearchFiltered(ctx, embedding, e.opts.TopK, filters)
	if err != nil {
		return Context{}, fmt.Errorf("retrieve: search: %w", err)
	}

	if len(matches) == 0 && len(filters) > 0 {
		e.logger.Info("retrieve: filtered search empty, retrying unfiltered", "category", string(category))
		matches, err = e.store.SearchFiltered(ctx, embedding, e.opts.TopK, nil)
		if err != nil {
			return Context{}, fmt.Errorf("retrieve: fallback search: %w", err)
		}
	}

	var out Context
	for _, m := range matches {
		if m.Score < e.opts.ScoreThreshold {
			continue
		}
		out.Fragments = append(out.Fragments, formatFragment(m))
		out.Citations = append(out.Citations, FormatCitation(m.Source, m.Institution, m.Year))
	}

	e.logger.Info("retrieve: done",
		"matches", len(matches),
		"kept", len(out.Fragments),
		"category", string(category),
	)
	return out, nil
}

// formatFragment renders one match as a prompt context block.
func formatFragment(m semantic.SearchResult) string {
	return fmt.Sprintf("[%s] %s (Fuente: %s, %s, %s)", m.Category, m.Text, m.Source, m.Institution, m.Year)
}

// FormatCitation renders a display citation. The year is parsed defensively:
// non-numeric values (such as the "S/F" sentinel) are rendered without a
// year rather than failing.
func FormatCitation(source, institution, year string) string {
	if source == "" {
		source = "Desconocido"
	}
	if _, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
		return fmt.Sprintf("%s (%s, %s)", source, institution, strings.TrimSpace(year))
	}
	if institution != "" {
		return fmt.Sprintf("%s (%s)", source, institution)
	}
	return source
}
