// Package classify assigns category labels to fragments and queries via the
// chat-completion service. Classification is never fatal: failures degrade to
// the taxonomy's overflow label, and the Outcome records why.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/pkg/openai"
)

// MaxPromptChars bounds how much fragment text is sent for classification.
const MaxPromptChars = 500

// ChatClient is the completion boundary the classifier depends on.
type ChatClient interface {
	Chat(ctx context.Context, msgs []openai.Message, temperature float32) (string, error)
}

// Taxonomy describes one classification namespace. Ingestion uses a closed
// taxonomy with a "General" overflow; queries use an open taxonomy where a
// non-matching reply survives as a suggestion and a failure means "no filter".
// The two namespaces are deliberately separate.
type Taxonomy struct {
	Categories []domain.Category
	// Overflow is substituted when no category can be decided. Empty means
	// "no category", which retrieval treats as "no filter".
	Overflow domain.Category
	// Open keeps replies outside the fixed set as free-form suggestions.
	Open bool
}

// IngestTaxonomy is the closed fragment-indexing taxonomy.
func IngestTaxonomy() Taxonomy {
	return Taxonomy{Categories: domain.Categories, Overflow: domain.CategoryGeneral}
}

// QueryTaxonomy is the open query-side taxonomy.
func QueryTaxonomy() Taxonomy {
	return Taxonomy{Categories: domain.Categories, Open: true}
}

// Outcome reports a classification together with how it was reached, so
// callers can tell a degraded default from a genuine match.
type Outcome struct {
	Category domain.Category
	// Suggested marks an open-taxonomy reply outside the fixed set.
	Suggested bool
	// Defaulted marks that Overflow was substituted.
	Defaulted bool
	// Err is the request failure that forced the default, nil when the
	// default came from a non-matching reply.
	Err error
}

// Classifier labels text against a taxonomy.
type Classifier struct {
	chat   ChatClient
	logger *slog.Logger
}

// New creates a Classifier.
func New(chat ChatClient, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{chat: chat, logger: logger}
}

// ClassifyFragment labels document text with the closed ingestion taxonomy.
func (c *Classifier) ClassifyFragment(ctx context.Context, text string) Outcome {
	tax := IngestTaxonomy()
	prompt := fragmentPrompt(text, tax)
	return c.classify(ctx, prompt, tax)
}

// ClassifyQuery labels a user question with the open query taxonomy. An empty
// Category means no filter should be applied.
func (c *Classifier) ClassifyQuery(ctx context.Context, question string) Outcome {
	tax := QueryTaxonomy()
	prompt := queryPrompt(question, tax)
	return c.classify(ctx, prompt, tax)
}

func (c *Classifier) classify(ctx context.Context, prompt string, tax Taxonomy) Outcome {
	reply, err := c.chat.Chat(ctx, []openai.Message{{Role: openai.RoleUser, Content: prompt}}, 0)
	if err != nil {
		c.logger.Warn("classify: request failed, using default", "default", string(tax.Overflow), "err", err)
		return Outcome{Category: tax.Overflow, Defaulted: true, Err: err}
	}

	category := domain.Category(strings.TrimSpace(reply))
	if domain.ValidCategory(category) {
		return Outcome{Category: category}
	}
	if tax.Open && category != "" {
		return Outcome{Category: category, Suggested: true}
	}
	return Outcome{Category: tax.Overflow, Defaulted: true}
}

func fragmentPrompt(text string, tax Taxonomy) string {
	return fmt.Sprintf(`Clasifica el siguiente texto en una de las categorías:
[%s].
Responde SOLO con el nombre de la categoría.

Texto: %s`, joinCategories(tax.Categories), truncate(text, MaxPromptChars))
}

func queryPrompt(question string, tax Taxonomy) string {
	return fmt.Sprintf(`Clasifica la siguiente pregunta en una de estas categorías:
[%s].
Responde SOLO con el nombre de la categoría.

Pregunta: %s`, joinCategories(tax.Categories), truncate(question, MaxPromptChars))
}

func joinCategories(cats []domain.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// truncate bounds text to n bytes without splitting a UTF-8 rune.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
