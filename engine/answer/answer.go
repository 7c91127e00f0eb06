// Package answer orchestrates one conversational turn: categorize the
// question, retrieve gated context, refresh the rolling summary when due,
// build the prompt, generate, and validate the refusal policy.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/engine/retrieve"
	"github.com/ciudadano-digital/civica/pkg/fn"
	"github.com/ciudadano-digital/civica/pkg/openai"
)

// QueryClassifier labels a question with the open query taxonomy.
type QueryClassifier interface {
	ClassifyQuery(ctx context.Context, question string) classify.Outcome
}

// Retriever fetches similarity-gated context.
type Retriever interface {
	Retrieve(ctx context.Context, question string, category domain.Category) (retrieve.Context, error)
}

// ChatClient is the generation boundary.
type ChatClient interface {
	Chat(ctx context.Context, msgs []openai.Message, temperature float32) (string, error)
}

// Options configures the composer.
type Options struct {
	// Temperature for generation; low to favour faithfulness over creativity.
	Temperature float32
	// SummaryThreshold is the history length that triggers summarization.
	SummaryThreshold int
	// MaxFollowUps caps the suggested-question block.
	MaxFollowUps int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Temperature:      0.2,
		SummaryThreshold: DefaultSummaryThreshold,
		MaxFollowUps:     3,
	}
}

// Request is one conversational turn. History and Summary are supplied by the
// caller's session store; the engine never persists them.
type Request struct {
	Question string `json:"question"`
	ChatID   string `json:"chat_id,omitempty"`
	History  []Turn `json:"history,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// Answer is the structured result of one turn. Category is nil when query
// classification produced nothing. NewSummary is set only on the turns where
// the rolling summary was regenerated; the caller persists it.
type Answer struct {
	Response   string   `json:"response"`
	Reference  string   `json:"reference"`
	Question   string   `json:"question"`
	Category   *string  `json:"category"`
	ChatName   string   `json:"chatName,omitempty"`
	NewSummary *string  `json:"newSummary,omitempty"`
	FollowUps  []string `json:"followUpQuestions,omitempty"`
}

// Composer runs the retrieval-augmented answer pipeline. All external clients
// are injected.
type Composer struct {
	classifier QueryClassifier
	retriever  Retriever
	chat       ChatClient
	opts       Options
	encoder    *tiktoken.Tiktoken
	logger     *slog.Logger
}

// New creates a Composer.
func New(classifier QueryClassifier, retriever Retriever, chat ChatClient, opts Options, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFollowUps <= 0 {
		opts.MaxFollowUps = DefaultOptions().MaxFollowUps
	}
	// Token accounting only; a missing encoding just disables the log field.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("answer: token encoding unavailable", "err", err)
	}
	return &Composer{
		classifier: classifier,
		retriever:  retriever,
		chat:       chat,
		opts:       opts,
		encoder:    encoder,
		logger:     logger,
	}
}

// Ask answers one question with conversational memory.
func (c *Composer) Ask(ctx context.Context, req Request) (*Answer, error) {
	if err := domain.ValidateQuestion(req.Question); err != nil {
		return nil, err
	}

	// CATEGORIZE_QUERY: a failure here degrades to "no filter", never fails
	// the turn.
	outcome := c.classifier.ClassifyQuery(ctx, req.Question)
	if outcome.Defaulted && outcome.Err != nil {
		c.logger.Warn("answer: query classification degraded", "err", outcome.Err)
	}

	// RETRIEVE
	evidence, err := c.retriever.Retrieve(ctx, req.Question, outcome.Category)
	if err != nil {
		return nil, err
	}

	// SUMMARIZE_IF_DUE: an independent side computation; its failure does not
	// block the answer.
	var newSummary *string
	if summaryDue(req.History, c.opts.SummaryThreshold) {
		if s, err := c.summarize(ctx, req.History); err != nil {
			c.logger.Warn("answer: summary refresh failed, keeping previous", "err", err)
		} else {
			newSummary = &s
		}
	}

	// BUILD_PROMPT → GENERATE
	msgs := buildPrompt(req.Question, req.History, req.Summary, evidence.Fragments)
	c.logger.Info("answer: prompt built",
		"context_fragments", len(evidence.Fragments),
		"history_turns", len(req.History),
		"prompt_tokens", c.countTokens(msgs),
	)

	reply, err := c.chat.Chat(ctx, msgs, c.opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}

	response, followUps := parseReply(reply, c.opts.MaxFollowUps)

	// The refusal policy is prompted, but the generator may deviate; with no
	// context the answer must be the literal refusal, and any follow-ups
	// parsed out of the discarded reply go with it.
	if evidence.Empty() && response != RefusalMessage {
		c.logger.Info("answer: empty context, forcing refusal", "generated_len", len(response))
		response, followUps = RefusalMessage, nil
	}

	ans := &Answer{
		Response:   response,
		Reference:  strings.Join(fn.Unique(evidence.Citations), ", "),
		Question:   req.Question,
		Category:   categoryValue(outcome),
		NewSummary: newSummary,
		FollowUps:  followUps,
	}

	// RESPOND: name brand-new chats from their opening question.
	if req.ChatID == "" || req.ChatID == "undefined" {
		ans.ChatName = c.chatName(ctx, req.Question)
	}

	return ans, nil
}

// chatName asks the generator for a short title; on failure it falls back to
// the question's leading words.
func (c *Composer) chatName(ctx context.Context, question string) string {
	prompt := fmt.Sprintf(`Genera un título breve (máximo 5 palabras) para un chat que comienza con esta pregunta. Responde SOLO con el título.

Pregunta: %s`, question)

	reply, err := c.chat.Chat(ctx, []openai.Message{{Role: openai.RoleUser, Content: prompt}}, c.opts.Temperature)
	if err != nil {
		c.logger.Warn("answer: chat naming failed, using fallback", "err", err)
		words := strings.Fields(question)
		if len(words) > 6 {
			words = words[:6]
		}
		return strings.Join(words, " ")
	}
	return strings.Trim(strings.TrimSpace(reply), `"`)
}

func (c *Composer) countTokens(msgs []openai.Message) int {
	if c.encoder == nil {
		return -1
	}
	n := 0
	for _, m := range msgs {
		n += len(c.encoder.Encode(m.Content, nil, nil))
	}
	return n
}

func categoryValue(o classify.Outcome) *string {
	if o.Category == "" {
		return nil
	}
	s := string(o.Category)
	return &s
}
