// Command ask answers a single question against the indexed collection and
// prints the structured answer as JSON.
//
// Usage:
//
//	ask [-chat-id id] [-session session.json] "¿Qué es la participación ciudadana?"
//
// The session file, when given, supplies prior turns and the rolling summary
// and is rewritten with the new turn appended, so repeated invocations carry
// the conversation forward.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ciudadano-digital/civica/engine/answer"
	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/retrieve"
	"github.com/ciudadano-digital/civica/engine/semantic"
	"github.com/ciudadano-digital/civica/pkg/config"
	"github.com/ciudadano-digital/civica/pkg/openai"
)

// session is the on-disk conversation state.
type session struct {
	ChatID  string        `json:"chat_id,omitempty"`
	History []answer.Turn `json:"history,omitempty"`
	Summary string        `json:"summary,omitempty"`
}

func main() {
	var (
		configPath  = flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to config file")
		chatID      = flag.String("chat-id", "", "conversation id; empty requests a generated chat name")
		sessionPath = flag.String("session", "", "path to a session file holding history and summary")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [flags] <question>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, question, *chatID, *sessionPath, logger); err != nil {
		logger.Error("ask failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, question, chatID, sessionPath string, logger *slog.Logger) error {
	aiOpts := openai.DefaultOptions()
	aiOpts.BaseURL = cfg.OpenAI.BaseURL
	aiOpts.APIKey = cfg.OpenAI.APIKey()
	aiOpts.EmbedModel = cfg.OpenAI.EmbedModel
	aiOpts.ChatModel = cfg.OpenAI.ChatModel
	aiOpts.Timeout = time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second
	ai := openai.New(aiOpts)

	store, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.Dims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	classifier := classify.New(ai, logger)
	retriever := retrieve.New(ai, store, retrieveOptions(cfg), logger)
	composer := answer.New(classifier, retriever, ai, answer.Options{
		Temperature:      float32(cfg.Answer.Temperature),
		SummaryThreshold: cfg.Answer.SummaryThreshold,
		MaxFollowUps:     3,
	}, logger)

	sess, err := loadSession(sessionPath)
	if err != nil {
		return err
	}
	if chatID == "" {
		chatID = sess.ChatID
	}

	ans, err := composer.Ask(ctx, answer.Request{
		Question: question,
		ChatID:   chatID,
		History:  sess.History,
		Summary:  sess.Summary,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ans); err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	if sessionPath != "" {
		sess.ChatID = chatID
		sess.History = append(sess.History, answer.Turn{Question: question, Answer: ans.Response})
		if ans.NewSummary != nil {
			sess.Summary = *ans.NewSummary
			// The summary replaces the turns it covers.
			sess.History = nil
		}
		if err := saveSession(sessionPath, sess); err != nil {
			return err
		}
	}
	return nil
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

func loadSession(path string) (*session, error) {
	if path == "" {
		return &session{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &s, nil
}

func saveSession(path string, s *session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
