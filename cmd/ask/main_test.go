package main

import (
	"path/filepath"
	"testing"

	"github.com/ciudadano-digital/civica/engine/answer"
	"github.com/ciudadano-digital/civica/pkg/config"
)

func TestRetrieveOptions(t *testing.T) {
	cfg, err := config.Load("does-not-exist.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Answer.TopK = 3
	cfg.Answer.ScoreThreshold = 0.35

	opts := retrieveOptions(cfg)
	if opts.TopK != 3 {
		t.Errorf("TopK = %d, want 3", opts.TopK)
	}
	if opts.ScoreThreshold != float32(0.35) {
		t.Errorf("ScoreThreshold = %v, want 0.35", opts.ScoreThreshold)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	want := &session{
		ChatID:  "Derechos del votante",
		History: []answer.Turn{{Question: "¿Qué es el voto?", Answer: "Un derecho."}},
		Summary: "Conversación sobre el voto.",
	}
	if err := saveSession(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := loadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ChatID != want.ChatID || got.Summary != want.Summary {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.History) != 1 || got.History[0].Question != "¿Qué es el voto?" {
		t.Errorf("history = %+v", got.History)
	}
}

func TestLoadSession_MissingFileIsEmpty(t *testing.T) {
	s, err := loadSession(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if s.ChatID != "" || len(s.History) != 0 || s.Summary != "" {
		t.Errorf("expected empty session, got %+v", s)
	}
}
