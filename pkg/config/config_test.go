package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "ciudadano-digital" || cfg.Qdrant.Dims != 1536 {
		t.Errorf("qdrant defaults = %+v", cfg.Qdrant)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" || cfg.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Errorf("openai defaults = %+v", cfg.OpenAI)
	}
	if cfg.Ingest.ChunkSize != 800 || cfg.Ingest.ChunkOverlap != 120 || cfg.Ingest.BatchSize != 100 {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.Answer.TopK != 5 || cfg.Answer.SummaryThreshold != 5 {
		t.Errorf("answer defaults = %+v", cfg.Answer)
	}
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
qdrant:
  collection: pruebas
ingest:
  chunk_size: 400
  min_words: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "pruebas" {
		t.Errorf("collection = %q", cfg.Qdrant.Collection)
	}
	if cfg.Ingest.ChunkSize != 400 || cfg.Ingest.MinWords != 5 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	// Unset fields still fall back.
	if cfg.Ingest.ChunkOverlap != 120 {
		t.Errorf("chunk overlap = %d", cfg.Ingest.ChunkOverlap)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("QDRANT_COLLECTION", "desde-env")
	t.Setenv("INGEST_MIN_WORDS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want the env value", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "desde-env" {
		t.Errorf("collection = %q", cfg.Qdrant.Collection)
	}
	if cfg.Ingest.MinWords != 8 {
		t.Errorf("min words = %d", cfg.Ingest.MinWords)
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("CIVICA_TEST_KEY", "sk-abc")
	o := OpenAI{APIKeyEnv: "CIVICA_TEST_KEY"}
	if o.APIKey() != "sk-abc" {
		t.Errorf("api key = %q", o.APIKey())
	}
}
