package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ciudadano-digital/civica/engine/classify"
	"github.com/ciudadano-digital/civica/engine/domain"
	"github.com/ciudadano-digital/civica/engine/extract"
	"github.com/ciudadano-digital/civica/engine/semantic"
)

// --- fakes ---

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeClassifier struct {
	outcome classify.Outcome
}

func (f *fakeClassifier) ClassifyFragment(_ context.Context, _ string) classify.Outcome {
	return f.outcome
}

type fakeIndex struct {
	mu       sync.Mutex
	upserts  [][]semantic.VectorRecord
	seen     map[string]bool
	probeErr error
	delErr   error
	deleted  []string
}

func (f *fakeIndex) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]semantic.VectorRecord, len(records))
	copy(batch, records)
	f.upserts = append(f.upserts, batch)
	return nil
}

func (f *fakeIndex) HasFingerprint(_ context.Context, digest string) (bool, error) {
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.seen[digest], nil
}

func (f *fakeIndex) DeleteByDocumentID(_ context.Context, documentID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeIndex) records() []semantic.VectorRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []semantic.VectorRecord
	for _, b := range f.upserts {
		out = append(out, b...)
	}
	return out
}

// --- helpers ---

func writeTempText(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestPipeline(t *testing.T, index *fakeIndex, opts Options) (*Pipeline, *fakeEmbedder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	embedder := &fakeEmbedder{}
	classifier := &fakeClassifier{outcome: classify.Outcome{Category: domain.CategoryCivismo}}
	chunker := &Chunker{Size: 30, Overlap: 0, Separators: DefaultSeparators}
	return NewPipeline(extract.New(logger), chunker, embedder, classifier, index, opts, logger), embedder
}

// --- tests ---

func TestProcessAndIndex_Success(t *testing.T) {
	index := &fakeIndex{}
	p, _ := newTestPipeline(t, index, DefaultOptions())
	path := writeTempText(t, "La ética guía nuestras decisiones cotidianas.")

	res, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath:    path,
		Title:       "Manual de Ética",
		Institution: "Ministerio de Educación",
		Year:        "2021",
		DocumentID:  "doc-1",
	})
	if err != nil {
		t.Fatalf("ProcessAndIndex: %v", err)
	}
	if !res.Success {
		t.Error("result not marked successful")
	}
	if res.Category != string(domain.CategoryCivismo) {
		t.Errorf("category = %q, want %q", res.Category, domain.CategoryCivismo)
	}

	records := index.records()
	if len(records) == 0 {
		t.Fatal("no records upserted")
	}
	payload := records[0].Payload
	if payload[domain.MetaDocumentID] != "doc-1" {
		t.Errorf("document_id = %v", payload[domain.MetaDocumentID])
	}
	if payload[domain.MetaSource] != "Manual de Ética" {
		t.Errorf("source = %v", payload[domain.MetaSource])
	}
	if payload[domain.MetaYear] != "2021" {
		t.Errorf("year = %v", payload[domain.MetaYear])
	}
	if payload[domain.MetaCategory] != string(domain.CategoryCivismo) {
		t.Errorf("category = %v", payload[domain.MetaCategory])
	}
	if payload[domain.MetaFingerprint] == "" {
		t.Error("fingerprint missing from payload")
	}
	if records[0].ID == "" {
		t.Error("record id is empty")
	}
}

func TestProcessAndIndex_FillsMetadataSentinels(t *testing.T) {
	index := &fakeIndex{}
	p, _ := newTestPipeline(t, index, DefaultOptions())
	path := writeTempText(t, "Contenido mínimo sobre convivencia.")

	_, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath:   path,
		Title:      "Guía",
		DocumentID: "doc-2",
	})
	if err != nil {
		t.Fatalf("ProcessAndIndex: %v", err)
	}

	payload := index.records()[0].Payload
	if payload[domain.MetaYear] != domain.YearUnknown {
		t.Errorf("year = %v, want sentinel %q", payload[domain.MetaYear], domain.YearUnknown)
	}
	if payload[domain.MetaInstitution] != domain.InstitutionUnknown {
		t.Errorf("institution = %v, want sentinel %q", payload[domain.MetaInstitution], domain.InstitutionUnknown)
	}
}

func TestProcessAndIndex_SkipsSeenFingerprints(t *testing.T) {
	text := "Texto ya indexado previamente."
	index := &fakeIndex{seen: map[string]bool{Fingerprint(text): true}}
	p, embedder := newTestPipeline(t, index, DefaultOptions())
	path := writeTempText(t, text)

	res, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath: path, Title: "Guía", DocumentID: "doc-3",
	})
	if err != nil {
		t.Fatalf("ProcessAndIndex: %v", err)
	}
	if !res.Success {
		t.Error("skipping duplicates should still succeed")
	}
	if len(index.upserts) != 0 {
		t.Errorf("upserted %d batches for an already-indexed document", len(index.upserts))
	}
	if embedder.calls != 0 {
		t.Errorf("embedded %d skipped fragments", embedder.calls)
	}
	// Nothing indexed: the category falls back to the overflow label.
	if res.Category != string(domain.CategoryGeneral) {
		t.Errorf("category = %q, want %q", res.Category, domain.CategoryGeneral)
	}
}

func TestProcessAndIndex_EmptyDocument(t *testing.T) {
	index := &fakeIndex{}
	p, _ := newTestPipeline(t, index, DefaultOptions())
	path := writeTempText(t, "   \n\n   ")

	_, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath: path, Title: "Vacío", DocumentID: "doc-4",
	})
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func TestProcessAndIndex_MinWordsFilter(t *testing.T) {
	text := "uno dos\n\ncuatro cinco seis siete ocho"

	run := func(minWords int) []semantic.VectorRecord {
		index := &fakeIndex{}
		opts := DefaultOptions()
		opts.MinWords = minWords
		p, _ := newTestPipeline(t, index, opts)
		path := writeTempText(t, text)
		if _, err := p.ProcessAndIndex(context.Background(), Request{
			FilePath: path, Title: "Guía", DocumentID: "doc-5",
		}); err != nil {
			t.Fatalf("ProcessAndIndex: %v", err)
		}
		return index.records()
	}

	if got := run(0); len(got) != 2 {
		t.Errorf("filter off: indexed %d fragments, want 2", len(got))
	}
	got := run(3)
	if len(got) != 1 {
		t.Fatalf("filter on: indexed %d fragments, want 1", len(got))
	}
	if got[0].Payload[domain.MetaText] != "cuatro cinco seis siete ocho" {
		t.Errorf("kept fragment = %v", got[0].Payload[domain.MetaText])
	}
}

func TestProcessAndIndex_BatchFlush(t *testing.T) {
	index := &fakeIndex{}
	opts := DefaultOptions()
	opts.BatchSize = 2
	opts.Workers = 1
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	classifier := &fakeClassifier{outcome: classify.Outcome{Category: domain.CategoryCivismo}}
	// A tiny chunk size so every paragraph becomes its own fragment.
	chunker := &Chunker{Size: 10, Overlap: 0, Separators: DefaultSeparators}
	p := NewPipeline(extract.New(logger), chunker, &fakeEmbedder{}, classifier, index, opts, logger)
	path := writeTempText(t, "parte01\n\nparte02\n\nparte03\n\nparte04\n\nparte05")

	res, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath: path, Title: "Guía", DocumentID: "doc-6",
	})
	if err != nil {
		t.Fatalf("ProcessAndIndex: %v", err)
	}
	if !res.Success {
		t.Error("result not marked successful")
	}

	if len(index.upserts) != 3 {
		t.Fatalf("flushed %d batches, want 3 (2+2+1)", len(index.upserts))
	}
	sizes := []int{len(index.upserts[0]), len(index.upserts[1]), len(index.upserts[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}

	// Upsert order must follow document order regardless of worker fan-out.
	want := []string{"parte01", "parte02", "parte03", "parte04", "parte05"}
	for i, rec := range index.records() {
		text, _ := rec.Payload[domain.MetaText].(string)
		if len(text) < len(want[i]) || text[:len(want[i])] != want[i] {
			t.Errorf("record %d text = %q, want prefix %q", i, text, want[i])
		}
	}
}

func TestProcessAndIndex_EmbedErrorFatal(t *testing.T) {
	index := &fakeIndex{}
	p, embedder := newTestPipeline(t, index, DefaultOptions())
	embedder.err = errors.New("embedding service down")
	path := writeTempText(t, "Texto que no se podrá procesar.")

	if _, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath: path, Title: "Guía", DocumentID: "doc-7",
	}); err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if len(index.upserts) != 0 {
		t.Error("records upserted despite embedding failure")
	}
}

func TestProcessAndIndex_DedupProbeErrorFatal(t *testing.T) {
	index := &fakeIndex{probeErr: errors.New("store unavailable")}
	p, _ := newTestPipeline(t, index, DefaultOptions())
	path := writeTempText(t, "Texto cualquiera.")

	if _, err := p.ProcessAndIndex(context.Background(), Request{
		FilePath: path, Title: "Guía", DocumentID: "doc-8",
	}); err == nil {
		t.Fatal("expected an error when the dedup probe fails")
	}
}

func TestProcessAndIndex_ValidatesMetadata(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeIndex{}, DefaultOptions())

	_, err := p.ProcessAndIndex(context.Background(), Request{FilePath: "x.txt", Title: "Guía"})
	if !errors.Is(err, domain.ErrMissingDocumentID) {
		t.Errorf("err = %v, want ErrMissingDocumentID", err)
	}

	_, err = p.ProcessAndIndex(context.Background(), Request{FilePath: "x.txt", DocumentID: "doc-9"})
	if !errors.Is(err, domain.ErrMissingTitle) {
		t.Errorf("err = %v, want ErrMissingTitle", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	index := &fakeIndex{}
	p, _ := newTestPipeline(t, index, DefaultOptions())

	res := p.DeleteDocument(context.Background(), "doc-10")
	if !res.Success {
		t.Fatal("delete reported failure")
	}
	if res.DeletedDocument == nil || *res.DeletedDocument != "doc-10" {
		t.Errorf("deleted document = %v", res.DeletedDocument)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "doc-10" {
		t.Errorf("store deletions = %v", index.deleted)
	}
}

func TestDeleteDocument_ErrorInBand(t *testing.T) {
	index := &fakeIndex{delErr: errors.New("filter delete rejected")}
	p, _ := newTestPipeline(t, index, DefaultOptions())

	res := p.DeleteDocument(context.Background(), "doc-11")
	if res.Success {
		t.Fatal("delete reported success despite store error")
	}
	if res.Error == nil || *res.Error == "" {
		t.Error("error detail missing from result")
	}
	if res.DeletedDocument != nil {
		t.Error("deleted document set on failure")
	}
}
