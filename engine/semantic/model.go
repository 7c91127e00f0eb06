package semantic

// SearchResult is a single vector search hit with its payload decoded.
type SearchResult struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	Text        string  `json:"text"`
	DocumentID  string  `json:"document_id"`
	Source      string  `json:"source"`
	Institution string  `json:"institution"`
	Year        string  `json:"year"`
	Category    string  `json:"category"`
	Fingerprint string  `json:"fingerprint"`
}

// VectorRecord is a single vector to persist.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // document_id, text, source, institution, year, category, fingerprint, uploaded_at
}
