package ingest

// Request describes one document to ingest. DocumentID is the caller-chosen
// identifier (typically the remote storage path) stamped onto every fragment.
type Request struct {
	FilePath    string `json:"file_path"`
	MediaType   string `json:"media_type,omitempty"`
	Title       string `json:"title"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
	DocumentID  string `json:"document_id"`
}

// Result is the ingestion outcome. Category is the label of the last fragment
// actually processed, not an aggregate; callers needing per-fragment labels
// must not rely on it.
type Result struct {
	Success  bool   `json:"success"`
	Category string `json:"category"`
}

// DeleteResult reports a document deletion.
type DeleteResult struct {
	Success         bool    `json:"success"`
	DeletedDocument *string `json:"deleted_document"`
	Error           *string `json:"error"`
}
