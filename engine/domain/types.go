// Package domain defines the core types, category taxonomies, and validation
// for the Civica engine. It acts as the validation gate at pipeline entry points.
package domain

// Sentinel values used when document metadata is unknown.
const (
	// YearUnknown marks a document with no known publication year ("Sin Fecha").
	YearUnknown = "S/F"
	// InstitutionUnknown marks a document with no known author ("Sin Datos").
	InstitutionUnknown = "S/D"
)

// Category is a classification label from the civic-education taxonomy.
type Category string

const (
	CategoryEtica           Category = "Ética"
	CategoryCivismo         Category = "Civismo"
	CategoryConvivencia     Category = "Convivencia"
	CategoryResponsabilidad Category = "Responsabilidad"
	CategoryJusticia        Category = "Justicia"
	CategoryParticipacion   Category = "Participación ciudadana"

	// CategoryGeneral is the overflow label for content that fits none of the
	// fixed categories.
	CategoryGeneral Category = "General"
)

// Categories is the fixed classification set, in taxonomy order. It excludes
// the overflow label.
var Categories = []Category{
	CategoryEtica,
	CategoryCivismo,
	CategoryConvivencia,
	CategoryResponsabilidad,
	CategoryJusticia,
	CategoryParticipacion,
}

// ValidCategory reports whether c belongs to the fixed set.
func ValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Document carries the caller-supplied metadata stamped onto every fragment of
// an ingested file. It is never persisted as its own row; deleting a document
// means deleting all vectors whose metadata references its ID.
type Document struct {
	ID          string `json:"document_id"`
	Title       string `json:"title"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

// Fragment is a bounded span of normalized document text, ready for
// classification and embedding.
type Fragment struct {
	Text        string   `json:"text"`
	Index       int      `json:"index"`
	Fingerprint string   `json:"fingerprint"`
	Category    Category `json:"category"`
	DocumentID  string   `json:"document_id"`
}

// Metadata keys of the vector index payload. These are the contract surface
// shared by ingestion and retrieval and must stay stable.
const (
	MetaDocumentID  = "document_id"
	MetaText        = "text"
	MetaSource      = "source"
	MetaInstitution = "institution"
	MetaYear        = "year"
	MetaCategory    = "category"
	MetaFingerprint = "fingerprint"
	MetaUploadedAt  = "uploaded_at"
)
