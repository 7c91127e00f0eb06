package domain

import (
	"strings"
	"unicode/utf8"
)

const minQuestionLength = 3

// ValidateDocument checks caller-supplied document metadata before ingestion.
// Unknown year and institution must use the explicit sentinels rather than an
// empty string, so the check fills them in instead of rejecting.
func ValidateDocument(d *Document) error {
	if strings.TrimSpace(d.ID) == "" {
		return NewValidationError("document_id", d.ID, ErrMissingDocumentID)
	}
	if strings.TrimSpace(d.Title) == "" {
		return NewValidationError("title", d.Title, ErrMissingTitle)
	}
	if strings.TrimSpace(d.Year) == "" {
		d.Year = YearUnknown
	}
	if strings.TrimSpace(d.Institution) == "" {
		d.Institution = InstitutionUnknown
	}
	return nil
}

// ValidateQuestion checks a user question before the answer pipeline runs.
func ValidateQuestion(q string) error {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < minQuestionLength {
		return NewValidationError("question", q, ErrEmptyQuestion)
	}
	return nil
}
