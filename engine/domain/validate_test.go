package domain

import (
	"errors"
	"testing"
)

func TestValidateDocument_FillsSentinels(t *testing.T) {
	d := Document{ID: "doc-1", Title: "Guía"}
	if err := ValidateDocument(&d); err != nil {
		t.Fatalf("ValidateDocument: %v", err)
	}
	if d.Year != YearUnknown {
		t.Errorf("year = %q, want %q", d.Year, YearUnknown)
	}
	if d.Institution != InstitutionUnknown {
		t.Errorf("institution = %q, want %q", d.Institution, InstitutionUnknown)
	}
}

func TestValidateDocument_KeepsProvidedMetadata(t *testing.T) {
	d := Document{ID: "doc-1", Title: "Guía", Institution: "MinEdu", Year: "2020"}
	if err := ValidateDocument(&d); err != nil {
		t.Fatalf("ValidateDocument: %v", err)
	}
	if d.Year != "2020" || d.Institution != "MinEdu" {
		t.Errorf("metadata overwritten: %+v", d)
	}
}

func TestValidateDocument_MissingFields(t *testing.T) {
	err := ValidateDocument(&Document{Title: "Guía"})
	if !errors.Is(err, ErrMissingDocumentID) {
		t.Errorf("err = %v, want ErrMissingDocumentID", err)
	}

	err = ValidateDocument(&Document{ID: "doc-1", Title: "   "})
	if !errors.Is(err, ErrMissingTitle) {
		t.Errorf("err = %v, want ErrMissingTitle", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err %T does not unwrap to ValidationError", err)
	}
	if verr.Field != "title" {
		t.Errorf("field = %q", verr.Field)
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion("¿Qué es el civismo?"); err != nil {
		t.Errorf("valid question rejected: %v", err)
	}
	// Three runes is the minimum; "¿sí" counts runes, not bytes.
	if err := ValidateQuestion("¿sí"); err != nil {
		t.Errorf("three-rune question rejected: %v", err)
	}
	if err := ValidateQuestion("  ab  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
	if err := ValidateQuestion(""); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false", c)
		}
	}
	if ValidCategory(CategoryGeneral) {
		t.Error("the overflow label is not part of the fixed set")
	}
	if ValidCategory("Astronomía") {
		t.Error("unknown label accepted")
	}
}
