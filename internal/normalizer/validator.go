package normalizer

import (
	"errors"
	"fmt"

	"bekendmakingen/internal/models"
)

// Validation errors.
var (
	ErrMissingURL     = errors.New("record missing url")
	ErrMissingContent = errors.New("record missing content")
	ErrMissingSource  = errors.New("record missing source")
	ErrSourceMismatch = errors.New("record source does not match")
	ErrUnknownSource  = errors.New("record source is not a configured label")
)

// Validator checks records before they are written.
type Validator struct {
	labels map[string]bool
}

// NewValidator creates a validator accepting the given source labels.
// A nil set accepts any non-empty source.
func NewValidator(labels map[string]bool) *Validator {
	return &Validator{labels: labels}
}

// Validate checks that the record has a url, content and a known source,
// equal to expectedSource when one is given.
func (v *Validator) Validate(rec models.Record, expectedSource string) error {
	if rec.URL == "" {
		return ErrMissingURL
	}

	if rec.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrMissingContent, rec.URL)
	}

	if rec.Source == "" {
		return fmt.Errorf("%w: %s", ErrMissingSource, rec.URL)
	}

	if expectedSource != "" && rec.Source != expectedSource {
		return fmt.Errorf("%w: got %q, want %q", ErrSourceMismatch, rec.Source, expectedSource)
	}

	if v.labels != nil && !v.labels[rec.Source] {
		return fmt.Errorf("%w: %q", ErrUnknownSource, rec.Source)
	}

	return nil
}
