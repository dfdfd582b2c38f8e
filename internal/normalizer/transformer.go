package normalizer

import (
	"errors"

	"bekendmakingen/internal/models"
)

// ErrNoContent is returned when a document yields no text.
var ErrNoContent = errors.New("no text extracted")

// Transformer turns a downloaded document into a record.
type Transformer struct{}

// NewTransformer creates a new transformer instance.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform extracts the text of raw and pairs it with the item's URL and source.
func (t *Transformer) Transform(raw []byte, item models.URLItem) (models.Record, error) {
	text := ExtractText(raw)
	if text == "" {
		return models.Record{}, ErrNoContent
	}

	return models.Record{
		URL:     item.URL,
		Content: text,
		Source:  item.Source,
	}, nil
}
