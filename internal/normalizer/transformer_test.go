package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bekendmakingen/internal/models"
)

func TestTransformer_Transform(t *testing.T) {
	item := models.URLItem{URL: "https://repository.overheid.nl/a/gmb-1.xml", Source: "lokalebekendmakingen"}

	rec, err := NewTransformer().Transform([]byte("<doc><titel>Besluit</titel> <p>Tekst</p></doc>"), item)
	require.NoError(t, err)

	assert.Equal(t, models.Record{URL: item.URL, Content: "Besluit Tekst", Source: "lokalebekendmakingen"}, rec)
}

func TestTransformer_NoContent(t *testing.T) {
	for _, raw := range []string{
		"<doc/>",
		"<html><head><title>x</title></head><body> </body></html>",
	} {
		_, err := NewTransformer().Transform([]byte(raw), models.URLItem{URL: "u"})
		require.ErrorIs(t, err, ErrNoContent, raw)
	}
}
