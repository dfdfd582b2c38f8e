package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const card = "# Bekendmakingen\n\nCleaned Dutch government announcements.\n"

func TestSignAndVerify(t *testing.T) {
	signed := Sign(card, 1200, 6)

	assert.True(t, strings.HasPrefix(signed, strings.TrimRight(card, "\n")))
	assert.Contains(t, signed, "RECORDS: 1200")
	assert.Contains(t, signed, "SHARDS: 6")

	meta, err := Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, 1200, meta.Records)
	assert.Equal(t, 6, meta.Shards)
	assert.False(t, meta.UpdatedAt.IsZero())
}

func TestSign_ReplacesExistingBlock(t *testing.T) {
	signed := Sign(Sign(card, 1, 1), 400, 2)

	assert.Equal(t, 1, strings.Count(signed, TagStart))

	meta, err := Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, 400, meta.Records)
}

func TestVerify_Errors(t *testing.T) {
	_, err := Verify(card)
	require.ErrorIs(t, err, ErrNoMetadataBlock)

	tampered := strings.Replace(Sign(card, 10, 1), "Cleaned", "Raw", 1)
	_, err = Verify(tampered)
	require.ErrorIs(t, err, ErrHashMismatch)

	noHash := card + "\n" + TagStart + "\nRECORDS: 3\n" + TagEnd
	_, err = Verify(noHash)
	require.ErrorIs(t, err, ErrNoHashFound)
}

func TestCalculateHash_IgnoresBlock(t *testing.T) {
	assert.Equal(t, CalculateHash(card), CalculateHash(Sign(card, 5, 1)))
}
