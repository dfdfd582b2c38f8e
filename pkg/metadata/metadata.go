// Package metadata signs the dataset card with a block describing the
// published shards, so a later run can tell whether the card matches its body.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// TagStart is the start of the metadata block.
	TagStart = "<!-- METADATA_START"
	// TagEnd is the end of the metadata block.
	TagEnd = "METADATA_END -->"
)

// Metadata verification errors.
var (
	ErrNoMetadataBlock = errors.New("no metadata block found")
	ErrNoHashFound     = errors.New("no hash found in metadata")
	ErrHashMismatch    = errors.New("hash mismatch")
)

// Metadata describes the dataset state a card was signed for.
type Metadata struct {
	UpdatedAt time.Time
	Hash      string
	Records   int
	Shards    int
}

var metadataRegex = regexp.MustCompile(`(?s)<!--\s*METADATA_START\s*\n(.*?)\n\s*METADATA_END\s*-->`)

// Extract splits content into its metadata block and the body that is hashed.
// The returned metadata is nil when no block is present.
func Extract(content string) (*Metadata, string) {
	match := metadataRegex.FindStringSubmatch(content)
	body := strings.TrimRight(metadataRegex.ReplaceAllString(content, ""), "\n")

	if len(match) < 2 {
		return nil, body
	}

	meta := &Metadata{}

	for line := range strings.SplitSeq(match[1], "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "UPDATED":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				meta.UpdatedAt = t
			}
		case "RECORDS":
			meta.Records, _ = strconv.Atoi(val)
		case "SHARDS":
			meta.Shards, _ = strconv.Atoi(val)
		case "HASH":
			meta.Hash = val
		}
	}

	return meta, body
}

// CalculateHash returns the SHA-256 of content with any metadata block removed.
func CalculateHash(content string) string {
	_, body := Extract(content)
	sum := sha256.Sum256([]byte(body))

	return hex.EncodeToString(sum[:])
}

// Sign replaces any existing block with one for records and shards.
func Sign(content string, records, shards int) string {
	_, body := Extract(content)

	block := fmt.Sprintf("\n\n%s\nRECORDS: %d\nSHARDS: %d\nUPDATED: %s\nHASH: %s\n%s",
		TagStart, records, shards, time.Now().UTC().Format(time.RFC3339), CalculateHash(body), TagEnd)

	return body + block + "\n"
}

// Verify checks the body against the hash in its block.
func Verify(content string) (*Metadata, error) {
	meta, body := Extract(content)
	if meta == nil {
		return nil, ErrNoMetadataBlock
	}

	if meta.Hash == "" {
		return meta, ErrNoHashFound
	}

	if got := CalculateHash(body); got != meta.Hash {
		return meta, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.Hash, got)
	}

	return meta, nil
}
