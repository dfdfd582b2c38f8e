// Package shard reads and writes JSONL record files and names the shards
// uploaded to the dataset hub.
package shard

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"bekendmakingen/internal/models"
	"bekendmakingen/internal/state"
)

// Prefix is the remote path prefix shared by all shards.
const Prefix = "data/shard_"

var namePattern = regexp.MustCompile(`^data/shard_(\d+)_(\d+)\.jsonl$`)

// maxLineSize bounds a single JSONL line; cleaned publications can be large.
const maxLineSize = 64 << 20

// Shard is a contiguous slice of input lines [Start, End).
type Shard struct {
	Lines []string
	Start int
	End   int
}

// Name returns the remote path of the shard.
func (s Shard) Name() string {
	return Name(s.Start, s.End)
}

// Content returns the shard lines as a JSONL document.
func (s Shard) Content() []byte {
	var buf bytes.Buffer
	for _, line := range s.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// Name formats a shard path such as data/shard_000000_000200.jsonl.
func Name(start, end int) string {
	return fmt.Sprintf("%s%06d_%06d.jsonl", Prefix, start, end)
}

// IsShard reports whether name is a shard path.
func IsShard(name string) bool {
	return namePattern.MatchString(name)
}

// ParseEnd returns the end index encoded in a shard path.
func ParseEnd(name string) (int, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}

	end, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}

	return end, true
}

// MaxEnd returns the highest end index among shard paths in files, or 0.
func MaxEnd(files []string) int {
	maxEnd := 0

	for _, f := range files {
		if end, ok := ParseEnd(f); ok && end > maxEnd {
			maxEnd = end
		}
	}

	return maxEnd
}

// Split cuts lines[start:] into shards of at most size lines.
func Split(lines []string, start, size int) []Shard {
	if size < 1 || start >= len(lines) {
		return nil
	}

	if start < 0 {
		start = 0
	}

	var shards []Shard

	for i := start; i < len(lines); i += size {
		end := min(i+size, len(lines))
		shards = append(shards, Shard{Start: i, End: end, Lines: lines[i:end]})
	}

	return shards
}

// ReadLines returns the non-blank lines of a JSONL file.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return lines, nil
}

// ReadRecords decodes a JSONL file, returning the records and the number of
// malformed lines that were skipped. A missing file yields no records.
func ReadRecords(path string) ([]models.Record, int, error) {
	lines, err := ReadLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}

	if err != nil {
		return nil, 0, err
	}

	records := make([]models.Record, 0, len(lines))
	skipped := 0

	for _, line := range lines {
		var rec models.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++

			continue
		}

		records = append(records, rec)
	}

	return records, skipped, nil
}

// Encode renders records as JSONL without escaping HTML characters.
func Encode(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", rec.URL, err)
		}
	}

	return buf.Bytes(), nil
}

// WriteRecords replaces path with records.
func WriteRecords(path string, records []models.Record) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	return state.WriteFileAtomic(path, data)
}

// AppendRecords appends records to path, creating it if needed.
func AppendRecords(path string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	data, err := Encode(records)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to append to %s: %w", path, err)
	}

	return f.Close()
}
