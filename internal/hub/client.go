// Package hub publishes JSONL shards to a Hugging Face dataset repository.
package hub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bekendmakingen/internal/logger"
)

// Hub errors.
var (
	ErrUnauthorized         = errors.New("hub rejected the token")
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrInvalidRepoID        = errors.New("repo id must look like <namespace>/<name>")
)

const maxResponseBytes = 10 * 1024 * 1024

// Client defines the dataset repository operations the uploader needs.
type Client interface {
	CreateRepo(ctx context.Context, repoID string, private bool) error
	ListFiles(ctx context.Context, repoID string) ([]string, error)
	Commit(ctx context.Context, repoID string, commit Commit) error
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// FileAddition is a file written by a commit.
type FileAddition struct {
	Path    string
	Content []byte
}

// Commit groups file additions and deletions applied atomically.
type Commit struct {
	Summary   string
	Additions []FileAddition
	Deletions []string
}

// HTTPClient talks to the Hugging Face REST API.
type HTTPClient struct {
	httpClient *http.Client
	logger     *logger.Logger
	endpoint   string
	token      string
	revision   string
}

// NewHTTPClient creates a client for endpoint (e.g. https://huggingface.co).
func NewHTTPClient(endpoint, token, revision string, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.NewNop()
	}

	if revision == "" {
		revision = "main"
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     log,
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		revision:   revision,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *HTTPClient) WithHTTPClient(client *http.Client) *HTTPClient {
	c.httpClient = client

	return c
}

// CreateRepo creates the dataset repository. An existing repository is not an error.
func (c *HTTPClient) CreateRepo(ctx context.Context, repoID string, private bool) error {
	namespace, name, ok := strings.Cut(repoID, "/")
	if !ok || namespace == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRepoID, repoID)
	}

	body, err := json.Marshal(map[string]any{
		"type":         "dataset",
		"name":         name,
		"organization": namespace,
		"private":      private,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	status, resp, err := c.do(ctx, http.MethodPost, c.endpoint+"/api/repos/create", "application/json", body)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusConflict:
		c.logger.Debug("dataset repo already exists", "repo", repoID)

		return nil
	case status >= 200 && status < 300:
		c.logger.Info("created dataset repo", "repo", repoID, "private", private)

		return nil
	default:
		return statusError(status, resp)
	}
}

type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ListFiles returns the paths of all files in the repository revision.
func (c *HTTPClient) ListFiles(ctx context.Context, repoID string) ([]string, error) {
	next := fmt.Sprintf("%s/api/datasets/%s/tree/%s?recursive=true",
		c.endpoint, repoID, url.PathEscape(c.revision))

	var files []string

	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, body, err := c.send(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound {
			// a freshly created repo has no revision yet
			return files, nil
		}

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp.StatusCode, body)
		}

		var entries []treeEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse tree response: %w", err)
		}

		for _, e := range entries {
			if e.Type == "file" {
				files = append(files, e.Path)
			}
		}

		next = nextLink(resp.Header.Get("Link"))
	}

	return files, nil
}

type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type commitFile struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type commitDeletion struct {
	Path string `json:"path"`
}

// Commit applies commit to the repository revision.
func (c *HTTPClient) Commit(ctx context.Context, repoID string, commit Commit) error {
	payload, err := encodeCommit(commit)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/datasets/%s/commit/%s", c.endpoint, repoID, url.PathEscape(c.revision))

	status, resp, err := c.do(ctx, http.MethodPost, endpoint, "application/x-ndjson", payload)
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return statusError(status, resp)
	}

	c.logger.Debug("committed", "repo", repoID, "summary", commit.Summary,
		"added", len(commit.Additions), "deleted", len(commit.Deletions))

	return nil
}

// encodeCommit renders the NDJSON body of the commit endpoint.
func encodeCommit(commit Commit) ([]byte, error) {
	lines := make([]commitLine, 0, 1+len(commit.Additions)+len(commit.Deletions))
	lines = append(lines, commitLine{Key: "header", Value: commitHeader{Summary: commit.Summary}})

	for _, add := range commit.Additions {
		lines = append(lines, commitLine{Key: "file", Value: commitFile{
			Content:  base64.StdEncoding.EncodeToString(add.Content),
			Path:     add.Path,
			Encoding: "base64",
		}})
	}

	for _, path := range commit.Deletions {
		lines = append(lines, commitLine{Key: "deletedFile", Value: commitDeletion{Path: path}})
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to encode commit: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, respBody, err := c.send(req)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}

func (c *HTTPClient) send(req *http.Request) (*http.Response, []byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp, body, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: %d: %s", ErrUnauthorized, status, msg)
	}

	return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, status, msg)
}

// nextLink extracts the rel="next" target from a Link header.
func nextLink(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}

		return strings.Trim(strings.TrimSpace(target), "<>")
	}

	return ""
}
