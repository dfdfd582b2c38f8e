package sru

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
)

// ErrNotFound is returned when an identifier lookup yields no record.
var ErrNotFound = errors.New("no sru record found")

// Client issues searchRetrieve requests.
type Client struct {
	getter crawler.Getter
	cfg    config.SRUConfig
}

// NewClient creates a client that fetches through getter.
func NewClient(getter crawler.Getter, cfg config.SRUConfig) *Client {
	return &Client{getter: getter, cfg: cfg}
}

// SearchURL builds the searchRetrieve request URL.
func (c *Client) SearchURL(query string, start, maxRecords int) string {
	params := url.Values{}
	params.Set("version", c.cfg.Version)
	params.Set("operation", "searchRetrieve")
	params.Set("query", query)
	params.Set("startRecord", strconv.Itoa(start))
	params.Set("maximumRecords", strconv.Itoa(maxRecords))

	if c.cfg.RecordSchema != "" {
		params.Set("recordSchema", c.cfg.RecordSchema)
	}

	return c.cfg.Endpoint + "?" + params.Encode()
}

// SearchRetrieve fetches one page of records starting at start (1-based).
func (c *Client) SearchRetrieve(ctx context.Context, query string, start, maxRecords int) (*Response, error) {
	body, err := c.getter.Fetch(ctx, c.SearchURL(query, start, maxRecords))
	if err != nil {
		return nil, fmt.Errorf("searchRetrieve startRecord=%d: %w", start, err)
	}

	return ParseResponse(body)
}

// LookupIdentifier returns the record with the given dt.identifier.
func (c *Client) LookupIdentifier(ctx context.Context, identifier string) (*Record, error) {
	resp, err := c.SearchRetrieve(ctx, fmt.Sprintf("dt.identifier=%q", identifier), 1, 1)
	if err != nil {
		return nil, err
	}

	if len(resp.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}

	return &resp.Records[0], nil
}
