package sru

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bekendmakingen/internal/config"
	"bekendmakingen/internal/crawler"
	"bekendmakingen/internal/models"
	"bekendmakingen/internal/state"
)

type testRecord struct {
	id        string
	title     string
	preferred string
	url       string
	body      string
	items     [][2]string
}

func (r testRecord) xml() string {
	var b strings.Builder

	b.WriteString(`<sru:record><sru:recordSchema>gzd</sru:recordSchema><sru:recordData>`)
	b.WriteString(`<gzd:gzd xmlns:gzd="http://standaarden.overheid.nl/sru"><gzd:originalData>`)
	b.WriteString(`<overheidwetgeving:meta xmlns:overheidwetgeving="http://standaarden.overheid.nl/wetgeving/" xmlns:dcterms="http://purl.org/dc/terms/"><owmskern>`)
	fmt.Fprintf(&b, `<dcterms:identifier>%s</dcterms:identifier>`, r.id)
	fmt.Fprintf(&b, `<dcterms:title>%s</dcterms:title>`, r.title)
	b.WriteString(`<dcterms:creator>Gemeente Ede</dcterms:creator>`)
	b.WriteString(`</owmskern></overheidwetgeving:meta>`)

	if r.body != "" {
		fmt.Fprintf(&b, `<body><p>%s</p></body>`, r.body)
	}

	b.WriteString(`</gzd:originalData><gzd:enrichedData>`)

	if r.url != "" {
		fmt.Fprintf(&b, `<gzd:url>%s</gzd:url>`, r.url)
	}

	if r.preferred != "" {
		fmt.Fprintf(&b, `<gzd:preferredUrl>%s</gzd:preferredUrl>`, r.preferred)
	}

	for _, item := range r.items {
		fmt.Fprintf(&b, `<gzd:itemUrl manifestation="%s">%s</gzd:itemUrl>`, item[0], item[1])
	}

	b.WriteString(`</gzd:enrichedData></gzd:gzd></sru:recordData></sru:record>`)

	return b.String()
}

func sruPage(total, next int, records ...testRecord) string {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<sru:searchRetrieveResponse xmlns:sru="http://docs.oasis-open.org/ns/search-ws/sruResponse">`)
	b.WriteString(`<sru:version>2.0</sru:version>`)
	fmt.Fprintf(&b, `<sru:numberOfRecords>%d</sru:numberOfRecords><sru:records>`, total)

	for _, r := range records {
		b.WriteString(r.xml())
	}

	b.WriteString(`</sru:records>`)

	if next > 0 {
		fmt.Fprintf(&b, `<sru:nextRecordPosition>%d</sru:nextRecordPosition>`, next)
	}

	b.WriteString(`</sru:searchRetrieveResponse>`)

	return b.String()
}

const diagnosticResponse = `<?xml version="1.0"?>
<sru:searchRetrieveResponse xmlns:sru="http://docs.oasis-open.org/ns/search-ws/sruResponse">
  <sru:numberOfRecords>0</sru:numberOfRecords>
  <sru:diagnostics>
    <diag:diagnostic xmlns:diag="http://docs.oasis-open.org/ns/search-ws/diagnostic">
      <diag:uri>info:srw/diagnostic/1/10</diag:uri>
      <diag:details>dt.bogus</diag:details>
      <diag:message>Query syntax error</diag:message>
    </diag:diagnostic>
  </sru:diagnostics>
</sru:searchRetrieveResponse>`

var (
	recA = testRecord{
		id: "gmb-2025-1", title: "Omgevingsvergunning Stationsweg 1",
		preferred: "https://zoek.officielebekendmakingen.nl/gmb-2025-1.html",
		url:       "https://zoek.officielebekendmakingen.nl/gmb-2025-1",
		items: [][2]string{
			{"html", "https://repository.overheid.nl/frbr/officielepublicaties/gmb/2025/gmb-2025-1/1/html/gmb-2025-1.html"},
			{"xml", "https://repository.overheid.nl/frbr/officielepublicaties/gmb/2025/gmb-2025-1/1/xml/gmb-2025-1.xml"},
		},
	}
	recB = testRecord{id: "gmb-2025-2", title: "Verkeersbesluit", url: "https://zoek.officielebekendmakingen.nl/gmb-2025-2"}
	recC = testRecord{id: "gmb-2025-3", title: "Kapvergunning", body: "Eik  aan de  Dorpsstraat"}
)

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(sruPage(3, 3, recA, recB)))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.NumberOfRecords)
	assert.Equal(t, 3, resp.NextRecordPosition)
	require.Len(t, resp.Records, 2)

	a := resp.Records[0]
	assert.Equal(t, "gmb-2025-1", a.Identifier)
	assert.Equal(t, "Omgevingsvergunning Stationsweg 1", a.Title)
	assert.Equal(t, recA.preferred, a.URL)
	assert.Equal(t, "Omgevingsvergunning Stationsweg 1 Gemeente Ede", a.Content)
	assert.Equal(t, recA.items[1][1], a.PreferredItemURL("xml"))
	assert.Equal(t, recA.items[0][1], a.PreferredItemURL("pdf"))

	b := resp.Records[1]
	assert.Equal(t, recB.url, b.URL)
	assert.Empty(t, b.PreferredItemURL("xml"))
}

func TestParseResponse_IdentifierFallbackAndBody(t *testing.T) {
	resp, err := ParseResponse([]byte(sruPage(1, 0, recC)))
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)

	assert.Equal(t, 0, resp.NextRecordPosition)
	assert.Equal(t, "gmb-2025-3", resp.Records[0].URL)
	assert.Equal(t, "Kapvergunning Gemeente Ede Eik aan de Dorpsstraat", resp.Records[0].Content)
}

func TestParseResponse_Errors(t *testing.T) {
	_, err := ParseResponse([]byte(diagnosticResponse))
	require.ErrorIs(t, err, ErrDiagnostic)
	assert.Contains(t, err.Error(), "Query syntax error")

	_, err = ParseResponse([]byte("<html><body>maintenance</body>"))
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ParseResponse([]byte("<other/>"))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_SearchURL(t *testing.T) {
	c := NewClient(nil, config.Default().SRU)

	u, err := url.Parse(c.SearchURL("c.product-area==lokalebekendmakingen", 1001, 1000))
	require.NoError(t, err)

	assert.Equal(t, "repository.overheid.nl", u.Host)
	assert.Equal(t, "/sru", u.Path)

	q := u.Query()
	assert.Equal(t, "2.0", q.Get("version"))
	assert.Equal(t, "searchRetrieve", q.Get("operation"))
	assert.Equal(t, "c.product-area==lokalebekendmakingen", q.Get("query"))
	assert.Equal(t, "1001", q.Get("startRecord"))
	assert.Equal(t, "1000", q.Get("maximumRecords"))
	assert.Equal(t, "gzd", q.Get("recordSchema"))
}

func testConfig(serverURL string) *config.Config {
	cfg := config.Default()
	cfg.SRU.Endpoint = serverURL + "/sru"
	cfg.SRU.BatchSize = 2
	cfg.SRU.EventBaseURL = serverURL + "/_events"
	cfg.Collector.DelayMs = 0
	cfg.Retry = config.RetryPolicy{
		MaxAttempts:       2,
		InitialDelayMs:    1,
		MaxDelayMs:        2,
		BackoffMultiplier: 2.0,
		TimeoutSec:        5,
	}

	return cfg
}

func newTestHarvester(cfg *config.Config, statePath string) *Harvester {
	fetcher := crawler.NewFetcher(&cfg.Retry, &cfg.Collector, nil)

	return NewHarvester(NewClient(fetcher, cfg.SRU), cfg, statePath, nil)
}

// pagedServer serves recA, recB on startRecord=1 and recC plus a repeat of recA on startRecord=3.
func pagedServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("startRecord"))

		switch start {
		case 1:
			_, _ = w.Write([]byte(sruPage(4, 3, recA, recB)))
		case 3:
			_, _ = w.Write([]byte(sruPage(4, 0, recC, recA)))
		default:
			_, _ = w.Write([]byte(sruPage(4, 0)))
		}
	}))
}

func collectSink(out *[]models.Record) Sink {
	return SinkFunc(func(_ context.Context, records []models.Record) error {
		*out = append(*out, records...)

		return nil
	})
}

// failingCheckpoint collects records but fails every checkpoint.
type failingCheckpoint struct {
	got []models.Record
}

func (f *failingCheckpoint) Write(_ context.Context, records []models.Record) error {
	f.got = append(f.got, records...)

	return nil
}

func (f *failingCheckpoint) Checkpoint(context.Context) error {
	return assert.AnError
}

func TestHarvester_Run(t *testing.T) {
	server := pagedServer(t)
	defer server.Close()

	statePath := filepath.Join(t.TempDir(), "crawler_state.json")
	cfg := testConfig(server.URL)
	h := newTestHarvester(cfg, statePath)

	st, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)

	var got []models.Record

	summary, err := h.Run(context.Background(), st, collectSink(&got))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 3, summary.Emitted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 5, summary.NextRecord)

	require.Len(t, got, 3)

	for _, rec := range got {
		assert.NotEmpty(t, rec.URL)
		assert.NotEmpty(t, rec.Content)
		assert.Equal(t, "Lokale Bekendmakingen", rec.Source)
	}

	saved, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.StartRecord)
	assert.Equal(t, 3, saved.Total)
	assert.True(t, saved.HasSeen(recA.preferred))

	// a resumed run starts after the last completed page
	var more []models.Record

	summary, err = h.Run(context.Background(), saved, collectSink(&more))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Emitted)
	assert.Empty(t, more)
}

func TestHarvester_SinkErrorKeepsCursor(t *testing.T) {
	server := pagedServer(t)
	defer server.Close()

	statePath := filepath.Join(t.TempDir(), "crawler_state.json")
	h := newTestHarvester(testConfig(server.URL), statePath)

	st, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)

	_, err = h.Run(context.Background(), st, SinkFunc(func(context.Context, []models.Record) error {
		return assert.AnError
	}))
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, st.StartRecord)
	assert.False(t, st.HasSeen(recA.preferred))

	found, err := state.Load(statePath, &state.HarvestState{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHarvester_MaxRecords(t *testing.T) {
	server := pagedServer(t)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SRU.MaxRecords = 2

	st, err := state.LoadHarvestState(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)

	var got []models.Record

	summary, err := newTestHarvester(cfg, "").Run(context.Background(), st, collectSink(&got))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, st.StartRecord)
}

func TestHarvester_CheckpointErrorKeepsWrittenRecords(t *testing.T) {
	server := pagedServer(t)
	defer server.Close()

	statePath := filepath.Join(t.TempDir(), "crawler_state.json")
	h := newTestHarvester(testConfig(server.URL), statePath)

	st, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)

	sink := &failingCheckpoint{}

	summary, err := h.Run(context.Background(), st, sink)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, summary.NextRecord)
	require.Len(t, sink.got, 2)

	// the written page is behind the saved cursor, a rerun does not write it again
	saved, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.StartRecord)
	assert.True(t, saved.HasSeen(recA.preferred))

	var more []models.Record

	summary, err = h.Run(context.Background(), saved, collectSink(&more))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted)
	require.Len(t, more, 1)
	assert.Equal(t, recC.id, more[0].URL)
}

func TestHarvester_MaxRecordsInsidePage(t *testing.T) {
	server := pagedServer(t)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SRU.MaxRecords = 1

	st, err := state.LoadHarvestState(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)

	var got []models.Record

	summary, err := newTestHarvester(cfg, "").Run(context.Background(), st, collectSink(&got))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
	require.Len(t, got, 1)
	assert.Equal(t, recA.preferred, got[0].URL)
	assert.Equal(t, 2, st.StartRecord)
}

func TestHarvester_RetriesMalformedPage(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte("<html>proxy error"))

			return
		}

		_, _ = w.Write([]byte(sruPage(1, 0, recB)))
	}))
	defer server.Close()

	st := &state.HarvestState{StartRecord: 1}

	var got []models.Record

	summary, err := newTestHarvester(testConfig(server.URL), "").Run(context.Background(), st, collectSink(&got))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHarvester_DiagnosticIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(diagnosticResponse))
	}))
	defer server.Close()

	st := &state.HarvestState{StartRecord: 1}

	_, err := newTestHarvester(testConfig(server.URL), "").Run(context.Background(), st, collectSink(new([]models.Record)))
	require.ErrorIs(t, err, ErrDiagnostic)
}

func TestEventURL(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "https://example.nl/_events/2025-06-01.xml", EventURL("https://example.nl/_events/", day))
	assert.Equal(t, "https://example.nl/_events/2025-06-01.xml", EventURL("https://example.nl/_events", day))
}

func TestParseEventIdentifiers(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<events xmlns:dt="http://purl.org/dc/terms/">
  <event><dt:identifier>gmb-2025-1</dt:identifier></event>
  <event><dt:identifier> gmb-2025-2 </dt:identifier></event>
  <event><dt:identifier>gmb-2025-1</dt:identifier></event>
  <event><dt:identifier/></event>
</events>`)

	ids, err := ParseEventIdentifiers(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"gmb-2025-1", "gmb-2025-2"}, ids)

	_, err = ParseEventIdentifiers([]byte("<events>"))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHarvester_RunEvents(t *testing.T) {
	var server *httptest.Server

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_events/2025-06-01.xml":
			_, _ = w.Write([]byte(`<events>
				<identifier>id-1</identifier>
				<identifier>id-2</identifier>
				<identifier>id-3</identifier>
				<identifier>id-1</identifier>
			</events>`))
		case r.URL.Path == "/sru":
			switch r.URL.Query().Get("query") {
			case `dt.identifier="id-1"`:
				rec := testRecord{
					id: "id-1", title: "Besluit", preferred: "https://zoek.officielebekendmakingen.nl/id-1.html",
					items: [][2]string{{"pdf", server.URL + "/items/id-1.pdf"}, {"xml", server.URL + "/items/id-1.xml"}},
				}
				_, _ = w.Write([]byte(sruPage(1, 0, rec)))
			case `dt.identifier="id-3"`:
				rec := testRecord{id: "id-3", title: "Weg", items: [][2]string{{"xml", server.URL + "/items/missing.xml"}}}
				_, _ = w.Write([]byte(sruPage(1, 0, rec)))
			default:
				_, _ = w.Write([]byte(sruPage(0, 0)))
			}
		case r.URL.Path == "/items/id-1.xml":
			_, _ = w.Write([]byte(`<stcrt><meta><identifier>id-1</identifier></meta><al>Het besluit   luidt.</al></stcrt>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	statePath := filepath.Join(t.TempDir(), "events_state.json")
	h := newTestHarvester(testConfig(server.URL), statePath)

	st, err := state.LoadHarvestState(statePath)
	require.NoError(t, err)

	var got []models.Record

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	summary, err := h.RunEvents(context.Background(), day, st, collectSink(&got))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.Emitted)
	assert.Equal(t, 2, summary.Failed)

	require.Len(t, got, 1)
	assert.Equal(t, models.Record{
		URL:     "https://zoek.officielebekendmakingen.nl/id-1.html",
		Content: "Het besluit luidt.",
		Source:  "Officiële Publicaties",
	}, got[0])

	// the same day again adds nothing
	got = nil

	summary, err = h.RunEvents(context.Background(), day, st, collectSink(&got))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Emitted)
	assert.Equal(t, 1, summary.Skipped)

	_, err = h.RunEvents(context.Background(), day.AddDate(0, 0, 1), st, collectSink(&got))
	require.Error(t, err)
}
