package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mnbossa/agridocs/internal/docs"
	"github.com/mnbossa/agridocs/internal/metrics"
	"github.com/mnbossa/agridocs/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeFetcher serves canned responses keyed by URL. A missing entry is a
// transport failure.
type fakeFetcher struct {
	pages map[string]docs.FetchResult
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (docs.FetchResult, error) {
	f.calls = append(f.calls, url)
	res, ok := f.pages[url]
	if !ok {
		return docs.FetchResult{}, errors.New("connection refused")
	}
	return res, nil
}

const testListingURL = "https://www.europarl.europa.eu/committees/en/agri/documents/latest-documents"

func listingPage(n int) docs.FetchResult {
	body := "<html><body>"
	for i := 1; i <= n; i++ {
		body += fmt.Sprintf(`<a href="/documents/doc-%d">Document %d</a>`, i, i)
	}
	body += "</body></html>"
	return docs.FetchResult{URL: testListingURL, StatusCode: http.StatusOK, Body: []byte(body)}
}

func detailPage(title, date, excerpt string) docs.FetchResult {
	body := fmt.Sprintf(`<html><body>
<h1>%s</h1>
<span class="date">%s</span>
<p>%s</p>
</body></html>`, title, date, excerpt)
	return docs.FetchResult{StatusCode: http.StatusOK, Body: []byte(body)}
}

func newTestCrawler(fetcher docs.Fetcher, store docs.Store, now time.Time, limit int) *Crawler {
	return New(fetcher, store, fixedClock{t: now}, nil, Config{
		ListingURL:     testListingURL,
		Limit:          limit,
		ListingTimeout: 5 * time.Second,
		DetailTimeout:  5 * time.Second,
	}, nil)
}

func TestRunListingTransportErrorAborts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{}}
	c := newTestCrawler(fetcher, store, time.Now(), 0)

	err := c.Run(context.Background())

	var fetchErr *docs.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, testListingURL, fetchErr.URL)
	require.Zero(t, store.Len())
}

func TestRunListingNonSuccessStatusAborts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{
		testListingURL: {URL: testListingURL, StatusCode: http.StatusServiceUnavailable},
	}}
	c := newTestCrawler(fetcher, store, time.Now(), 0)

	err := c.Run(context.Background())

	var fetchErr *docs.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	require.Zero(t, store.Len())
}

func TestRunIndexesDetailsAndStubsFailures(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{
		testListingURL: listingPage(3),
		"https://www.europarl.europa.eu/documents/doc-1": detailPage(
			"Opinion on seed marketing", "12-03-2024", "The committee recommends new rules.",
		),
		"https://www.europarl.europa.eu/documents/doc-2": {StatusCode: http.StatusNotFound},
		"https://www.europarl.europa.eu/documents/doc-3": detailPage(
			"Report on soil health", "13-03-2024", "Annual report on soil monitoring.",
		),
	}}
	c := newTestCrawler(fetcher, store, now, 0)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 3, store.Len())

	out, err := store.ListAll(context.Background())
	require.NoError(t, err)

	byURL := make(map[string]docs.Document, len(out))
	for _, d := range out {
		byURL[d.URL] = d
		require.Equal(t, now, d.IndexedAt)
	}

	full := byURL["https://www.europarl.europa.eu/documents/doc-1"]
	require.Equal(t, "Opinion on seed marketing", full.Title)
	require.Equal(t, "12-03-2024", full.Date)
	require.Equal(t, "The committee recommends new rules.", full.Excerpt)

	stub := byURL["https://www.europarl.europa.eu/documents/doc-2"]
	require.Equal(t, "Document 2", stub.Title)
	require.Empty(t, stub.DocType)
	require.Empty(t, stub.Date)
	require.Empty(t, stub.Excerpt)
}

func TestRunSkipsItemOnTransportError(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{
		testListingURL: listingPage(2),
		"https://www.europarl.europa.eu/documents/doc-2": detailPage("Report B", "", ""),
	}}
	c := newTestCrawler(fetcher, store, time.Now(), 0)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 1, store.Len())

	out, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://www.europarl.europa.eu/documents/doc-2", out[0].URL)
}

func TestRunHonorsLimit(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	pages := map[string]docs.FetchResult{testListingURL: listingPage(5)}
	for i := 1; i <= 5; i++ {
		url := fmt.Sprintf("https://www.europarl.europa.eu/documents/doc-%d", i)
		pages[url] = detailPage(fmt.Sprintf("Title %d", i), "", "")
	}
	fetcher := &fakeFetcher{pages: pages}
	c := newTestCrawler(fetcher, store, time.Now(), 2)

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, 2, store.Len())
	// Listing plus the first two details only.
	require.Len(t, fetcher.calls, 3)
}

func TestRunKeepsListingTitleWhenDetailHasNone(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{
		testListingURL: listingPage(1),
		"https://www.europarl.europa.eu/documents/doc-1": {
			StatusCode: http.StatusOK,
			Body:       []byte(`<html><body><p>Body with no heading.</p></body></html>`),
		},
	}}
	c := newTestCrawler(fetcher, store, time.Now(), 0)

	require.NoError(t, c.Run(context.Background()))

	out, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Document 1", out[0].Title)
	require.Equal(t, "Body with no heading.", out[0].Excerpt)
}

// Not parallel: it compares shared counter values before and after the run.
func TestRunStopsWhenContextCancelled(t *testing.T) {
	store := memory.NewStore()
	fetcher := &fakeFetcher{pages: map[string]docs.FetchResult{
		testListingURL: listingPage(3),
	}}
	c := newTestCrawler(fetcher, store, time.Now(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	interruptedBefore := crawlRunCount(t, "interrupted")
	succeededBefore := crawlRunCount(t, "succeeded")

	require.NoError(t, c.Run(ctx))
	require.Zero(t, store.Len())
	// Listing fetched before cancellation was observed, no detail fetches.
	require.Equal(t, []string{testListingURL}, fetcher.calls)

	// The truncated run is recorded as interrupted, not as a success.
	require.Equal(t, interruptedBefore+1, crawlRunCount(t, "interrupted"))
	require.Equal(t, succeededBefore, crawlRunCount(t, "succeeded"))
}

// crawlRunCount reads the crawl run counter for one status label from the
// default registry.
func crawlRunCount(t *testing.T, status string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "indexer_crawl_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
