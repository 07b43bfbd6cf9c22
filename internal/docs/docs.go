// Package docs defines the core types and interfaces shared across the
// indexing and query subsystems.
package docs

import (
	"context"
	"time"
)

// Document is the unit of storage and retrieval. URL is the primary key;
// every other field is overwritten on re-index.
type Document struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	DocType   string    `json:"doc_type,omitempty"`
	Date      string    `json:"date,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Link is a candidate discovered on the listing page.
type Link struct {
	Title string
	URL   string
}

// Detail holds the metadata heuristically extracted from a document page.
// Missing elements yield empty strings, never errors.
type Detail struct {
	Title   string
	Date    string
	Excerpt string
	DocType string
}

// FetchResult is the outcome of a single page fetch.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Store persists documents keyed by URL with upsert semantics.
type Store interface {
	// Upsert inserts the document or, when the URL is already known,
	// overwrites every field except the URL. The write is committed
	// before Upsert returns.
	Upsert(ctx context.Context, doc Document) error

	// ListAll returns the full corpus ordered by IndexedAt descending.
	ListAll(ctx context.Context) ([]Document, error)
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
