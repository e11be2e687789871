package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/david/market-ledger/internal/models"
)

// ErrUnknownJurisdiction is returned when a run names a code the registry does not carry.
var ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

// Format is the closed set of document shapes a jurisdiction can publish.
type Format string

const (
	FormatHTML      Format = "html"
	FormatHTMLTable Format = "html_table"
	FormatPDF       Format = "pdf"
	FormatXLSX      Format = "xlsx"
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
)

// RawProject represents the untrusted, unnormalized fields a strategy recovered
// for one project. Cost and date fields hold either strings or native values
// (numbers from spreadsheets and feature services, time.Time).
type RawProject struct {
	ProjectNumber string
	Description   string
	Location      string
	District      string
	ProjectType   string
	Agency        string
	Cost          interface{}
	AdDate        interface{}
	LetDate       interface{}
	URL           string
}

// Row is one record of tabular content. Cells are strings, float64 or nil.
type Row []interface{}

// Content is the format-agnostic view of a decoded document.
type Content struct {
	Text string
	Rows []Row
}

// Empty reports whether decoding recovered nothing at all.
func (c Content) Empty() bool {
	return len(c.Text) == 0 && len(c.Rows) == 0
}

// Result is the outcome of extracting a single jurisdiction.
// Opportunities is never empty; Err records why the stub was used, if it was.
type Result struct {
	Jurisdiction  string
	Opportunities []models.Opportunity
	Strategy      string
	Fallback      bool
	Err           error
	Duration      time.Duration
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
