package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/rs/zerolog"
)

// CursorParam is the query parameter an opaque next token is sent in.
const CursorParam = "cursor"

// Executor performs one logical GET and returns the body of the successful
// response. *client.Client satisfies it.
type Executor interface {
	Get(ctx context.Context, endpoint, rawURL string) ([]byte, error)
}

// Links carries the pagination links of a page.
type Links struct {
	// Next is nil, or points at an empty string, on the terminal page.
	Next *string `json:"next"`
}

// Page is one page of a cursor-linked listing.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Links Links `json:"links"`
}

// next returns the trimmed next cursor and whether there is one.
func (p Page[T]) next() (string, bool) {
	if p.Links.Next == nil {
		return "", false
	}
	next := strings.TrimSpace(*p.Links.Next)
	return next, next != ""
}

// Traverser walks a cursor-linked listing of T records.
type Traverser[T any] struct {
	exec     Executor
	endpoint string
	logger   zerolog.Logger
}

// NewTraverser creates a traverser. endpoint labels logs and metrics.
func NewTraverser[T any](exec Executor, endpoint string) *Traverser[T] {
	return &Traverser[T]{
		exec:     exec,
		endpoint: endpoint,
		logger:   logging.NewLogger("traverser").With().Str("endpoint", endpoint).Logger(),
	}
}

// WithLogger returns the traverser using logger as its parent.
func (t *Traverser[T]) WithLogger(logger zerolog.Logger) *Traverser[T] {
	t.logger = logger.With().Str("component", "traverser").Str("endpoint", t.endpoint).Logger()
	return t
}

// Traverse fetches startURL and every page after it, returning all records
// in page order. There is no page limit; the walk ends when the server
// reports no next page.
func (t *Traverser[T]) Traverse(ctx context.Context, startURL string) ([]T, error) {
	start := time.Now()

	var (
		records []T
		pages   int
		current = startURL
	)

	for {
		body, err := t.exec.Get(ctx, t.endpoint, current)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d of %s: %w", pages+1, t.endpoint, err)
		}

		page, err := decodePage[T](current, body)
		if err != nil {
			return nil, err
		}

		pages++
		pagesFetchedTotal.WithLabelValues(t.endpoint).Inc()
		records = append(records, page.Data...)

		t.logger.Info().
			Int("page", pages).
			Int("total", len(records)).
			Msgf("Fetched %s: %04d", t.endpoint, len(records))

		next, ok := page.next()
		if !ok {
			break
		}

		nextURL, err := resolveNext(startURL, current, next)
		if err != nil {
			return nil, &DecodeError{URL: current, Err: err}
		}
		current = nextURL
	}

	t.logger.Info().
		Int("pages", pages).
		Int("total", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Traversal complete")

	return records, nil
}

func decodePage[T any](pageURL string, body []byte) (Page[T], error) {
	var page Page[T]
	if err := json.Unmarshal(body, &page); err != nil {
		return Page[T]{}, &DecodeError{URL: pageURL, Err: err}
	}
	if page.Data == nil {
		return Page[T]{}, &DecodeError{URL: pageURL, Err: ErrMissingData}
	}
	return page, nil
}

// resolveNext turns a next cursor into the URL of the following page.
// URLs (absolute, or relative starting with "/" or "?") are resolved against
// the current page; anything else is an opaque token sent as the cursor
// query parameter on the start URL.
func resolveNext(startURL, currentURL, next string) (string, error) {
	if isLink(next) {
		base, err := url.Parse(currentURL)
		if err != nil {
			return "", fmt.Errorf("parse page url: %w", err)
		}
		ref, err := url.Parse(next)
		if err != nil {
			return "", fmt.Errorf("parse next link %q: %w", next, err)
		}
		return base.ResolveReference(ref).String(), nil
	}

	u, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse start url: %w", err)
	}
	q := u.Query()
	q.Set(CursorParam, next)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isLink(next string) bool {
	return strings.Contains(next, "://") ||
		strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "?")
}
