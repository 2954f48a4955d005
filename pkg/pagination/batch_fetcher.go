package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/rs/zerolog"
)

// Config holds batch fetcher configuration
type Config struct {
	// ChunkSize is the maximum number of ids per request (server limit: 50)
	ChunkSize int
	// PayloadPath is the JSONPath of the geometry payload in each response
	PayloadPath string
	// Endpoint labels logs and metrics
	Endpoint string
}

// DefaultConfig returns the defaults for the polyline endpoint
func DefaultConfig() Config {
	return Config{
		ChunkSize:   50,
		PayloadPath: "$.data",
		Endpoint:    "polyline",
	}
}

// BatchFetcher retrieves geometry for many ids, one request per chunk
type BatchFetcher struct {
	exec    Executor
	baseURL string
	config  Config
	payload func(ctx context.Context, doc interface{}) (interface{}, error)
	logger  zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher issuing requests to baseURL
// followed by the comma-joined ids of a chunk.
func NewBatchFetcher(exec Executor, baseURL string, config Config) (*BatchFetcher, error) {
	defaults := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.PayloadPath == "" {
		config.PayloadPath = defaults.PayloadPath
	}
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}

	if baseURL == "" {
		return nil, fmt.Errorf("batch fetcher base url is required")
	}

	payload, err := jsonpath.New(config.PayloadPath)
	if err != nil {
		return nil, fmt.Errorf("invalid payload path %q: %w", config.PayloadPath, err)
	}

	return &BatchFetcher{
		exec:    exec,
		baseURL: baseURL,
		config:  config,
		payload: payload,
		logger:  logging.NewLogger("batch-fetcher").With().Str("endpoint", config.Endpoint).Logger(),
	}, nil
}

// WithLogger returns the fetcher using logger as its parent.
func (bf *BatchFetcher) WithLogger(logger zerolog.Logger) *BatchFetcher {
	bf.logger = logger.With().Str("component", "batch-fetcher").Str("endpoint", bf.config.Endpoint).Logger()
	return bf
}

// FetchGeometry fetches the geometry payload for ids and returns one element
// per chunk, in chunk order. An empty id list issues no requests.
func (bf *BatchFetcher) FetchGeometry(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	chunks := Chunk(ids, bf.config.ChunkSize)
	if len(chunks) == 0 {
		return []json.RawMessage{}, nil
	}

	start := time.Now()
	results := make([]json.RawMessage, 0, len(chunks))

	for i, chunk := range chunks {
		bf.logger.Info().
			Int("page", i+1).
			Int("total", len(chunks)).
			Int("ids", len(chunk)).
			Msgf("Fetching page %d of %d", i+1, len(chunks))

		chunkURL := bf.chunkURL(chunk)
		body, err := bf.exec.Get(ctx, bf.config.Endpoint, chunkURL)
		if err != nil {
			return nil, fmt.Errorf("fetch chunk %d of %d: %w", i+1, len(chunks), err)
		}

		geometry, err := bf.extract(ctx, body)
		if err != nil {
			return nil, &DecodeError{URL: chunkURL, Err: err}
		}

		batchesFetchedTotal.Inc()
		results = append(results, geometry)
	}

	bf.logger.Info().
		Int("chunks", len(chunks)).
		Int("ids", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

func (bf *BatchFetcher) chunkURL(chunk []string) string {
	escaped := make([]string, len(chunk))
	for i, id := range chunk {
		escaped[i] = url.PathEscape(id)
	}
	return strings.TrimSuffix(bf.baseURL, "/") + "/" + strings.Join(escaped, ",")
}

// extract pulls the payload out of body. Numbers are kept as written and a
// null payload is passed through as null; a missing one is an error.
func (bf *BatchFetcher) extract(ctx context.Context, body []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	value, err := bf.payload(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", bf.config.PayloadPath, err)
	}
	return json.Marshal(value)
}

// Chunk partitions ids into consecutive groups of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
