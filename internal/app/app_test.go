package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/travel-map/internal/config"
	"github.com/Sternrassler/travel-map/internal/testutil"
	"github.com/Sternrassler/travel-map/pkg/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mock *testutil.MockAPI) config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.API.StatusesURL = mock.URL() + "/statuses"
	cfg.API.PolylineURL = mock.URL() + "/polyline/"
	cfg.Output.JSON = filepath.Join(dir, "polylines.json")
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.Template = ""
	require.NoError(t, cfg.Validate())
	return cfg
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestRun_FiltersAndChunks(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/statuses", testutil.NewOKResponse(testutil.StatusesPage("",
		testutil.Status{ID: 1, Visibility: 0, Category: "regional", Origin: "A", Destination: "B"},
		testutil.Status{ID: 2, Visibility: 3, Category: "regional", Origin: "A", Destination: "B"},
		testutil.Status{ID: 3, Visibility: 0, Category: "bus", Origin: "A", Destination: "B"},
		testutil.Status{ID: 4, Visibility: 1, Category: "tram", Origin: "Hamburg", Destination: "Berlin"},
		testutil.Status{ID: 5, Visibility: 2, Category: "subway", Origin: "C", Destination: "D"},
		testutil.Status{ID: 6, Visibility: 4, Category: "national", Origin: "E", Destination: "F"},
	)))
	mock.SetHandler("/polyline/", testutil.NewPolylineHandler())

	cfg := testConfig(t, mock)
	cfg.Ignore = []string{"Berlin <-> Hamburg", "6"}
	cfg.API.ChunkSize = 1

	summary, err := Run(context.Background(), Options{Config: cfg, Token: "secret", Logger: nopLogger()})
	require.NoError(t, err)

	_, err = uuid.Parse(summary.RunID)
	assert.NoError(t, err, "run id must be a uuid")
	assert.Equal(t, 6, summary.Statuses)
	assert.Equal(t, 2, summary.Kept)
	assert.Equal(t, 2, summary.Chunks)

	var paths []string
	for _, req := range mock.Requests() {
		paths = append(paths, req.Path)
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	}
	assert.Equal(t, []string{"/statuses", "/polyline/1", "/polyline/5"}, paths)

	data, err := os.ReadFile(cfg.Output.JSON)
	require.NoError(t, err)

	var written []struct {
		IDs string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 2)
	assert.Equal(t, "1", written[0].IDs)
	assert.Equal(t, "5", written[1].IDs)
}

func TestRun_MissingToken(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	_, err := Run(context.Background(), Options{Config: testConfig(t, mock), Logger: nopLogger()})
	assert.ErrorIs(t, err, client.ErrMissingCredential)
	assert.Zero(t, mock.GetRequestCount())
}

func TestRun_FatalStatusWritesNothing(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/statuses", testutil.NewOKResponse(testutil.StatusesPage("",
		testutil.Status{ID: 1, Category: "regional"})))
	mock.SetResponse("/polyline/", testutil.NewServerErrorResponse())

	cfg := testConfig(t, mock)

	_, err := Run(context.Background(), Options{Config: cfg, Token: "secret", Logger: nopLogger()})

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "error = %v", err)
	assert.Equal(t, 500, apiErr.StatusCode)

	_, statErr := os.Stat(cfg.Output.JSON)
	assert.True(t, os.IsNotExist(statErr), "no output on a failed run")
}

func TestRun_InvalidIgnoreRule(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	cfg := testConfig(t, mock)
	cfg.Ignore = []string{"Berlin <->"}

	_, err := Run(context.Background(), Options{Config: cfg, Token: "secret", Logger: nopLogger()})
	assert.Error(t, err)
	assert.Zero(t, mock.GetRequestCount())
}

func TestRun_NoStatuses(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/statuses", testutil.NewOKResponse(testutil.StatusesPage("")))

	cfg := testConfig(t, mock)

	summary, err := Run(context.Background(), Options{Config: cfg, Token: "secret", Logger: nopLogger()})
	require.NoError(t, err)
	assert.Zero(t, summary.Chunks)
	assert.Equal(t, 1, mock.GetRequestCount())

	data, err := os.ReadFile(cfg.Output.JSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
