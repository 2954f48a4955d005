package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/travel-map/internal/app"
	"github.com/Sternrassler/travel-map/internal/config"
	"github.com/Sternrassler/travel-map/internal/testutil"
	"github.com/rs/zerolog"
)

const rideGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="integration" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>Bike</name><trkseg>
    <trkpt lat="52.50" lon="13.40"></trkpt>
    <trkpt lat="52.51" lon="13.41"></trkpt>
  </trkseg></trk>
</gpx>
`

// TestPipeline_EndToEnd runs a full pass against the mock API: three listing
// pages, one throttled polyline chunk, a local track and every output file.
func TestPipeline_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	mock := testutil.NewMockAPI()
	defer mock.Close()

	var page1 []testutil.Status
	for i := int64(1); i <= 55; i++ {
		page1 = append(page1, testutil.Status{ID: i, Category: "regional", Origin: "A", Destination: "B"})
	}
	mock.SetSequence("/api/v1/user/freya/statuses",
		testutil.NewOKResponse(testutil.StatusesPage("/api/v1/user/freya/statuses?page=2", page1...)),
		testutil.NewRateLimitResponse("1"),
		testutil.NewOKResponse(testutil.StatusesPage("opaque-token",
			testutil.Status{ID: 100, Visibility: 3, Category: "regional"},
			testutil.Status{ID: 101, Category: "bus"},
		)),
		testutil.NewOKResponse(testutil.StatusesPage("",
			testutil.Status{ID: 102, Category: "tram", Origin: "Hamburg", Destination: "Berlin"},
			testutil.Status{ID: 103, Category: "subway", Origin: "C", Destination: "D"},
		)),
	)
	mock.SetHandler("/api/v1/polyline/", testutil.NewPolylineHandler())

	dir := t.TempDir()
	gpxPath := filepath.Join(dir, "ride.gpx")
	if err := os.WriteFile(gpxPath, []byte(rideGPX), 0o644); err != nil {
		t.Fatal(err)
	}
	tmplPath := filepath.Join(dir, "template.html")
	if err := os.WriteFile(tmplPath, []byte("<html>GEOMETRY_PLACEHOLDER</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.API.StatusesURL = mock.URL() + "/api/v1/user/freya/statuses"
	cfg.API.PolylineURL = mock.URL() + "/api/v1/polyline/"
	cfg.Ignore = []string{"Berlin <-> Hamburg"}
	cfg.Routes = []string{gpxPath}
	cfg.Output.JSON = filepath.Join(dir, "polylines.json")
	cfg.Output.Template = tmplPath
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.MetricsFile = filepath.Join(dir, "metrics", "travelmap.prom")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	logger := zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := app.Run(ctx, app.Options{Config: cfg, Token: "integration-token", Logger: &logger})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Statuses != 59 {
		t.Errorf("Statuses = %d, want 59", summary.Statuses)
	}
	if summary.Kept != 56 {
		t.Errorf("Kept = %d, want 56", summary.Kept)
	}
	if summary.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", summary.Chunks)
	}
	if summary.Tracks != 1 {
		t.Errorf("Tracks = %d, want 1", summary.Tracks)
	}
	if summary.RateLimit.Waits != 1 {
		t.Errorf("RateLimit.Waits = %d, want 1", summary.RateLimit.Waits)
	}

	var listing, polylines []testutil.RecordedRequest
	for _, req := range mock.Requests() {
		if strings.HasPrefix(req.Path, "/api/v1/polyline/") {
			polylines = append(polylines, req)
		} else {
			listing = append(listing, req)
		}
	}
	if len(listing) != 4 {
		t.Errorf("listing requests = %d, want 4 (3 pages + 1 throttled)", len(listing))
	}
	if got := listing[len(listing)-1].RawQuery; got != "cursor=opaque-token" {
		t.Errorf("last listing query = %q, want cursor=opaque-token", got)
	}
	if len(polylines) != 2 {
		t.Fatalf("polyline requests = %d, want 2", len(polylines))
	}
	if n := len(strings.Split(strings.TrimPrefix(polylines[0].Path, "/api/v1/polyline/"), ",")); n != 50 {
		t.Errorf("first chunk size = %d, want 50", n)
	}
	if got := strings.TrimPrefix(polylines[1].Path, "/api/v1/polyline/"); got != "51,52,53,54,55,103" {
		t.Errorf("second chunk = %q", got)
	}

	data, err := os.ReadFile(cfg.Output.JSON)
	if err != nil {
		t.Fatalf("polylines.json: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("polylines.json is not a JSON array: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (2 chunks + 1 track)", len(entries))
	}
	if _, ok := entries[2]["features"]; !ok {
		t.Error("last entry should be the GPX feature collection")
	}

	page, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "index.html"))
	if err != nil {
		t.Fatalf("index.html: %v", err)
	}
	if string(page) != "<html>"+string(data)+"</html>" {
		t.Errorf("index.html does not embed polylines.json verbatim")
	}

	metricsText, err := os.ReadFile(cfg.Output.MetricsFile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	for _, name := range []string{
		"travelmap_pages_fetched_total",
		"travelmap_batches_fetched_total",
		"travelmap_rate_limited_total",
		"travelmap_statuses_filtered_total",
	} {
		if !strings.Contains(string(metricsText), name) {
			t.Errorf("metrics textfile missing %s", name)
		}
	}
}
