// Package track converts local GPX recordings into GeoJSON so they can be
// drawn next to the polylines fetched from the API.
package track

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tkrajina/gpxgo/gpx"
)

// Reader loads GPX files.
type Reader struct {
	logger zerolog.Logger
}

// NewReader creates a reader logging through logger.
func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{logger: logger.With().Str("component", "track-reader").Logger()}
}

// ReadAll converts every path in order, failing on the first unreadable file.
func (r *Reader) ReadAll(paths []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(paths))
	for _, path := range paths {
		raw, err := r.Read(path)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// Read converts the GPX file at path into a GeoJSON FeatureCollection.
func (r *Reader) Read(path string) (json.RawMessage, error) {
	doc, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track %s: %w", path, err)
	}

	fc := Convert(doc)
	raw, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode track %s: %w", path, err)
	}

	r.logger.Info().
		Str("path", path).
		Int("features", len(fc.Features)).
		Msg("Read track")

	return raw, nil
}

// Read converts a GPX file using the global logger.
func Read(path string) (json.RawMessage, error) {
	return NewReader(log.Logger).Read(path)
}

// Convert maps tracks to MultiLineStrings (one line per segment), routes to
// LineStrings and waypoints to Points. Empty segments and routes are skipped.
func Convert(doc *gpx.GPX) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, trk := range doc.Tracks {
		var lines orb.MultiLineString
		for _, seg := range trk.Segments {
			if line := lineString(seg.Points); len(line) > 0 {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		fc.Append(feature(lines, "track", trk.Name))
	}

	for _, rte := range doc.Routes {
		if line := lineString(rte.Points); len(line) > 0 {
			fc.Append(feature(line, "route", rte.Name))
		}
	}

	for _, wpt := range doc.Waypoints {
		fc.Append(feature(orb.Point{wpt.Longitude, wpt.Latitude}, "waypoint", wpt.Name))
	}

	return fc
}

func lineString(points []gpx.GPXPoint) orb.LineString {
	line := make(orb.LineString, 0, len(points))
	for _, p := range points {
		line = append(line, orb.Point{p.Longitude, p.Latitude})
	}
	return line
}

func feature(geometry orb.Geometry, kind, name string) *geojson.Feature {
	f := geojson.NewFeature(geometry)
	f.Properties["kind"] = kind
	if name != "" {
		f.Properties["name"] = name
	}
	return f
}
