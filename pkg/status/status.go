// Package status holds the travel-log status records and the rules deciding
// which of them end up on the map.
package status

import (
	"fmt"
	"strconv"
)

// Visibility values used by the travel-log API.
const (
	VisibilityPublic        = 0
	VisibilityUnlisted      = 1
	VisibilityFollowers     = 2
	VisibilityPrivate       = 3
	VisibilityAuthenticated = 4
)

// Status is one check-in as returned by the statuses listing.
type Status struct {
	ID         int64 `json:"id"`
	Visibility int   `json:"visibility"`
	Train      Train `json:"train"`
}

// Train describes the trip. Despite the name it covers every mode of transport.
type Train struct {
	Category    string `json:"category"`
	Origin      Place  `json:"origin"`
	Destination Place  `json:"destination"`
}

// Place is a stop or station.
type Place struct {
	Name string `json:"name"`
}

// IDString returns the id in the form used by ignore rules and polyline requests.
func (s Status) IDString() string {
	return strconv.FormatInt(s.ID, 10)
}

// Route returns "Origin <-> Destination".
func (s Status) Route() string {
	return fmt.Sprintf("%s %s %s", s.Train.Origin.Name, PairSeparator, s.Train.Destination.Name)
}

// IDs returns the ids of statuses in order.
func IDs(statuses []Status) []string {
	ids := make([]string, len(statuses))
	for i, s := range statuses {
		ids[i] = s.IDString()
	}
	return ids
}
