package qc

import (
	"strings"
	"time"
)

// GeoPoint is a geographic position in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SpaceSpec restricts which series a request covers. Exactly one of the
// three variants is used; consumers must switch exhaustively.
type SpaceSpec interface {
	isSpaceSpec()
}

// SpaceOne selects a single series by identifier.
type SpaceOne struct {
	SeriesID string
}

// SpacePolygon selects every series positioned inside a lat-lon polygon.
type SpacePolygon struct {
	Vertices []GeoPoint
}

// SpaceAll selects every series the data source offers.
type SpaceAll struct{}

func (SpaceOne) isSpaceSpec()     {}
func (SpacePolygon) isSpaceSpec() {}
func (SpaceAll) isSpaceSpec()     {}

// Request is a validated-on-entry QC request: which data to fetch, and
// which pipeline of checks to run against it.
type Request struct {
	DataSource     string
	BackingSources []string
	Start          time.Time
	End            time.Time
	Resolution     Duration
	Space          SpaceSpec
	Pipeline       string
	ExtraSpec      string
}

// Validate checks the request shape and derives its time grid. It runs
// before any pipeline resolution or data fetch.
func (r Request) Validate() (TimeGrid, error) {
	if strings.TrimSpace(r.DataSource) == "" {
		return TimeGrid{}, &ValidationError{Field: "data_source", Reason: "is required"}
	}
	if strings.TrimSpace(r.Pipeline) == "" {
		return TimeGrid{}, &ValidationError{Field: "pipeline", Reason: "is required"}
	}
	for i, backing := range r.BackingSources {
		if strings.TrimSpace(backing) == "" {
			return TimeGrid{}, &ValidationError{Field: "backing_sources", Reason: "contains an empty name"}
		}
		if backing == r.DataSource {
			return TimeGrid{}, &ValidationError{Field: "backing_sources", Reason: "must not repeat the primary data source"}
		}
		for _, other := range r.BackingSources[:i] {
			if backing == other {
				return TimeGrid{}, &ValidationError{Field: "backing_sources", Reason: "contains duplicates"}
			}
		}
	}

	switch space := r.Space.(type) {
	case SpaceOne:
		if strings.TrimSpace(space.SeriesID) == "" {
			return TimeGrid{}, &ValidationError{Field: "one", Reason: "series identifier is required"}
		}
	case SpacePolygon:
		if len(space.Vertices) < 3 {
			return TimeGrid{}, &ValidationError{Field: "polygon", Reason: "requires at least 3 vertices"}
		}
	case SpaceAll:
	case nil:
		return TimeGrid{}, &ValidationError{Field: "space_spec", Reason: "is required"}
	default:
		return TimeGrid{}, &ValidationError{Field: "space_spec", Reason: "unsupported variant"}
	}

	return NewTimeGrid(r.Start, r.End, r.Resolution)
}
