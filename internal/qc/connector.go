package qc

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Window is the fetch extent handed to connectors: the requested inclusive
// time range plus the context extension the pipeline's checks need.
type Window struct {
	Start      time.Time
	End        time.Time
	Resolution Duration
	Leading    int
	Trailing   int
}

// Timestamps enumerates every timestamp a fetched series must cover, in
// order: Leading points before Start, the grid itself, Trailing points
// after End.
func (w Window) Timestamps() ([]time.Time, error) {
	grid, err := NewTimeGrid(w.Start, w.End, w.Resolution)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, w.Leading+grid.N+w.Trailing)
	back := w.Resolution.Neg()
	lead := make([]time.Time, w.Leading)
	t := w.Start
	for i := w.Leading - 1; i >= 0; i-- {
		t = back.AddTo(t)
		lead[i] = t
	}
	out = append(out, lead...)
	out = append(out, grid.Timestamps()...)
	t = w.End
	for i := 0; i < w.Trailing; i++ {
		t = w.Resolution.AddTo(t)
		out = append(out, t)
	}
	return out, nil
}

// Connector resolves series data from one named data source. Implementations
// live outside the engine; the engine only depends on this interface.
type Connector interface {
	// FetchSeries materializes one series over the window, aligned to its
	// timestamps, with nil for samples the source has no value for.
	FetchSeries(ctx context.Context, seriesID string, w Window, extraSpec string) (Series, error)
	// ListSeries enumerates the series identifiers matching a spatial spec.
	ListSeries(ctx context.Context, space SpaceSpec, extraSpec string) ([]string, error)
}

// DataSwitch routes fetches to connectors by data-source name. The source
// map is fixed at construction and shared read-only across requests.
type DataSwitch struct {
	sources map[string]Connector
}

func NewDataSwitch(sources map[string]Connector) *DataSwitch {
	copied := make(map[string]Connector, len(sources))
	for name, connector := range sources {
		copied[name] = connector
	}
	return &DataSwitch{sources: copied}
}

func (ds *DataSwitch) Connector(name string) (Connector, error) {
	connector, ok := ds.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return connector, nil
}

func (ds *DataSwitch) Sources() []string {
	names := make([]string, 0, len(ds.sources))
	for name := range ds.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
