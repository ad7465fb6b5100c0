// Package postgres implements a data connector backed by an observations
// database. One row per (series, time); series positions live in a separate
// series table so polygon requests can be answered.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rove-labs/rove-go/internal/qc"
)

const (
	fetchQuery = `SELECT obs_time, value FROM observations
WHERE series_id = $1 AND obs_time >= $2 AND obs_time <= $3
ORDER BY obs_time`

	listAllQuery = `SELECT series_id FROM series ORDER BY series_id`

	listPositionedQuery = `SELECT series_id, lat, lon FROM series
WHERE lat IS NOT NULL AND lon IS NOT NULL
ORDER BY series_id`
)

type Connector struct {
	db *sql.DB
}

func New(db *sql.DB) *Connector {
	return &Connector{db: db}
}

// FetchSeries reads the window's rows and aligns them to its timestamps.
// Rows the database does not have stay nil.
func (c *Connector) FetchSeries(ctx context.Context, seriesID string, w qc.Window, extraSpec string) (qc.Series, error) {
	stamps, err := w.Timestamps()
	if err != nil {
		return qc.Series{}, err
	}

	rows, err := c.db.QueryContext(ctx, fetchQuery, seriesID, stamps[0], stamps[len(stamps)-1])
	if err != nil {
		return qc.Series{}, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	byTime := make(map[int64]float64)
	for rows.Next() {
		var obsTime time.Time
		var value sql.NullFloat64
		if err := rows.Scan(&obsTime, &value); err != nil {
			return qc.Series{}, fmt.Errorf("scan observation: %w", err)
		}
		if value.Valid {
			byTime[obsTime.UTC().Unix()] = value.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return qc.Series{}, fmt.Errorf("read observations: %w", err)
	}

	values := make([]*float64, len(stamps))
	for i, stamp := range stamps {
		if v, ok := byTime[stamp.UTC().Unix()]; ok {
			v := v
			values[i] = &v
		}
	}
	return qc.Series{ID: seriesID, Values: values, Leading: w.Leading, Trailing: w.Trailing}, nil
}

func (c *Connector) ListSeries(ctx context.Context, space qc.SpaceSpec, extraSpec string) ([]string, error) {
	switch spec := space.(type) {
	case qc.SpaceOne:
		return []string{spec.SeriesID}, nil
	case qc.SpaceAll:
		return c.listAll(ctx)
	case qc.SpacePolygon:
		return c.listPolygon(ctx, spec.Vertices)
	default:
		return nil, qc.ErrUnsupportedSpaceSpec
	}
}

func (c *Connector) listAll(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, listAllQuery)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	return ids, nil
}

func (c *Connector) listPolygon(ctx context.Context, vertices []qc.GeoPoint) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, listPositionedQuery)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var lat, lon float64
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		if pointInPolygon(qc.GeoPoint{Lat: lat, Lon: lon}, vertices) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	return ids, nil
}

// pointInPolygon is a ray cast over lat/lon treated as planar coordinates,
// which is fine for the regional polygons QC requests use.
func pointInPolygon(p qc.GeoPoint, vertices []qc.GeoPoint) bool {
	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}
