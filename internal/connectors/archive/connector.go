// Package archive implements a data connector over CSV observation dumps
// held in an object store, one object per series.
package archive

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/rove-labs/rove-go/internal/qc"
)

type Connector struct {
	client *minio.Client
	bucket string
	prefix string
}

func New(client *minio.Client, cfg Config) *Connector {
	return &Connector{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func (c *Connector) objectKey(seriesID string) string {
	return path.Join(c.prefix, seriesID+".csv")
}

func (c *Connector) FetchSeries(ctx context.Context, seriesID string, w qc.Window, extraSpec string) (qc.Series, error) {
	stamps, err := w.Timestamps()
	if err != nil {
		return qc.Series{}, err
	}

	obj, err := c.client.GetObject(ctx, c.bucket, c.objectKey(seriesID), minio.GetObjectOptions{})
	if err != nil {
		return qc.Series{}, fmt.Errorf("get dump for %q: %w", seriesID, err)
	}
	defer obj.Close()

	byTime, err := parseDump(obj)
	if err != nil {
		return qc.Series{}, fmt.Errorf("parse dump for %q: %w", seriesID, err)
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

// ListSeries enumerates dump objects. The dumps carry no positions, so
// polygon requests cannot be served from this source.
func (c *Connector) ListSeries(ctx context.Context, space qc.SpaceSpec, extraSpec string) ([]string, error) {
	switch spec := space.(type) {
	case qc.SpaceOne:
		return []string{spec.SeriesID}, nil
	case qc.SpaceAll:
	case qc.SpacePolygon:
		return nil, qc.ErrUnsupportedSpaceSpec
	default:
		return nil, qc.ErrUnsupportedSpaceSpec
	}

	var ids []string
	opts := minio.ListObjectsOptions{Prefix: c.prefix, Recursive: true}
	for obj := range c.client.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list dumps: %w", obj.Err)
		}
		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".csv"))
	}
	return ids, nil
}

// parseDump reads rows of "RFC3339 time,value". An empty value field is a
// recorded gap and is skipped.
func parseDump(r io.Reader) (map[int64]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	byTime := make(map[int64]float64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return byTime, nil
		}
		if err != nil {
			return nil, err
		}

		stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", record[0], err)
		}
		raw := strings.TrimSpace(record[1])
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", record[1], err)
		}
		byTime[stamp.UTC().Unix()] = value
	}
}
