package qc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rove-labs/rove-go/internal/platform/metrics"
)

func ptrFloat(v float64) *float64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics { return metrics.New("test") }

// fakeConnector serves deterministic values computed per timestamp, and
// counts calls so tests can assert fetch dedup.
type fakeConnector struct {
	mu         sync.Mutex
	fetchCalls map[string]int
	listCalls  int

	listIDs  []string
	listErr  error
	fetchErr map[string]error
	value    func(id string, t time.Time) *float64
}

func (c *fakeConnector) FetchSeries(ctx context.Context, seriesID string, w Window, extraSpec string) (Series, error) {
	c.mu.Lock()
	if c.fetchCalls == nil {
		c.fetchCalls = make(map[string]int)
	}
	c.fetchCalls[seriesID]++
	c.mu.Unlock()

	if err := c.fetchErr[seriesID]; err != nil {
		return Series{}, err
	}
	stamps, err := w.Timestamps()
	if err != nil {
		return Series{}, err
	}
	values := make([]*float64, len(stamps))
	if c.value != nil {
		for i, t := range stamps {
			values[i] = c.value(seriesID, t)
		}
	}
	return Series{ID: seriesID, Values: values, Leading: w.Leading, Trailing: w.Trailing}, nil
}

func (c *fakeConnector) ListSeries(ctx context.Context, space SpaceSpec, extraSpec string) ([]string, error) {
	c.mu.Lock()
	c.listCalls++
	c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.listIDs, nil
}

func (c *fakeConnector) calls(seriesID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCalls[seriesID]
}

func (c *fakeConnector) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.listCalls
	for _, n := range c.fetchCalls {
		total += n
	}
	return total
}

type fakeCapability struct {
	name      string
	leading   int
	trailing  int
	paramsErr error
	eval      func(values []*float64, idx int, context []Series, p Params) (Flag, error)
}

func (c *fakeCapability) Name() string                  { return c.name }
func (c *fakeCapability) Window(p Params) (int, int)    { return c.leading, c.trailing }
func (c *fakeCapability) ValidateParams(p Params) error { return c.paramsErr }

func (c *fakeCapability) EvaluateIndex(values []*float64, idx int, context []Series, p Params) (Flag, error) {
	if c.eval == nil {
		return FlagPass, nil
	}
	return c.eval(values, idx, context, p)
}

type fakeRegistry map[string]Capability

func (r fakeRegistry) Lookup(name string) (Capability, bool) {
	c, ok := r[name]
	return c, ok
}
