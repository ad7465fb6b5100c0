package qc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, connectors map[string]Connector, registry CapabilityRegistry, pipelines map[string]*Pipeline) *Scheduler {
	t.Helper()
	logger := discardLogger()
	m := testMetrics()
	planner := NewPlanner(NewDataSwitch(connectors), logger, m)
	dispatcher := NewDispatcher(NewLocalSubmitter(NewRunner(registry, logger)), DispatcherConfig{MaxInFlight: 4}, logger, m)
	return NewScheduler(NewResolver(pipelines), planner, dispatcher, logger, m)
}

func passingRegistry() fakeRegistry {
	return fakeRegistry{"range_check": &fakeCapability{name: "range_check"}}
}

func TestValidate_MissingPointIsFlaggedNotDropped(t *testing.T) {
	registry := passingRegistry()
	pipeline := mustPipeline(t, registry, Step{Name: "range", Check: "range_check"})

	connector := &fakeConnector{value: func(id string, ts time.Time) *float64 {
		if ts.Hour() == 1 {
			return nil
		}
		return ptrFloat(10)
	}}
	s := newTestScheduler(t, map[string]Connector{"met": connector}, registry, map[string]*Pipeline{"hourly": pipeline})

	resp, err := s.Validate(context.Background(), testGridRequest(SpaceOne{SeriesID: "18700"}))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	flags := resp.Results[0].Series[0].Flags
	want := []Flag{FlagPass, FlagDataMissing, FlagPass, FlagPass}
	if len(flags) != len(want) {
		t.Fatalf("flags=%v, want %v", flags, want)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Fatalf("flags=%v, want %v", flags, want)
		}
	}
}

func TestValidate_AllYieldsOneFlagSeriesPerTarget(t *testing.T) {
	registry := passingRegistry()
	pipeline := mustPipeline(t, registry, Step{Name: "range", Check: "range_check"})

	connector := &fakeConnector{
		listIDs: []string{"a", "b", "c"},
		value:   func(id string, ts time.Time) *float64 { return ptrFloat(1) },
	}
	s := newTestScheduler(t, map[string]Connector{"met": connector}, registry, map[string]*Pipeline{"hourly": pipeline})

	resp, err := s.Validate(context.Background(), testGridRequest(SpaceAll{}))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	series := resp.Results[0].Series
	if len(series) != 3 {
		t.Fatalf("series=%d, want one per target", len(series))
	}
	for i, want := range []string{"a", "b", "c"} {
		if series[i].SeriesID != want {
			t.Fatalf("series[%d]=%q, want %q (discovery order)", i, series[i].SeriesID, want)
		}
	}
}

func TestValidate_BackingSeriesNeverInResponse(t *testing.T) {
	registry := fakeRegistry{"buddy_check": &fakeCapability{name: "buddy_check"}}
	pipeline := mustPipeline(t, registry, Step{Name: "buddy", Check: "buddy_check", RequiresBacking: true})

	primary := &fakeConnector{value: func(id string, ts time.Time) *float64 { return ptrFloat(1) }}
	backing := &fakeConnector{value: func(id string, ts time.Time) *float64 { return ptrFloat(2) }}
	s := newTestScheduler(t, map[string]Connector{"met": primary, "netatmo": backing}, registry, map[string]*Pipeline{"hourly": pipeline})

	req := testGridRequest(SpaceOne{SeriesID: "18700"})
	req.BackingSources = []string{"netatmo"}
	resp, err := s.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, result := range resp.Results {
		for _, fs := range result.Series {
			if fs.SeriesID != "18700" {
				t.Fatalf("response contains series %q, want only the target", fs.SeriesID)
			}
		}
	}
}

func TestValidate_UnknownPipelineFetchesNothing(t *testing.T) {
	registry := passingRegistry()
	connector := &fakeConnector{value: func(id string, ts time.Time) *float64 { return ptrFloat(1) }}
	s := newTestScheduler(t, map[string]Connector{"met": connector}, registry, map[string]*Pipeline{})

	req := testGridRequest(SpaceOne{SeriesID: "18700"})
	if _, err := s.Validate(context.Background(), req); !errors.Is(err, ErrUnknownPipeline) {
		t.Fatalf("err=%v, want ErrUnknownPipeline", err)
	}
	if connector.totalCalls() != 0 {
		t.Fatalf("connector calls=%d, want 0 before pipeline resolution", connector.totalCalls())
	}
}

func TestValidate_InvalidRequestRejectedEarly(t *testing.T) {
	registry := passingRegistry()
	pipeline := mustPipeline(t, registry, Step{Name: "range", Check: "range_check"})
	connector := &fakeConnector{value: func(id string, ts time.Time) *float64 { return ptrFloat(1) }}
	s := newTestScheduler(t, map[string]Connector{"met": connector}, registry, map[string]*Pipeline{"hourly": pipeline})

	req := testGridRequest(SpaceOne{SeriesID: "18700"})
	req.End = req.Start.Add(90 * time.Minute) // does not land on the hourly grid
	_, err := s.Validate(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err=%v, want ValidationError", err)
	}
	if connector.totalCalls() != 0 {
		t.Fatalf("connector calls=%d, want 0 for an invalid request", connector.totalCalls())
	}
}

func TestValidate_RemoteFailureDegradesOnlyThatTarget(t *testing.T) {
	registry := passingRegistry()
	pipeline := mustPipeline(t, registry, Step{Name: "range", Check: "range_check"})

	// A worker that answers 500 for every invocation targeting series "b"
	// and executes the rest normally.
	execute := ExecuteHandler(NewRunner(registry, discardLogger()), discardLogger(), testMetrics())
	var bHits atomic.Int64
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read invocation: %v", err)
			return
		}
		var req executeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			t.Errorf("decode invocation: %v", err)
			return
		}
		if req.Invocation.Target.ID == "b" {
			bHits.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(payload))
		execute(w, r)
	}))
	t.Cleanup(worker.Close)

	submitter, err := NewRemoteSubmitter([]string{worker.URL}, "", worker.Client())
	if err != nil {
		t.Fatalf("NewRemoteSubmitter: %v", err)
	}
	connector := &fakeConnector{
		listIDs: []string{"a", "b", "c"},
		value:   func(id string, ts time.Time) *float64 { return ptrFloat(1) },
	}
	logger := discardLogger()
	m := testMetrics()
	planner := NewPlanner(NewDataSwitch(map[string]Connector{"met": connector}), logger, m)
	dispatcher := NewDispatcher(submitter, DispatcherConfig{
		MaxInFlight:  2,
		Retries:      2,
		RetryBackoff: time.Millisecond,
	}, logger, m)
	s := NewScheduler(NewResolver(map[string]*Pipeline{"hourly": pipeline}), planner, dispatcher, logger, m)

	resp, err := s.Validate(context.Background(), testGridRequest(SpaceAll{}))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := bHits.Load(); got != 3 {
		t.Fatalf("worker hits for b=%d, want first attempt plus 2 retries", got)
	}

	series := resp.Results[0].Series
	if len(series) != 3 {
		t.Fatalf("series=%d, want one per target", len(series))
	}
	for _, fs := range series {
		if len(fs.Flags) != 4 {
			t.Fatalf("series %q has %d flags, want 4", fs.SeriesID, len(fs.Flags))
		}
		want := FlagPass
		if fs.SeriesID == "b" {
			want = FlagInconclusive
		}
		for i, flag := range fs.Flags {
			if flag != want {
				t.Fatalf("series %q flag[%d]=%v, want %v", fs.SeriesID, i, flag, want)
			}
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	registry := passingRegistry()
	pipeline := mustPipeline(t, registry,
		Step{Name: "range_a", Check: "range_check"},
		Step{Name: "range_b", Check: "range_check"},
	)
	connector := &fakeConnector{
		listIDs: []string{"a", "b", "c"},
		value: func(id string, ts time.Time) *float64 {
			return ptrFloat(float64(ts.Hour()))
		},
	}
	s := newTestScheduler(t, map[string]Connector{"met": connector}, registry, map[string]*Pipeline{"hourly": pipeline})

	req := testGridRequest(SpaceAll{})
	first, err := s.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	second, err := s.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("same request produced different responses:\n%s\n%s", a, b)
	}
}
