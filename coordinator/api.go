package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rove-labs/rove-go/internal/platform/httpserver"
	"github.com/rove-labs/rove-go/internal/qc"
)

type coordinatorAPI struct {
	logger         *slog.Logger
	scheduler      *qc.Scheduler
	resolver       *qc.Resolver
	requestTimeout time.Duration
}

func newCoordinatorAPI(logger *slog.Logger, scheduler *qc.Scheduler, resolver *qc.Resolver, requestTimeout time.Duration) *coordinatorAPI {
	return &coordinatorAPI{
		logger:         logger,
		scheduler:      scheduler,
		resolver:       resolver,
		requestTimeout: requestTimeout,
	}
}

func (api *coordinatorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /validate", api.handleValidate)
	mux.HandleFunc("GET /pipelines", api.handleListPipelines)
}

type validateRequest struct {
	DataSource     string        `json:"data_source"`
	BackingSources []string      `json:"backing_sources,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	TimeResolution string        `json:"time_resolution"`
	One            *string       `json:"one,omitempty"`
	Polygon        []qc.GeoPoint `json:"polygon,omitempty"`
	All            bool          `json:"all,omitempty"`
	Pipeline       string        `json:"pipeline"`
	ExtraSpec      string        `json:"extra_spec,omitempty"`
}

// toEngine maps the wire shape onto the engine request. Exactly one of the
// spatial fields must be set.
func (req validateRequest) toEngine() (qc.Request, error) {
	resolution, err := qc.ParseISODuration(req.TimeResolution)
	if err != nil {
		return qc.Request{}, &qc.ValidationError{Field: "time_resolution", Reason: err.Error()}
	}

	var space qc.SpaceSpec
	set := 0
	if req.One != nil {
		space = qc.SpaceOne{SeriesID: *req.One}
		set++
	}
	if len(req.Polygon) > 0 {
		space = qc.SpacePolygon{Vertices: req.Polygon}
		set++
	}
	if req.All {
		space = qc.SpaceAll{}
		set++
	}
	if set != 1 {
		return qc.Request{}, &qc.ValidationError{Field: "space_spec", Reason: "exactly one of one, polygon, all must be set"}
	}

	return qc.Request{
		DataSource:     req.DataSource,
		BackingSources: req.BackingSources,
		Start:          req.StartTime,
		End:            req.EndTime,
		Resolution:     resolution,
		Space:          space,
		Pipeline:       req.Pipeline,
		ExtraSpec:      req.ExtraSpec,
	}, nil
}

func (api *coordinatorAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	engineReq, err := req.toEngine()
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}

	ctx := r.Context()
	if api.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.requestTimeout)
		defer cancel()
	}

	resp, err := api.scheduler.Validate(ctx, engineReq)
	if err != nil {
		status, code := mapValidateError(err)
		if status >= 500 {
			api.logger.Error("validate failed", "request_id", r.Header.Get("X-Request-Id"), "error", err)
		}
		api.writeError(w, r, status, code)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (api *coordinatorAPI) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"pipelines": api.resolver.Names(),
	})
}

func mapValidateError(err error) (int, string) {
	var validationErr *qc.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, qc.ErrUnknownPipeline):
		return http.StatusBadRequest, "unknown_pipeline"
	case errors.Is(err, qc.ErrUnknownSource):
		return http.StatusBadGateway, "source_unavailable"
	case errors.Is(err, qc.ErrUnsupportedSpaceSpec):
		return http.StatusBadRequest, "space_spec_unsupported"
	case errors.Is(err, qc.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded"
	default:
		var sourceErr *qc.SourceError
		if errors.As(err, &sourceErr) {
			return http.StatusBadGateway, "source_unavailable"
		}
		return http.StatusInternalServerError, "internal_error"
	}
}

func (api *coordinatorAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	httpserver.WriteJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}
