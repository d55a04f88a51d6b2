package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	terrain "github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/raster"
	"github.com/twpayne/go-terrain/render"
)

// Error codes. Clients distinguish codeNoDataAvailable, meaning that the
// request was valid but nothing usable was found, from the rejection codes.
const (
	codeBadRequest           = "bad_request"
	codeBandNotFound         = "band_not_found"
	codeCoverage             = "coverage"
	codeDatasetNotFound      = "dataset_not_found"
	codeDimensionMismatch    = "dimension_mismatch"
	codeDuplicateName        = "duplicate_name"
	codeInternal             = "internal"
	codeInvalidBandReference = "invalid_band_reference"
	codeInvalidBound         = "invalid_bound"
	codeInvalidSpec          = "invalid_spec"
	codeLastBand             = "last_band"
	codeNoDataAvailable      = "no_data_available"
	codeUnavailable          = "unavailable"
	codeWorkspaceFull        = "workspace_full"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify returns the HTTP status and error code of err.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, errDatasetNotFound):
		return http.StatusNotFound, codeDatasetNotFound
	case errors.Is(err, errWorkspaceFull):
		return http.StatusInsufficientStorage, codeWorkspaceFull
	case errors.Is(err, terrain.ErrNoDataAvailable):
		return http.StatusNotFound, codeNoDataAvailable
	case errors.Is(err, terrain.ErrCoverage):
		return http.StatusBadRequest, codeCoverage
	case errors.Is(err, terrain.ErrInvalidBound):
		return http.StatusBadRequest, codeInvalidBound
	case errors.Is(err, raster.ErrNotFound):
		return http.StatusNotFound, codeBandNotFound
	case errors.Is(err, raster.ErrLastBand):
		return http.StatusConflict, codeLastBand
	case errors.Is(err, raster.ErrDuplicateName):
		return http.StatusConflict, codeDuplicateName
	case errors.Is(err, raster.ErrDimensionMismatch):
		return http.StatusBadRequest, codeDimensionMismatch
	case errors.Is(err, render.ErrInvalidBandReference):
		return http.StatusBadRequest, codeInvalidBandReference
	case errors.Is(err, render.ErrInvalidExpression),
		errors.Is(err, render.ErrInvalidMode),
		errors.Is(err, render.ErrInvalidRamp),
		errors.Is(err, render.ErrInvalidColor),
		errors.Is(err, render.ErrUnknownRamp):
		return http.StatusBadRequest, codeInvalidSpec
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "err", err)
		message = http.StatusText(status)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "code", code, "err", err)
	}
	writeJSON(w, status, errorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
