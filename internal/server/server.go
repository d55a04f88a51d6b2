// Package server implements the terrain HTTP API: tile addressing, elevation
// datasets held in an in-memory workspace, and their display expressions.
package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	terrain "github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/raster"
	"github.com/twpayne/go-terrain/render"
)

const maxRequestBodySize = 1 << 20

// A Server serves the terrain HTTP API.
type Server struct {
	service         *terrain.Service
	builder         *render.Builder
	workspace       *workspace
	logger          *slog.Logger
	maxDatasets     int
	shutdownTimeout time.Duration
}

// An Option sets an option on a Server.
type Option func(*Server)

// WithBuilder sets the expression builder.
func WithBuilder(builder *render.Builder) Option {
	return func(s *Server) {
		s.builder = builder
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxDatasets sets the maximum number of datasets held at once.
func WithMaxDatasets(maxDatasets int) Option {
	return func(s *Server) {
		s.maxDatasets = maxDatasets
	}
}

// WithShutdownTimeout sets how long Run waits for requests to complete when
// its context is canceled.
func WithShutdownTimeout(shutdownTimeout time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = shutdownTimeout
	}
}

// New returns a new Server that creates datasets with service.
func New(service *terrain.Service, options ...Option) *Server {
	s := &Server{
		service:         service,
		logger:          slog.New(slog.DiscardHandler),
		maxDatasets:     64,
		shutdownTimeout: 10 * time.Second,
	}
	for _, option := range options {
		option(s)
	}
	if s.builder == nil {
		s.builder = render.NewBuilder(render.WithLogger(s.logger))
	}
	s.workspace = newWorkspace(s.maxDatasets)
	return s
}

// Handler returns s's HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(logging(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tiles", s.handleTiles)
		r.Post("/elevation", s.handleElevation)
		r.Post("/datasets", s.handleCreateDataset)
		r.Route("/datasets/{id}", func(r chi.Router) {
			r.Use(datasetContext)
			r.Get("/", s.handleGetDataset)
			r.Delete("/", s.handleDeleteDataset)
			r.Get("/data", s.handleData)
			r.Post("/expression", s.handleExpression)
			r.Post("/bands", s.handleAddBand)
			r.Delete("/bands/{ref}", s.handleRemoveBand)
		})
	})
	return r
}

// Run serves s on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type tileResponse struct {
	Name  string     `json:"name"`
	Lat   int        `json:"lat"`
	Lon   int        `json:"lon"`
	Bound [4]float64 `json:"bbox"`
}

type tilesResponse struct {
	Tiles []tileResponse `json:"tiles"`
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	bound, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := terrain.CheckBound(bound); err != nil {
		s.writeError(w, r, err)
		return
	}
	tileRequests := terrain.TilesCovering(bound)
	response := tilesResponse{
		Tiles: make([]tileResponse, 0, len(tileRequests)),
	}
	for _, tileRequest := range tileRequests {
		response.Tiles = append(response.Tiles, tileResponse{
			Name:  tileRequest.Name(),
			Lat:   tileRequest.Lat,
			Lon:   tileRequest.Lon,
			Bound: boundArray(tileRequest.Bound()),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

type elevationRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type elevationResponse struct {
	Elevations []*float64 `json:"elevations"`
}

func (s *Server) handleElevation(w http.ResponseWriter, r *http.Request) {
	var request elevationRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, r, err)
		return
	}
	for i, coord := range request.Coordinates {
		if len(coord) != 2 {
			s.writeError(w, r, fmt.Errorf("coordinate %d: want [lon, lat]: %w", i, errBadRequest))
			return
		}
	}
	elevations, err := s.service.Elevation(r.Context(), request.Coordinates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	response := elevationResponse{
		Elevations: make([]*float64, len(elevations)),
	}
	for i, elevation := range elevations {
		if !math.IsNaN(elevation) {
			response.Elevations[i] = &elevation
		}
	}
	writeJSON(w, http.StatusOK, response)
}

type bandResponse struct {
	Index  int              `json:"index"`
	Name   string           `json:"name"`
	Nodata raster.JSONFloat `json:"nodata"`
	Stats  raster.Stats     `json:"stats"`
}

type datasetResponse struct {
	ID     string           `json:"id"`
	Width  int              `json:"width"`
	Height int              `json:"height"`
	Extent [4]float64       `json:"extent"`
	Nodata raster.JSONFloat `json:"nodata"`
	Bands  []bandResponse   `json:"bands"`
	Spec   render.Spec      `json:"spec"`
}

// describe returns the description of layer. The caller must hold the
// workspace lock.
func describe(id uuid.UUID, layer *render.Layer) datasetResponse {
	dataset := layer.Dataset
	response := datasetResponse{
		ID:     id.String(),
		Width:  dataset.Width(),
		Height: dataset.Height(),
		Extent: boundArray(dataset.Extent()),
		Nodata: raster.JSONFloat(dataset.Nodata()),
		Bands:  make([]bandResponse, 0, dataset.BandCount()),
		Spec:   layer.Spec,
	}
	for i, band := range dataset.Bands() {
		nodata, _ := dataset.BandNodataValue(raster.Index(i + 1))
		response.Bands = append(response.Bands, bandResponse{
			Index:  i + 1,
			Name:   band.Name(),
			Nodata: raster.JSONFloat(nodata),
			Stats:  band.Stats(),
		})
	}
	return response
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	bound, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dataset, err := s.service.Dataset(r.Context(), bound)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	layer := render.NewLayer(dataset)
	id, err := s.workspace.add(layer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var response datasetResponse
	_ = s.workspace.with(id, func(layer *render.Layer) error {
		response = describe(id, layer)
		return nil
	})
	s.logger.InfoContext(r.Context(), "dataset created",
		"dataset", id.String(),
		"width", dataset.Width(),
		"height", dataset.Height(),
	)
	w.Header().Set("Location", "/v1/datasets/"+id.String())
	writeJSON(w, http.StatusCreated, response)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var response datasetResponse
	if err := s.workspace.with(id, func(layer *render.Layer) error {
		response = describe(id, layer)
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.workspace.remove(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleData writes the samples of one band as little-endian float32s with
// the raster's geometry in headers.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bandRef := raster.Index(1)
	if band := r.URL.Query().Get("band"); band != "" {
		bandRef = raster.ParseBandRef(band)
	}
	var (
		width, height int
		extent        orb.Bound
		nodata        float64
		data          []float32
	)
	if err := s.workspace.with(id, func(layer *render.Layer) error {
		band, err := layer.Dataset.Band(bandRef)
		if err != nil {
			return err
		}
		nodata, err = layer.Dataset.BandNodataValue(bandRef)
		if err != nil {
			return err
		}
		width, height = layer.Dataset.Width(), layer.Dataset.Height()
		extent = layer.Dataset.Extent()
		data = band.Data()
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}

	extentArray := boundArray(extent)
	extentStrs := make([]string, len(extentArray))
	for i, value := range extentArray {
		extentStrs[i] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Length", strconv.Itoa(4*len(data)))
	header.Set("X-Raster-Format", raster.FormatFloat32LE)
	header.Set("X-Raster-Width", strconv.Itoa(width))
	header.Set("X-Raster-Height", strconv.Itoa(height))
	header.Set("X-Raster-Extent", strings.Join(extentStrs, ","))
	header.Set("X-Raster-Nodata", strconv.FormatFloat(nodata, 'g', -1, 64))
	w.WriteHeader(http.StatusOK)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		s.logger.DebugContext(r.Context(), "write data", "err", err)
	}
}

type expressionResponse struct {
	Expression render.Expr      `json:"expression"`
	Nodata     raster.JSONFloat `json:"nodata"`
}

// handleExpression builds the display expression of a dataset. A non-empty
// body replaces the dataset's Spec if the expression can be built from it.
// The ramp query parameter selects a named color ramp.
func (s *Server) handleExpression(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var newSpec *render.Spec
	if len(bytes.TrimSpace(body)) != 0 {
		newSpec = &render.Spec{}
		if err := json.Unmarshal(body, newSpec); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
	}
	var ramp render.Ramp
	if rampName := r.URL.Query().Get("ramp"); rampName != "" {
		if ramp, err = render.NamedRamp(rampName); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var response expressionResponse
	if err := s.workspace.with(id, func(layer *render.Layer) error {
		spec := layer.Spec
		if newSpec != nil {
			spec = *newSpec
		}
		if ramp != nil {
			spec.ColorRamp = ramp
		}
		expr, err := s.builder.Build(layer.Dataset, spec)
		if err != nil {
			return err
		}
		layer.Spec = spec
		response = expressionResponse{
			Expression: expr,
			Nodata:     raster.JSONFloat(layer.Dataset.Nodata()),
		}
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(responseJSON))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseJSON)
}

type addBandRequest struct {
	Source string `json:"source"`
	Band   string `json:"band"`
	Name   string `json:"name"`
}

type addBandResponse struct {
	Index   int             `json:"index"`
	Dataset datasetResponse `json:"dataset"`
}

// handleAddBand copies a band from a source dataset, which may be the same
// dataset, into a dataset.
func (s *Server) handleAddBand(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var request addBandRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, r, err)
		return
	}
	sourceID := id
	if request.Source != "" {
		if sourceID, err = uuid.Parse(request.Source); err != nil {
			s.writeError(w, r, fmt.Errorf("source: %w", errDatasetNotFound))
			return
		}
	}
	if request.Band == "" {
		request.Band = "1"
	}

	var response addBandResponse
	if err := s.workspace.with2(id, sourceID, func(layer, source *render.Layer) error {
		index, err := layer.AddBand(raster.FromDataset{
			Dataset: source.Dataset,
			Band:    raster.ParseBandRef(request.Band),
		}, raster.BandName(request.Name))
		if err != nil {
			return err
		}
		response = addBandResponse{
			Index:   index,
			Dataset: describe(id, layer),
		}
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *Server) handleRemoveBand(w http.ResponseWriter, r *http.Request) {
	id, err := datasetID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bandRef := raster.ParseBandRef(chi.URLParam(r, "ref"))
	var response datasetResponse
	if err := s.workspace.with(id, func(layer *render.Layer) error {
		if err := layer.RemoveBand(bandRef); err != nil {
			return err
		}
		response = describe(id, layer)
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func datasetID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errDatasetNotFound
	}
	return id, nil
}

func decodeBody(r *http.Request, value any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// parseBBox parses a bounding box given as west,south,east,north.
func parseBBox(s string) (orb.Bound, error) {
	bound, err := terrain.ParseBBox(s)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("bbox: %w: %w", errBadRequest, err)
	}
	return bound, nil
}

func boundArray(bound orb.Bound) [4]float64 {
	return [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
}
