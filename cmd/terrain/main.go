package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"

	terrain "github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/internal/config"
	"github.com/twpayne/go-terrain/internal/logger"
	"github.com/twpayne/go-terrain/internal/server"
	"github.com/twpayne/go-terrain/raster"
	"github.com/twpayne/go-terrain/redistile"
	"github.com/twpayne/go-terrain/render"
)

const (
	BASEURL         string = `baseUrl`
	TILEDIR         string = `tileDir`
	USERAGENT       string = `userAgent`
	CACHESIZE       string = `cacheSize`
	CONCURRENCY     string = `concurrency`
	HTTPTIMEOUT     string = `httpTimeout`
	REDISADDR       string = `redisAddr`
	REDISTTL        string = `redisTtl`
	LOGLEVEL        string = `logLevel`
	LOGCONSOLE      string = `logConsole`
	LISTENADDR      string = `listenAddr`
	SHUTDOWNTIMEOUT string = `shutdownTimeout`
	MAXDATASETS     string = `maxDatasets`

	BBOX       string = `bbox`
	OUT        string = `out`
	IN         string = `in`
	NAME       string = `name`
	GEOTIFF    string = `geotiff`
	BAND       string = `band`
	MODE       string = `mode`
	RAMP       string = `ramp`
	EXPRESSION string = `expression`
	MIN        string = `min`
	MAX        string = `max`
)

// An app holds the state shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

func envVars(name string) []string {
	return []string{"TERRAIN_" + strcase.ToScreamingSnake(name)}
}

//nolint:funlen
func newApp(stdout, stderr io.Writer) (*cli.App, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		stdout: stdout,
	}

	bboxFlag := &cli.StringFlag{
		Name:     BBOX,
		Aliases:  []string{"b"},
		Usage:    "Bounding box as west,south,east,north in degrees",
		Required: true,
	}
	nameFlag := &cli.StringFlag{
		Name:  NAME,
		Usage: "Dataset name, used as the file name prefix",
		Value: terrain.BandName,
	}

	cliApp := cli.NewApp()
	cliApp.Name = "terrain"
	cliApp.Usage = "Fetch, composite, and render SRTM elevation tiles"
	cliApp.Version = versioninfo.Short()
	cliApp.Writer = stdout
	cliApp.ErrWriter = stderr

	cliApp.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    BASEURL,
			Usage:   "Base URL of the elevation tile service",
			Value:   cfg.BaseURL,
			EnvVars: envVars(BASEURL),
		},
		&cli.StringFlag{
			Name:    TILEDIR,
			Usage:   "Local directory of tiles, used instead of the tile service",
			EnvVars: envVars(TILEDIR),
		},
		&cli.StringFlag{
			Name:    USERAGENT,
			Usage:   "User-Agent sent to the tile service",
			Value:   cfg.UserAgent,
			EnvVars: envVars(USERAGENT),
		},
		&cli.IntFlag{
			Name:    CACHESIZE,
			Usage:   "Number of decoded tiles kept in memory",
			Value:   cfg.CacheSize,
			EnvVars: envVars(CACHESIZE),
		},
		&cli.IntFlag{
			Name:    CONCURRENCY,
			Usage:   "Maximum number of concurrent tile fetches",
			Value:   cfg.Concurrency,
			EnvVars: envVars(CONCURRENCY),
		},
		&cli.DurationFlag{
			Name:    HTTPTIMEOUT,
			Usage:   "Timeout of each tile request",
			Value:   cfg.HTTPTimeout,
			EnvVars: envVars(HTTPTIMEOUT),
		},
		&cli.StringFlag{
			Name:    REDISADDR,
			Usage:   "Address of a Redis server used to share fetched tiles",
			EnvVars: envVars(REDISADDR),
		},
		&cli.DurationFlag{
			Name:    REDISTTL,
			Usage:   "Lifetime of tiles cached in Redis",
			Value:   cfg.RedisTTL,
			EnvVars: envVars(REDISTTL),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "Log level: debug, info, warn, or error",
			Value:   cfg.LogLevel,
			EnvVars: envVars(LOGLEVEL),
		},
		&cli.BoolFlag{
			Name:    LOGCONSOLE,
			Usage:   "Log in human-readable form",
			EnvVars: envVars(LOGCONSOLE),
		},
	}

	cliApp.Before = func(c *cli.Context) error {
		cfg.BaseURL = c.String(BASEURL)
		cfg.TileDir = c.String(TILEDIR)
		cfg.UserAgent = c.String(USERAGENT)
		cfg.CacheSize = c.Int(CACHESIZE)
		cfg.Concurrency = c.Int(CONCURRENCY)
		cfg.HTTPTimeout = c.Duration(HTTPTIMEOUT)
		cfg.RedisAddr = c.String(REDISADDR)
		cfg.RedisTTL = c.Duration(REDISTTL)
		cfg.LogLevel = c.String(LOGLEVEL)
		cfg.LogConsole = c.Bool(LOGCONSOLE)
		if err := cfg.Validate(); err != nil {
			return err
		}
		zl := logger.Build(logger.Config{
			Level:     cfg.LogLevel,
			Console:   cfg.LogConsole,
			Component: "terrain",
		}, stderr)
		a.logger = logger.NewSlog(&zl)
		return nil
	}

	cliApp.Commands = []*cli.Command{
		{
			Name:   "tiles",
			Usage:  "List the tiles covering a bounding box",
			Flags:  []cli.Flag{bboxFlag},
			Action: a.tiles,
		},
		{
			Name:      "elevation",
			Usage:     "Print the elevation at a point",
			ArgsUsage: "latitude longitude",
			Action:    a.elevation,
		},
		{
			Name:  "fetch",
			Usage: "Fetch and composite the tiles covering a bounding box into a raw dataset",
			Flags: []cli.Flag{
				bboxFlag,
				&cli.StringFlag{
					Name:     OUT,
					Aliases:  []string{"o"},
					Usage:    "Output directory",
					Required: true,
				},
				nameFlag,
			},
			Action: a.fetch,
		},
		{
			Name:  "import",
			Usage: "Convert one band of a tiled GeoTIFF into a raw dataset",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     GEOTIFF,
					Usage:    "GeoTIFF file",
					Required: true,
				},
				&cli.StringFlag{
					Name:  BAND,
					Usage: "Band index or name",
					Value: "1",
				},
				&cli.StringFlag{
					Name:     OUT,
					Aliases:  []string{"o"},
					Usage:    "Output directory",
					Required: true,
				},
				nameFlag,
			},
			Action: a.importGeoTIFF,
		},
		{
			Name:  "expression",
			Usage: "Print the display expression of a raw dataset as JSON",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     IN,
					Aliases:  []string{"i"},
					Usage:    "Input directory",
					Required: true,
				},
				nameFlag,
				&cli.StringFlag{
					Name:  MODE,
					Usage: "Render mode: singleband or grayscale",
					Value: string(render.ModeSingleband),
				},
				&cli.StringFlag{
					Name:  RAMP,
					Usage: "Color ramp name",
				},
				&cli.StringFlag{
					Name:  EXPRESSION,
					Usage: "Band algebra formula, for example (b1 - 100) / 10",
				},
				&cli.StringFlag{
					Name:  MIN,
					Usage: "Minimum of the color ramp domain",
				},
				&cli.StringFlag{
					Name:  MAX,
					Usage: "Maximum of the color ramp domain",
				},
			},
			Action: a.expression,
		},
		{
			Name:  "serve",
			Usage: "Serve the HTTP API",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    LISTENADDR,
					Aliases: []string{"l"},
					Usage:   "Listen address",
					Value:   cfg.ListenAddr,
					EnvVars: envVars(LISTENADDR),
				},
				&cli.DurationFlag{
					Name:    SHUTDOWNTIMEOUT,
					Usage:   "Time allowed for requests to complete on shutdown",
					Value:   cfg.ShutdownTimeout,
					EnvVars: envVars(SHUTDOWNTIMEOUT),
				},
				&cli.IntFlag{
					Name:    MAXDATASETS,
					Usage:   "Maximum number of datasets held in memory",
					Value:   cfg.MaxDatasets,
					EnvVars: envVars(MAXDATASETS),
				},
			},
			Action: a.serve,
		},
	}

	return cliApp, nil
}

// newService returns a Service configured by a.cfg and a function that
// releases its resources.
func (a *app) newService(ctx context.Context) (*terrain.Service, func(), error) {
	var source terrain.Source
	namespace := a.cfg.BaseURL
	if a.cfg.TileDir != "" {
		source = terrain.NewFSSource(os.DirFS(a.cfg.TileDir))
		namespace = a.cfg.TileDir
	} else {
		source = terrain.NewHTTPSource(a.cfg.HTTPSourceOptions()...)
	}

	closeFunc := func() {}
	if a.cfg.RedisAddr != "" {
		rdb, err := redistile.Dial(ctx, a.cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		closeFunc = func() {
			_ = rdb.Close()
		}
		source = redistile.NewSource(rdb, source,
			redistile.WithNamespace(namespace),
			redistile.WithTTL(a.cfg.RedisTTL),
		)
	}

	options := append(a.cfg.TileSetOptions(),
		terrain.WithSource(source),
		terrain.WithLogger(a.logger),
	)
	tileSet, err := terrain.NewTileSet(options...)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}
	return terrain.NewService(tileSet, terrain.WithServiceLogger(a.logger)), closeFunc, nil
}

func (a *app) tiles(c *cli.Context) error {
	bound, err := terrain.ParseBBox(c.String(BBOX))
	if err != nil {
		return err
	}
	if err := terrain.CheckBound(bound); err != nil {
		return err
	}
	for _, tileRequest := range terrain.TilesCovering(bound) {
		if _, err := fmt.Fprintln(a.stdout, tileRequest.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) elevation(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("syntax: terrain elevation latitude longitude")
	}
	lat, err := strconv.ParseFloat(c.Args().Get(0), 64)
	if err != nil {
		return err
	}
	lon, err := strconv.ParseFloat(c.Args().Get(1), 64)
	if err != nil {
		return err
	}

	service, closeFunc, err := a.newService(c.Context)
	if err != nil {
		return err
	}
	defer closeFunc()

	elevations, err := service.Elevation(c.Context, [][]float64{{lon, lat}})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, elevations[0])
	return err
}

func (a *app) fetch(c *cli.Context) error {
	bound, err := terrain.ParseBBox(c.String(BBOX))
	if err != nil {
		return err
	}

	service, closeFunc, err := a.newService(c.Context)
	if err != nil {
		return err
	}
	defer closeFunc()

	dataset, err := service.Dataset(c.Context, bound)
	if err != nil {
		return err
	}
	return a.writeDataset(c, dataset)
}

func (a *app) importGeoTIFF(c *cli.Context) error {
	path := c.String(GEOTIFF)
	geoTIFF, err := raster.OpenGeoTIFF(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		return err
	}
	defer geoTIFF.Close()

	dataset, err := geoTIFF.ReadDataset(c.Context)
	if err != nil {
		return err
	}
	bandRef := raster.ParseBandRef(c.String(BAND))
	band, err := dataset.Band(bandRef)
	if err != nil {
		return err
	}
	nodata, err := dataset.BandNodataValue(bandRef)
	if err != nil {
		return err
	}
	single, err := raster.NewDataset(dataset.Width(), dataset.Height(), dataset.Extent(), band.Data(),
		raster.WithNodata(nodata),
		raster.WithBandName(band.Name()),
	)
	if err != nil {
		return err
	}
	return a.writeDataset(c, single)
}

func (a *app) writeDataset(c *cli.Context, dataset *raster.Dataset) error {
	out := c.String(OUT)
	if err := os.MkdirAll(out, 0o777); err != nil {
		return err
	}
	if err := raster.WriteLegacy(raster.DirStorage(out), c.String(NAME), dataset); err != nil {
		return err
	}
	stats := dataset.GlobalStats()
	a.logger.Info("wrote dataset",
		"dir", out,
		"name", c.String(NAME),
		"width", dataset.Width(),
		"height", dataset.Height(),
		"min", stats.Min,
		"max", stats.Max,
	)
	return nil
}

func (a *app) expression(c *cli.Context) error {
	dataset, err := raster.ReadLegacy(raster.DirStorage(c.String(IN)), c.String(NAME))
	if err != nil {
		return err
	}
	layer := render.NewLayer(dataset)
	layer.Spec.Mode = render.Mode(c.String(MODE))
	if rampName := c.String(RAMP); rampName != "" {
		ramp, err := render.NamedRamp(rampName)
		if err != nil {
			return err
		}
		layer.Spec.ColorRamp = ramp
	}
	layer.Spec.SetCustomExpression(c.String(EXPRESSION))
	for _, bound := range []struct {
		flag  string
		value **float64
	}{
		{flag: MIN, value: &layer.Spec.Min},
		{flag: MAX, value: &layer.Spec.Max},
	} {
		if s := c.String(bound.flag); s != "" {
			value, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", bound.flag, err)
			}
			*bound.value = &value
		}
	}

	expr, nodata, err := layer.Expression(render.NewBuilder(render.WithLogger(a.logger)))
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Expression render.Expr      `json:"expression"`
		Nodata     raster.JSONFloat `json:"nodata"`
	}{
		Expression: expr,
		Nodata:     raster.JSONFloat(nodata),
	})
}

func (a *app) serve(c *cli.Context) error {
	a.cfg.ListenAddr = c.String(LISTENADDR)
	a.cfg.ShutdownTimeout = c.Duration(SHUTDOWNTIMEOUT)
	a.cfg.MaxDatasets = c.Int(MAXDATASETS)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	service, closeFunc, err := a.newService(c.Context)
	if err != nil {
		return err
	}
	defer closeFunc()

	s := server.New(service,
		server.WithLogger(a.logger),
		server.WithMaxDatasets(a.cfg.MaxDatasets),
		server.WithShutdownTimeout(a.cfg.ShutdownTimeout),
	)
	return s.Run(c.Context, a.cfg.ListenAddr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cliApp, err := newApp(stdout, stderr)
	if err != nil {
		return err
	}
	return cliApp.RunContext(ctx, args)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
