package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stereoloc/locator/internal/api"
	"github.com/stereoloc/locator/internal/config"
	"github.com/stereoloc/locator/internal/dispatcher"
	"github.com/stereoloc/locator/internal/geo"
	"github.com/stereoloc/locator/internal/influx"
	"github.com/stereoloc/locator/internal/logging"
	"github.com/stereoloc/locator/internal/monitor"
	"github.com/stereoloc/locator/internal/observer"
	intOtel "github.com/stereoloc/locator/internal/otel"
	"github.com/stereoloc/locator/internal/rendezvous"
	"github.com/stereoloc/locator/internal/server"
	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/internal/worker"
	"github.com/stereoloc/locator/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "locator"
)

const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

const uploadTimeout = 2 * time.Minute

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "serve":
			return runServe(args[1:], stderr)
		case "triangulate":
			return runTriangulate(args[1:], stdout, stderr)
		case "version":
			fmt.Fprintf(stdout, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
			return exitOK
		case "help", "-h", "--help":
			usage(stdout)
			return exitOK
		}
		if !strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(stderr, "unknown command %q\n", args[0])
			usage(stderr)
			return exitConfig
		}
	}
	return runServe(args, stderr)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage:
  %[1]s [serve] [flags]       run the location service
  %[1]s triangulate [flags]   locate one bearing pair offline
  %[1]s version               print version information
`, AppName)
}

// serveFlags registers the serve flags and binds them into viper. Unchanged
// flags never shadow the config file or environment.
func serveFlags(fs *pflag.FlagSet) (configDir *string, err error) {
	configDir = fs.String("config", ".", "directory containing "+config.FileName)
	fs.String("address", "", "listen address (server.address)")
	fs.String("key", "", "shared key for observers and requesters (server.key)")
	fs.String("static-dir", "", "directory with index.html and camera.html (server.staticDir)")
	fs.String("storage", "", "storage backend: memory, sqlite, postgres or websocket (storage.type)")
	fs.String("log-level", "", "log level (logLevel)")
	fs.Float64("baseline", 0, "distance between both observers (location.baseline)")
	fs.Duration("attempt-timeout", 0, "fail an attempt after this long, 0 waits forever (location.attemptTimeout)")

	bindings := map[string]string{
		"address":         "server.address",
		"key":             "server.key",
		"static-dir":      "server.staticDir",
		"storage":         "storage.type",
		"log-level":       "logLevel",
		"baseline":        "location.baseline",
		"attempt-timeout": "location.attemptTimeout",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return configDir, nil
}

func runServe(args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir, err := serveFlags(fs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	sessionStart := time.Now()
	loadErr := config.Load(*configDir)
	if loadErr != nil && !config.IsNotFound(loadErr) {
		fmt.Fprintln(stderr, loadErr)
		return exitConfig
	}

	serverCfg := config.GetServerConfig()
	if serverCfg.Key == "" {
		fmt.Fprintf(stderr, "no shared key configured: set %s or server.key\n", config.KeyEnv)
		return exitConfig
	}
	if err := config.GetLocationConfig().Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	app, err := newApp(sessionStart)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer app.closeLogs()

	if loadErr != nil {
		app.logger.Warn("Failed to load config, using defaults!", "error", loadErr)
	} else {
		app.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx, serverCfg); err != nil {
		app.logger.Error("Startup failed", "error", err)
		return exitError
	}

	err = app.serve(ctx)
	app.shutdown()
	if err != nil {
		app.logger.Error("Server stopped with error", "error", err)
		return exitError
	}
	return exitOK
}

// app holds the wired services of one serve session.
type app struct {
	slog    *logging.SlogManager
	logger  *slog.Logger
	zlog    zerolog.Logger
	logFile *os.File
	otel    *intOtel.Provider

	site        core.Site
	storageType string

	backend     storage.Backend
	influx      *influx.Manager
	dispatcher  *dispatcher.Dispatcher
	worker      atomic.Pointer[worker.Manager]
	monitor     *monitor.Service
	hub         *observer.Hub
	coordinator *rendezvous.Coordinator
	server      *server.Server
}

// newApp sets up logging and telemetry. Services are wired by start.
func newApp(sessionStart time.Time) (*app, error) {
	a := &app{
		slog:        logging.NewSlogManager(),
		storageType: config.GetStorageConfig().Type,
	}

	siteCfg := config.GetSiteConfig()
	a.site = core.Site{
		Name:          siteCfg.Name,
		Baseline:      config.GetLocationConfig().Baseline,
		Georeferenced: siteCfg.Enabled,
		Longitude:     siteCfg.Longitude,
		Latitude:      siteCfg.Latitude,
		Elevation:     siteCfg.Elevation,
		HeadingDeg:    siteCfg.HeadingDeg,
	}

	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logPath := logging.LogFilePath(logsDir, AppName, sessionStart)
	// keep the previous session's file around
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to create/open log file: %w", err)
	}
	a.logFile = f

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	var otelErr error
	if otelCfg.Enabled {
		a.otel, otelErr = intOtel.New(intOtel.Config{
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			Site:           a.site.Name,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      f,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
	}
	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}

	opts := []logging.SetupOption{logging.WithContext(a.logContext)}
	var gelfErr error
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, AppName)
		if err != nil {
			gelfErr = err
		} else {
			opts = append(opts, logging.WithGraylog(w))
		}
	}

	a.slog.Setup(io.MultiWriter(os.Stdout, f), level, otelLogProvider, opts...)
	a.logger = a.slog.Logger()
	a.zlog = logging.NewZerolog(nil, level)

	a.logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate, "logFile", logPath)
	if otelErr != nil {
		a.logger.Error("Failed to initialize OTel provider", "error", otelErr)
	} else if a.otel != nil {
		a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
	}
	if gelfErr != nil {
		a.logger.Error("Failed to set up Graylog sink", "error", gelfErr)
	}
	return a, nil
}

// logContext is attached to every log record. It only reads fields that are
// safe to touch while other components hold their locks.
func (a *app) logContext() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("site", a.site.Name),
		slog.String("storage", a.storageType),
	}
	if w := a.worker.Load(); w != nil {
		attrs = append(attrs, slog.Int64("fixes", w.Recorded()))
	}
	return attrs
}

// start wires storage, persistence, the coordinator and the HTTP server.
func (a *app) start(ctx context.Context, serverCfg config.ServerConfig) error {
	storageCfg := config.GetStorageConfig()
	backend, err := newStorageBackend(storageCfg, a.site, a.logger, a.zlog)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.backend = backend
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)

	var fixWriter worker.FixWriter
	var perfWriter monitor.PerformanceWriter
	a.influx = influx.NewManager(config.GetInfluxConfig(), a.site.Name, a.zlog,
		filepath.Join(viper.GetString("logsDir"), "influx_backup.lp.gz"))
	switch err := a.influx.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		a.influx = nil
	case err != nil:
		a.logger.Warn("InfluxDB unavailable, fixes are not exported", "error", err)
		_ = a.influx.Close()
		a.influx = nil
	default:
		fixWriter, perfWriter = a.influx, a.influx
	}

	a.dispatcher, err = dispatcher.New(logging.NewEventLogger(a.zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var site *geo.Site
	if a.site.Georeferenced {
		site = &geo.Site{
			Longitude:  a.site.Longitude,
			Latitude:   a.site.Latitude,
			Elevation:  a.site.Elevation,
			HeadingRad: geo.DegToRad(a.site.HeadingDeg),
		}
	}
	wm := worker.NewManager(worker.Dependencies{
		Site:   site,
		Influx: fixWriter,
		Logger: a.logger,
	}, backend)
	wm.RegisterHandlers(a.dispatcher)
	a.worker.Store(wm)

	a.hub = observer.NewHub(a.logger)

	loc := config.GetLocationConfig()
	a.coordinator, err = rendezvous.New(rendezvous.Config{
		Baseline:          loc.Baseline,
		Timeout:           loc.AttemptTimeout,
		VerticalTolerance: loc.VerticalToleranceRad,
	}, a.hub,
		rendezvous.WithLogger(a.logger),
		rendezvous.WithResultHook(a.recordResult),
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	monDeps := monitor.Dependencies{
		Worker:     wm,
		Observers:  a.hub,
		Influx:     perfWriter,
		StatusFile: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Logger:     a.logger,
	}
	if rec, ok := backend.(storage.PerformanceRecorder); ok {
		monDeps.Recorder = rec
	}
	a.monitor = monitor.NewService(monDeps)
	if err := a.monitor.Start(); err != nil {
		a.logger.Warn("Failed to start status monitor", "error", err)
	}

	deps := server.Dependencies{
		Coordinator: a.coordinator,
		Hub:         a.hub,
		Status:      a.monitor,
		Logger:      a.logger,
	}
	if r, ok := backend.(storage.Reader); ok {
		deps.History = r
	}
	a.server = server.New(server.Config{
		Address:        serverCfg.Address,
		Key:            serverCfg.Key,
		StaticDir:      serverCfg.StaticDir,
		AllowedOrigins: serverCfg.AllowedOrigins,
	}, deps)

	a.logger.Info("Services started",
		"baseline", loc.Baseline,
		"attemptTimeout", loc.AttemptTimeout,
		"georeferenced", a.site.Georeferenced)
	return nil
}

// recordResult hands a settled attempt to the persistence pipeline.
func (a *app) recordResult(r *rendezvous.Result) {
	if _, err := a.dispatcher.Dispatch(dispatcher.Event{
		Command:   worker.CommandFix,
		Payload:   r,
		Timestamp: time.Now(),
	}); err != nil {
		a.logger.Warn("Fix not queued for storage", "attemptID", r.AttemptID, "error", err)
	}
}

func (a *app) serve(ctx context.Context) error {
	return a.server.ListenAndServe(ctx)
}

// shutdown stops every service in dependency order and uploads the export
// when the backend produced one.
func (a *app) shutdown() {
	a.logger.Info("Shutting down...")

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	// drains queued fixes into the backend
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
		if up, ok := a.backend.(storage.Uploadable); ok {
			ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
			uploadExport(ctx, up, config.GetAPIConfig(), a.logger)
			cancel()
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
}

func (a *app) closeLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.slog.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "log flush failed: %v\n", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown failed: %v\n", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// uploadExport sends the backend's export to the web frontend. Nothing is
// sent without an API key, an export file or a healthy frontend.
func uploadExport(ctx context.Context, up storage.Uploadable, cfg config.APIConfig, logger *slog.Logger) bool {
	path := up.GetExportedFilePath()
	if path == "" {
		logger.Debug("No export to upload")
		return false
	}
	if cfg.ServerURL == "" || cfg.APIKey == "" {
		logger.Info("Upload skipped, no API configured", "path", path)
		return false
	}

	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn("Web frontend unreachable, export kept on disk", "path", path, "error", err)
		return false
	}

	meta := up.GetExportMetadata()
	if err := client.Upload(ctx, path, meta); err != nil {
		logger.Error("Failed to upload export", "path", path, "error", err)
		return false
	}
	logger.Info("Uploaded export", "path", path, "fixes", meta.FixCount)
	return true
}
