// Package app wires the JSON language server together: configuration,
// logging, the connection on stdio, schema loading, schema file watching
// and the metrics endpoint. It owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/jsonls/internal/config"
	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/server"
	"github.com/dshills/jsonls/internal/watcher"
)

var (
	_ jsonrpc.Logger    = (*Logger)(nil)
	_ jsonschema.Logger = (*Logger)(nil)
)

// Application is the running language server process.
type Application struct {
	mu sync.Mutex

	config *config.Config
	logger *Logger

	conn    *jsonrpc.Connection
	schemas *jsonschema.Service
	server  *server.Server
	watcher *watcher.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	opts    Options
}

// Options configures the application.
type Options struct {
	// Config is the loaded configuration. Defaults are used when nil.
	Config *config.Config

	// Logger overrides the logger built from Config.LogLevel.
	Logger *Logger

	// In and Out carry the protocol. They default to stdin and stdout.
	In  io.Reader
	Out io.Writer

	// Version is reported to the client in the initialize result.
	Version string

	// HTTPClient fetches http and https schemas.
	HTTPClient *http.Client
}

// New creates an application. Nothing runs until Run is called.
func New(opts Options) (*Application, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, errors.Join(ErrInitialization, err)
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		cfg := DefaultLoggerConfig()
		cfg.Level = ParseLogLevel(opts.Config.LogLevel)
		opts.Logger = NewLogger(cfg)
	}

	app := &Application{
		config: opts.Config,
		logger: opts.Logger,
		opts:   opts,
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	if err := app.bootstrap(); err != nil {
		app.cancel()
		return nil, err
	}
	return app, nil
}

// bootstrap creates the components in dependency order.
func (app *Application) bootstrap() error {
	cfg := app.config

	// 1. Connection on the protocol streams
	connOpts, err := cfg.Transport.ConnectionOptions()
	if err != nil {
		return NewComponentError("jsonrpc", "configure", err)
	}
	connOpts = append(connOpts, jsonrpc.WithLogger(app.logger.WithComponent("jsonrpc")))
	app.conn = jsonrpc.NewStreamConnection(app.opts.In, app.opts.Out, connOpts...)

	// 2. Schema service
	app.schemas = jsonschema.NewService(
		NewFetcher(cfg.Schema, app.opts.HTTPClient, server.ClientFetcher(app.conn)),
		jsonschema.WithLogger(app.logger.WithComponent("schema")),
		jsonschema.WithLoadTimeout(cfg.Schema.LoadTimeout.Duration),
		jsonschema.WithBaseContext(app.ctx),
	)
	app.schemas.SetSchemaContributions(jsonschema.BuiltinContributions())

	// 3. Schema file watcher
	if cfg.Watch.Enabled {
		w, err := watcher.New(app.schemaFileChanged,
			watcher.WithDebounceDelay(cfg.Watch.Debounce.Duration),
			watcher.WithErrorHandler(func(err error) {
				app.logger.WithComponent("watcher").Warn("%v", err)
			}),
		)
		if err != nil {
			return NewComponentError("watcher", "create", err)
		}
		app.watcher = w
	}

	// 4. Language server
	opts := []server.Option{
		server.WithLogger(app.logger.WithComponent("server")),
		server.WithServerInfo("jsonls", app.opts.Version),
		server.WithDiagnosticsDelay(cfg.DiagnosticsDelay.Duration),
		server.WithResultLimit(cfg.ResultLimit),
		server.WithValidationSettings(cfg.Validation.Settings),
		server.WithFormattingDefaults(cfg.Format.Options()),
		server.WithSchemas(staticSchemas(cfg.Schemas)),
		server.WithTrace(jsonrpc.ParseTrace(cfg.Trace), nil),
	}
	if app.watcher != nil {
		opts = append(opts, server.WithSchemaFilesHandler(app.syncWatchedFiles))
	}
	app.server = server.New(app.conn, app.schemas, opts...)

	buildInfo.WithLabelValues(app.opts.Version).Set(1)
	return nil
}

// staticSchemas converts configured associations for the schema service.
func staticSchemas(assocs []config.SchemaAssociation) []jsonschema.SchemaConfiguration {
	configs := make([]jsonschema.SchemaConfiguration, 0, len(assocs))
	for _, a := range assocs {
		configs = append(configs, jsonschema.SchemaConfiguration{
			URI:       a.SchemaURI(),
			FileMatch: a.FileMatch,
		})
	}
	return configs
}

// Run serves the connection until the client exits, the connection closes
// or ctx is cancelled. It returns the process exit code.
func (app *Application) Run(ctx context.Context) (int, error) {
	if !app.running.CompareAndSwap(false, true) {
		return 1, ErrAlreadyRunning
	}
	defer app.Close()

	var metrics *MetricsServer
	if addr := app.config.Metrics.Address; addr != "" {
		var err error
		if metrics, err = NewMetricsServer(addr, nil); err != nil {
			return 1, err
		}
	}

	if err := app.server.Start(); err != nil {
		return 1, NewComponentError("server", "start", err)
	}
	app.logger.Info("Listening on stdio")

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		select {
		case <-app.server.Done():
			stop()
		case <-gctx.Done():
		}
		return nil
	})

	if metrics != nil {
		app.logger.Info("Serving metrics on %s", metrics.Addr())
		g.Go(func() error { return metrics.Serve(gctx) })
	}

	err := g.Wait()
	select {
	case <-app.server.Done():
		return app.server.ExitCode(), err
	default:
		// Cancelled from outside.
		return 1, err
	}
}

// Close stops every component. It is safe to call more than once.
func (app *Application) Close() {
	app.cancel()
	app.server.Close()
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.logger.Debug("Closing watcher: %v", err)
		}
	}
}

// syncWatchedFiles makes the watcher follow the local schema files in use.
func (app *Application) syncWatchedFiles(paths []string) {
	app.mu.Lock()
	defer app.mu.Unlock()

	log := app.logger.WithComponent("watcher")
	for _, p := range app.watcher.WatchedPaths() {
		if !slices.Contains(paths, p) {
			if err := app.watcher.Unwatch(p); err != nil && !errors.Is(err, watcher.ErrNotWatching) {
				log.Warn("Unwatch %s: %v", p, err)
			}
		}
	}
	for _, p := range paths {
		err := app.watcher.Watch(p)
		switch {
		case err == nil, errors.Is(err, watcher.ErrAlreadyWatching):
		case errors.Is(err, watcher.ErrPathNotExist):
			log.Debug("Not watching missing schema %s", p)
		default:
			log.Warn("Watch %s: %v", p, err)
		}
	}
	watchedSchemaFiles.Set(float64(len(app.watcher.WatchedPaths())))
}

// schemaFileChanged invalidates a schema file that changed on disk.
func (app *Application) schemaFileChanged(ev watcher.Event) {
	schemaFileChanges.Inc()
	app.logger.WithComponent("watcher").Debug("Schema %s: %s", ev.Op, ev.Path)
	app.server.SchemaChanged(string(protocol.FilePathToURI(ev.Path)))
}
