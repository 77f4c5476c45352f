// Command ignition warms, inspects and clears the persisted stat cache of a
// project.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/wolfeidau/stat-ignition/backend"
	"github.com/wolfeidau/stat-ignition/store"
	"github.com/wolfeidau/stat-ignition/store/boltstore"
	"github.com/wolfeidau/stat-ignition/telemetry"
)

// Globals are the flags shared by every command.
type Globals struct {
	Root         string `help:"Project root." default:"." type:"path"`
	Store        string `help:"Where the stat cache is kept (${enum})." enum:"bolt,file,memory" default:"bolt"`
	DB           string `name:"db" help:"Database file for the bolt store, directory for the file store." default:".ignition/stat.db"`
	Namespace    string `help:"Key the cache is saved under." default:"${namespace}"`
	LogLevel     string `help:"Log level (${enum})." enum:"debug,info,warn,error" default:"info"`
	LogFormat    string `help:"Log format (${enum})." enum:"text,json" default:"text"`
	OTLPEndpoint string `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics, e.g. localhost:4317."`
	PromTextfile string `name:"prom-textfile" help:"Write metrics to this node-exporter textfile on exit." type:"path"`

	ctx    context.Context
	logger *slog.Logger
}

// CLI is the command line of ignition.
type CLI struct {
	Globals

	Warm       WarmCmd       `cmd:"" help:"Stat every path under the project root and save the cache."`
	Show       ShowCmd       `cmd:"" help:"Print the saved stat cache."`
	Clear      ClearCmd      `cmd:"" help:"Remove the saved stat cache."`
	Preflights PreflightsCmd `cmd:"" help:"List the preflights installed by the project config."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ignition"),
		kong.Description("Persist filesystem metadata across process restarts."),
		kong.UsageOnError(),
		kong.DefaultEnvars("IGNITION"),
		kong.Vars{"namespace": store.DefaultNamespace},
	)

	if err := run(kctx, &cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, g *Globals) error {
	logger, err := newLogger(g.LogLevel, g.LogFormat)
	if err != nil {
		return err
	}
	g.logger = logger
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "ignition",
		OTLPEndpoint:     g.OTLPEndpoint,
		EnablePrometheus: g.PromTextfile != "",
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down metrics failed", "error", err)
		}
	}()

	g.ctx = ctx
	runErr := kctx.Run(g)

	if g.PromTextfile != "" {
		if err := telemetry.WriteTextfile(g.PromTextfile); err != nil {
			logger.Warn("writing metrics textfile failed", "path", g.PromTextfile, "error", err)
		}
	}
	return runErr
}

func newLogger(levelName, format string) (*slog.Logger, error) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", levelName)
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

// openedStore is the store selected by --store. bolt is set for the bolt
// store so commands can read its save records.
type openedStore struct {
	store.Store
	bolt  *boltstore.Store
	close func() error
}

func (g *Globals) openStore() (*openedStore, error) {
	switch g.Store {
	case "bolt":
		path := g.dbPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err := boltstore.Open(path,
			boltstore.WithLogger(g.logger),
			boltstore.WithNamespace(g.Namespace),
		)
		if err != nil {
			return nil, fmt.Errorf("opening bolt store: %w", err)
		}
		return &openedStore{Store: store.NewInstrumented(db, "bolt"), bolt: db, close: db.Close}, nil

	case "file":
		fsb, err := backend.NewFilesystem(g.dbPath())
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		codec, err := store.NewCodec()
		if err != nil {
			return nil, err
		}
		bs := store.NewBackendStore(
			backend.NewInstrumentedBackend(fsb, "filesystem"),
			codec,
			store.WithKey("stat-cache/"+g.Namespace),
		)
		return &openedStore{Store: store.NewInstrumented(bs, "file"), close: func() error {
			codec.Close()
			return nil
		}}, nil

	case "memory":
		mem := store.NewMemory(store.WithNamespace(g.Namespace))
		return &openedStore{Store: store.NewInstrumented(mem, "memory"), close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown store: %s", g.Store)
	}
}

// dbPath resolves --db against the project root.
func (g *Globals) dbPath() string {
	if filepath.IsAbs(g.DB) {
		return g.DB
	}
	return filepath.Join(g.Root, g.DB)
}
