// bidder serves OpenRTB bid requests and the bidder filter API.
//
// Configuration is read from the file named by --config or the
// BIDSTREAM_CONFIG environment variable. Without either, defaults are used:
// an in-memory bus and a SQLite database in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	codec "github.com/oy3o/bidstream"
	"github.com/oy3o/bidstream/bidder"
	"github.com/oy3o/bidstream/budget"
	"github.com/oy3o/bidstream/bus"
	"github.com/oy3o/bidstream/bus/natstransport"
	"github.com/oy3o/bidstream/config"
	"github.com/oy3o/bidstream/entity"
	"github.com/oy3o/bidstream/observability"
	"github.com/oy3o/bidstream/storage"
)

// Topics outside the bidding event stream.
const (
	topicBudget = "budget"
	topicLedger = "ledger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("bidder", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvConfig+")")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	format, err := codec.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	compression, err := storage.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return err
	}

	reg := codec.NewRegistry()
	entity.Register(reg)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		PoolSize:    cfg.Storage.PoolSize,
		Format:      format,
		Compression: compression,
	}, reg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	transport, closeTransport, err := openTransport(cfg.Bus, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	client := bus.NewClient(transport, reg, format, logger)
	defer client.Close()

	ledger := storage.NewLedger(store)
	recorder := budget.RecorderFunc(func(ctx context.Context, entry *entity.LedgerEntry) error {
		if err := ledger.Record(ctx, entry); err != nil {
			return err
		}
		return bus.Publish(ctx, client, topicLedger, entry.ID, entry)
	})
	budgets := budget.NewManager(ledger, recorder, logger)
	if err := bus.Subscribe(client, topicBudget, bus.Wildcard, budgets.HandleBudgetEvent); err != nil {
		return fmt.Errorf("subscribing to budget events: %w", err)
	}

	campaigns := storage.NewRepository[entity.Campaign](store, "campaigns")
	filters := storage.NewRepository[entity.BidderFilter](store, "bidder_filters")
	manager := bidder.NewManager(campaigns, filters, logger)
	if err := manager.Load(ctx); err != nil {
		return err
	}
	if err := manager.Subscribe(client); err != nil {
		return fmt.Errorf("subscribing to entity events: %w", err)
	}

	mux := http.NewServeMux()
	bidder.Routes(mux,
		bidder.NewBidHandler(reg, manager, budgets, cfg.Bidder.MaxBodyBytes, logger),
		bidder.NewFilterHandler(reg, filters, client, cfg.Bidder.MaxBodyBytes, logger),
	)
	server := &http.Server{Addr: cfg.Listen, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen), zap.Stringer("format", format))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Bidder.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func openTransport(cfg config.BusConfig, logger *zap.Logger) (bus.Transport, func(), error) {
	switch cfg.Kind {
	case config.BusNATS:
		conn, err := nats.Connect(cfg.URL, nats.Name("bidstream-bidder"))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.URL, err)
		}
		logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
		opts := []natstransport.Option{natstransport.WithPrefix(cfg.Prefix)}
		if cfg.QueueGroup != "" {
			opts = append(opts, natstransport.WithQueueGroup(cfg.QueueGroup))
		}
		t := natstransport.New(conn, opts...)
		return t, func() {
			if err := t.Close(); err != nil {
				logger.Warn("nats transport close", zap.Error(err))
			}
			conn.Close()
		}, nil
	default:
		t := bus.NewMemoryTransport()
		return t, func() { _ = t.Close() }, nil
	}
}
