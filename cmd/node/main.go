package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/dmz-exchange/config"
	"github.com/marcelsud/dmz-exchange/exchange"
	"github.com/marcelsud/dmz-exchange/gateway"
	"github.com/marcelsud/dmz-exchange/internal/http/chi"
	"github.com/marcelsud/dmz-exchange/message"
	"github.com/marcelsud/dmz-exchange/metrics"
	"github.com/marcelsud/dmz-exchange/signature"
	"github.com/marcelsud/dmz-exchange/store"
	"github.com/marcelsud/dmz-exchange/whitelist"
	"github.com/rs/zerolog"
)

/* node - one side of the DMZ exchange
 * NODE_VARIANT=corporate speaks the strict schema and files messages by project,
 * NODE_VARIANT=lowside speaks the permissive schema and files them by date.
 * Imports flow one way: main wires config, storage and transport into the service.
 */

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	variant, err := cfg.Variant()
	if err != nil {
		return err
	}

	serviceName := "dmz-exchange-" + cfg.NodeVariant
	logger := httplog.NewLogger(serviceName, httplog.Options{
		JSON: true,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	wl, err := whitelist.New(cfg.WhitelistFilePath, logger)
	if err != nil {
		return fmt.Errorf("opening whitelist: %w", err)
	}
	defer wl.Close()

	if cfg.WhitelistSeedFile != "" {
		entries, err := whitelist.LoadSeed(cfg.WhitelistSeedFile)
		if err != nil {
			return fmt.Errorf("loading whitelist seed: %w", err)
		}
		if _, err := wl.Seed(entries); err != nil {
			return fmt.Errorf("seeding whitelist: %w", err)
		}
	}

	layout := store.ByProject
	if variant == message.Permissive {
		layout = store.ByDate
	}
	st, err := store.New(cfg.MasterDir, cfg.TmpDir, layout, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	client, err := gateway.New(gateway.Options{
		BaseURL:       cfg.GatewayURL,
		Timeout:       cfg.GatewayTimeout,
		SigningSecret: cfg.GatewaySigningSecret,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway client: %w", err)
	}
	defer client.Close()

	collector, closeCollector, err := newCollector(cfg, serviceName, logger)
	if err != nil {
		return err
	}
	defer closeCollector()

	exporter, err := metrics.NewOTelExporter(collector, serviceName)
	if err != nil {
		return fmt.Errorf("creating metrics exporter: %w", err)
	}
	defer exporter.Shutdown(context.Background())

	validator, err := message.NewValidator(variant)
	if err != nil {
		return err
	}
	svc := exchange.NewService(validator, wl, st, client, collector, logger)

	opts := chi.Options{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        exporter.Handler(),
	}
	if cfg.GatewaySigningSecret != "" {
		secret, err := signature.ParseSecret(cfg.GatewaySigningSecret)
		if err != nil {
			return fmt.Errorf("parsing gateway signing secret: %w", err)
		}
		opts.InboundSecret = &secret
	}

	r := chi.Handlers(ctx, svc, logger, opts)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, cfg.ShutdownTimeout, errShutdown)

	logger.Info().
		Str("port", cfg.Port).
		Str("schema", variant.String()).
		Str("layout", layout.String()).
		Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errShutdown
}

// newCollector uses Redis when REDIS_ADDR is set, in-process counters otherwise
func newCollector(cfg *config.Config, prefix string, logger zerolog.Logger) (metrics.Collector, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("REDIS_ADDR not set, keeping metrics in memory")
		return metrics.NewMemoryCollector(), func() {}, nil
	}

	client, err := metrics.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics collector: %w", err)
	}
	return metrics.NewRedisCollector(client, prefix), func() { _ = client.Close() }, nil
}

func shutdown(server *http.Server, ctxShutdown context.Context, timeout time.Duration, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}
