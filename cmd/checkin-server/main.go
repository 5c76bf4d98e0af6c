package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetgate/fleetgate-server/internal/api"
	"github.com/fleetgate/fleetgate-server/internal/checkin"
	"github.com/fleetgate/fleetgate-server/internal/config"
	"github.com/fleetgate/fleetgate-server/internal/events"
	"github.com/fleetgate/fleetgate-server/internal/pki"
	"github.com/fleetgate/fleetgate-server/internal/storage"
	"github.com/fleetgate/fleetgate-server/internal/vpn"
)

func main() {
	var configPath = flag.String("config", "config/checkin-server.yml", "path to configuration file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Store: PostgreSQL, or the in-memory store when no DSN is configured
	var store storage.Store
	if cfg.Database.DSN != "" {
		pg, err := storage.NewPostgresStore(cfg.Database.DSN, storage.PostgresOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		store = pg
	} else {
		log.Warn().Msg("No database DSN configured, using in-memory store")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// NATS is optional; the publisher is nil-safe
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
	} else {
		log.Warn().Msg("No NATS URL configured, fleet events are stored only")
	}

	publisher := events.NewPublisher(nc, store)

	signer, err := pki.NewSelfSigner(cfg.Server.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize certificate signer")
	}
	certs := pki.NewCertManager(store, signer)
	secrets := pki.NewDeviceSecretManager()

	vpnManager := vpn.NewManager(store, cfg.VPN)
	ledger := checkin.NewLedger(publisher)
	gate := checkin.NewFreshnessGate(certs, secrets, publisher, cfg.Checkin.RenewTimeout)

	protocols := api.ProtocolHandlers{
		EdgeGateway: checkin.NewPipeline(store, ledger, gate, vpnManager, publisher, checkin.EdgeGatewayStrategy{}),
		VpnClient:   checkin.NewPipeline(store, ledger, gate, vpnManager, publisher, checkin.VpnClientStrategy{}),
		Router:      checkin.NewPipeline(store, ledger, gate, vpnManager, publisher, checkin.RouterStrategy{}),
	}

	server := api.NewRESTServer(cfg, store, protocols)

	go func() {
		if err := server.ListenAndServe(cfg.ListenAddr()); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().
		Str("name", cfg.Server.Name).
		Str("addr", cfg.ListenAddr()).
		Msg("Check-in server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Check-in server stopped")
}
