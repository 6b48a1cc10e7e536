package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TradeStacksInc/UNIvote2/api"
	"github.com/TradeStacksInc/UNIvote2/encryption"
	"github.com/TradeStacksInc/UNIvote2/logger"
	"github.com/TradeStacksInc/UNIvote2/models"
	"github.com/TradeStacksInc/UNIvote2/notification"
	"github.com/TradeStacksInc/UNIvote2/service"
	"github.com/TradeStacksInc/UNIvote2/storage"
	"github.com/TradeStacksInc/UNIvote2/wallet"
)

type serveConfig struct {
	Addr          string
	StoreDriver   string // "postgres" or "memory"
	DatabaseURL   string
	RedisAddr     string
	MailGateway   string
	MailAPIKey    string
	WalletAddress string // mock provider address for local runs
	LogLevel      string
	LogFormat     string
	QueueSize     int
	SeedDemo      bool
}

var serveCfg serveConfig

func init() {
	serveCmd.Flags().StringVar(&serveCfg.Addr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveCfg.StoreDriver, "store", "postgres", "store driver: postgres or memory")
	serveCmd.Flags().StringVar(&serveCfg.DatabaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres connection string")
	serveCmd.Flags().StringVar(&serveCfg.RedisAddr, "redis-addr", envOr("REDIS_ADDR", ""), "Redis address for the tally cache (empty disables caching)")
	serveCmd.Flags().StringVar(&serveCfg.MailGateway, "mail-gateway", envOr("MAIL_GATEWAY_URL", ""), "mail gateway base URL")
	serveCmd.Flags().StringVar(&serveCfg.MailAPIKey, "mail-api-key", envOr("MAIL_GATEWAY_API_KEY", ""), "mail gateway API key")
	serveCmd.Flags().StringVar(&serveCfg.WalletAddress, "mock-wallet", "", "serve a mock wallet provider returning this address")
	serveCmd.Flags().StringVar(&serveCfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveCfg.LogFormat, "log-format", "json", "log format: json or console")
	serveCmd.Flags().IntVar(&serveCfg.QueueSize, "notify-queue", 256, "notification queue size")
	serveCmd.Flags().BoolVar(&serveCfg.SeedDemo, "seed-demo", false, "seed a demo election (memory store only)")
	rootCmd.AddCommand(serveCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voting API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), serveCfg)
	},
}

func serve(parent context.Context, cfg serveConfig) error {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	switch cfg.StoreDriver {
	case "memory":
		memStore := storage.NewMemoryStore()
		if cfg.SeedDemo {
			if err := seedDemo(ctx, memStore); err != nil {
				return err
			}
			log.Info("seeded demo election")
		}
		store = memStore
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--database-url (or DATABASE_URL) is required for the postgres store")
		}
		pgStore, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var sender notification.Sender
	if cfg.MailGateway != "" {
		sender = notification.NewGatewaySender(cfg.MailGateway, cfg.MailAPIKey)
	} else {
		log.Warn("no mail gateway configured, notifications are recorded in memory only")
		sender = notification.NewFakeSender()
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer cache.Close()
	}

	var provider wallet.Provider = wallet.NewMockProvider(cfg.WalletAddress)

	crypto := encryption.NewCryptoService()
	metrics := service.NewMetricsCollector()
	resolver := service.NewElectionStatusResolver()
	binder := wallet.NewBinder(store, crypto, log)

	dispatcher := service.NewDispatcher(sender, cfg.QueueSize, log)
	dispatcher.Start()
	defer dispatcher.Stop()

	otp := service.NewOTPVerifier()
	workflow := service.NewRegistrationWorkflow(store, otp, sender, dispatcher, binder, provider, crypto, metrics, log)
	results := service.NewResultsAggregator(store, cache, metrics, log)
	caster := service.NewVoteCaster(store, resolver, binder, provider, crypto, dispatcher, results, metrics, log)

	server := api.NewServer(workflow, caster, results, resolver, store, metrics, log)
	return server.ListenAndServe(ctx, cfg.Addr)
}

// seedDemo creates one active election with two candidates for local
// exploration with the memory store.
func seedDemo(ctx context.Context, store storage.Store) error {
	now := time.Now()
	election := &models.Election{
		ID:          uuid.New().String(),
		Title:       "Student Union President",
		Description: "Annual student union presidential election",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(24 * time.Hour),
	}
	if err := store.CreateElection(ctx, election); err != nil {
		return err
	}
	for _, name := range []string{"Ada Obi", "Ben Eze"} {
		candidate := &models.Candidate{
			ID:         uuid.New().String(),
			ElectionID: election.ID,
			Name:       name,
			Department: "General Studies",
		}
		if err := store.CreateCandidate(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}
