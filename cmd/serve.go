package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/telegram-relay/internal/config"
	"github.com/Vovarama1992/telegram-relay/internal/database"
	"github.com/Vovarama1992/telegram-relay/internal/dedup"
	"github.com/Vovarama1992/telegram-relay/internal/messaging"
	"github.com/Vovarama1992/telegram-relay/internal/metrics"
	"github.com/Vovarama1992/telegram-relay/internal/ratelimit"
	"github.com/Vovarama1992/telegram-relay/internal/relay"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	for _, warning := range configWarnings(cfg) {
		log.Printf("[config] CRITICAL %s", warning)
	}

	// --- Log ---
	repo, closeLog, err := openLog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// --- Telegram ---
	var sink relay.Sink
	if cfg.BotToken != "" {
		tg, err := relay.NewTelegramOutbound(telegramConfig(cfg))
		if err != nil {
			log.Printf("[config] CRITICAL telegram sink disabled: %v", err)
		} else {
			sink = tg
		}
	}

	var svcOpts []relay.ServiceOption
	handlerOpts := []relay.HandlerOption{relay.WithWebhookSecret(cfg.WebhookSecret)}

	// --- Redis ---
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("[redis] ping %s failed: %v (dedup and rate limit fail open)", cfg.RedisAddr, err)
		}
		cancel()

		svcOpts = append(svcOpts, relay.WithDeduper(dedup.NewStore(rdb, cfg.DedupTTL)))
		handlerOpts = append(handlerOpts, relay.WithLimiter(
			ratelimit.NewLimiter(rdb, ratelimit.OutboundRule(cfg.OutboundLimit, cfg.OutboundWindow)),
		))
	}

	// --- NATS ---
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Printf("[nats] change feed disabled: %v", err)
		} else {
			defer nc.Close()
			svcOpts = append(svcOpts, relay.WithPublisher(nc))
		}
	}

	// --- Relay module wiring ---
	relayService := relay.NewService(repo, sink, relay.Settings{
		Destination:    cfg.ChatID,
		LegacyFallback: cfg.LegacyFallback,
	}, svcOpts...)
	relayHandler := relay.NewHandler(relayService, handlerOpts...)

	r := newRouter(cfg, relayHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, h *relay.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", relay.SecretHeader},
	}))

	relay.RegisterRoutes(r, h)

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

// configWarnings lists startup problems that disable part of the relay
// without stopping it.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if missing := cfg.Missing(); len(missing) > 0 {
		warnings = append(warnings, "missing "+strings.Join(missing, ", "))
	}
	if !cfg.OutboundReady() {
		warnings = append(warnings, "outbound disabled: website messages get 500 until TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are set")
	}
	return warnings
}

// openLog falls back to the offline log when no database is configured so the
// outbound flow keeps delivering.
func openLog(ctx context.Context, cfg *config.Config) (relay.Log, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Println("[db] WARN DATABASE_URL not set, message log offline; replies cannot be routed")
		return relay.NewOfflineRepo(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, database.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return relay.NewRepo(db), func() { db.Close() }, nil
}

func telegramConfig(cfg *config.Config) relay.TelegramConfig {
	return relay.TelegramConfig{
		Token:     cfg.BotToken,
		APIServer: cfg.APIServer,
		Timeout:   cfg.SendTimeout,
	}
}
