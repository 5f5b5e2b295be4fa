package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ap-procurement/internal/client"
	"github.com/pesio-ai/be-ap-procurement/internal/common/auth"
	"github.com/pesio-ai/be-ap-procurement/internal/common/config"
	"github.com/pesio-ai/be-ap-procurement/internal/common/database"
	"github.com/pesio-ai/be-ap-procurement/internal/common/httpclient"
	"github.com/pesio-ai/be-ap-procurement/internal/common/middleware"
	"github.com/pesio-ai/be-ap-procurement/internal/handler"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

const devSecret = "development-only-secret"

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	return cmd
}

func runServe(migrate bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Procurement Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.New(ctx, databaseConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if migrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("Schema applied")
	}

	store := repository.NewPostgresStore(db)

	// Notifications
	var publisher client.Publisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
		} else {
			defer nc.Drain()
			publisher = nc
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	notifier := client.NewNotificationPublisher(publisher, store, cfg.NATS.SubjectPrefix, log.Component("notifications").Logger)

	opts := []service.Option{service.WithNotifier(notifier)}
	if cfg.Rendering.URL != "" {
		rendering := client.NewRenderingClient(httpclient.NewClientWithTimeout(cfg.Rendering.URL, cfg.Rendering.Timeout))
		opts = append(opts, service.WithRenderer(rendering))
		log.Info().Str("url", cfg.Rendering.URL).Msg("Rendering service configured")
	}

	// Services
	policy := service.LedgerUncapped
	if cfg.Ledger.CapCommitments {
		policy = service.LedgerCapped
	}
	ledger := service.NewCreditLedger(policy)
	log.Info().Str("policy", string(ledger.Policy())).Msg("Credit ledger configured")
	documents := service.NewDocumentService(store, ledger, log, opts...)
	thresholds := service.NewThresholdService(store, log)
	trails := service.NewTrailService(store)
	directory := service.NewDirectoryService(store, log)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Warn().Msg("auth.jwt_secret not set, using the development secret")
		secret = devSecret
	}
	validator := auth.NewValidator(secret, cfg.Auth.Issuer)

	// HTTP
	mux := http.NewServeMux()
	handler.NewHTTPHandler(documents, thresholds, trails, directory, log).Register(mux)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx)

	var h http.Handler = mux
	h = auth.Middleware(validator)(h)
	h = limiter.Middleware(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS(cfg.Server.AllowedOrigins)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor(validator)))
	handler.RegisterDocumentServiceServer(grpcServer, handler.NewGRPCHandler(documents, log.Logger))
	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("create gRPC listener: %w", err)
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return nil
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	}
}
