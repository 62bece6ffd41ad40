package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/marcogenualdo/session-coordinator/internal/auth/oidc"
	"github.com/marcogenualdo/session-coordinator/internal/config"
	"github.com/marcogenualdo/session-coordinator/internal/gateway"
	"github.com/marcogenualdo/session-coordinator/internal/identifier"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
	"github.com/marcogenualdo/session-coordinator/internal/pending"
	"github.com/marcogenualdo/session-coordinator/internal/profile"
	"github.com/marcogenualdo/session-coordinator/internal/server"
	"github.com/marcogenualdo/session-coordinator/internal/session"
	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

const (
	version           = "1.0.0"
	defaultConfigPath = "/etc/session-coordinator/config.yaml"
	notificationLimit = 20
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	configPathShort := flag.String("c", defaultConfigPath, "path to configuration file (short)")
	showVersion := flag.Bool("version", false, "show version and exit")
	showHelp := flag.Bool("help", false, "show help and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Session Coordinator v%s\n", version)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Println("Session Coordinator - session and identity coordination for the web client")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfgPath := *configPath
	if *configPathShort != defaultConfigPath {
		cfgPath = *configPathShort
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting session-coordinator", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	logger.Info("storage initialized", "type", cfg.Storage.Type, "namespace", cfg.Storage.Namespace)

	provider, err := oidc.NewProvider(ctx, cfg.Provider, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create identity provider: %w", err)
	}
	go provider.Run(ctx)
	logger.Info("identity provider initialized", "issuer", cfg.Provider.Issuer)

	pool, err := profile.NewPool(ctx, cfg.Profiles)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to connect to profiles database: %w", err)
	}
	defer pool.Close()

	resolver := identifier.NewResolver(profile.NewRepository(pool, cfg.Profiles.QueryTimeout, logger), logger)

	baseURL := strings.TrimRight(cfg.Server.BaseURL, "/")
	credentials := gateway.New(provider, resolver, gateway.Redirects{
		SignUp:        baseURL + cfg.Navigation.LandingRoute,
		ResetPassword: baseURL + cfg.Navigation.ResetPasswordRoute,
	}, logger)

	gate := pending.NewGate(store)
	tracker := navigation.NewTracker(cfg.Navigation.LandingRoute, cfg.Navigation.HistorySize, logger)
	feed := notify.NewFeed(notificationLimit, logger)

	sessions := session.New(session.Options{
		Provider: provider,
		Gateway:  credentials,
		Pending:  gate,
		Policy: navigation.Policy{
			EntryPaths:         cfg.Navigation.EntryPaths,
			AuthenticatedRoute: cfg.Navigation.AuthenticatedRoute,
		},
		Location:         tracker,
		Navigator:        tracker,
		Notifier:         feed,
		LandingRoute:     cfg.Navigation.LandingRoute,
		HydrationTimeout: cfg.Provider.Timeout,
		Logger:           logger,
	})
	sessions.Subscribe(session.PersistUser(store, logger))
	sessions.Start(ctx)

	srv := server.New(*cfg, server.Deps{
		Sessions: sessions,
		Storage:  store,
		Provider: provider,
		Pending:  gate,
		Tracker:  tracker,
		Feed:     feed,
	}, logger)

	return srv.Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
