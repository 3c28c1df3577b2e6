package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guild-dashboard/internal/api"
	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/websocket"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/config"
	"guild-dashboard/internal/discord"
	"guild-dashboard/internal/logger"
	"guild-dashboard/internal/notify"
	"guild-dashboard/internal/retention"
	"guild-dashboard/internal/session"
	"guild-dashboard/internal/store"
	"guild-dashboard/internal/store/mongostore"
	"guild-dashboard/internal/store/sqlstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

const (
	shutdownTimeout = 10 * time.Second
	banCacheTTL     = time.Minute
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password for the admin credentials and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("dashboard stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.Storage.Mongo, lg.Named("mongo"))
	default:
		return sqlstore.Open(cfg.Storage.SQLite.Path, lg.Named("sqlite"))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	lg.Info("guild dashboard starting",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("storage", cfg.Storage.Driver),
	)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := cfg.ResolveJWTSecret(lg); err != nil {
		return err
	}
	if cfg.Discord.ClientID == "" || cfg.Discord.ClientSecret == "" {
		lg.Warn("discord client credentials are not configured; logins will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			lg.Warn("close store", zap.Error(err))
		}
	}()

	hub := websocket.NewHub(lg.Named("hub"))
	auditWriter := audit.NewWriter(st, lg,
		audit.WithQueue(cfg.Audit.QueueSize),
		audit.WithPublisher(hub),
	)
	defer auditWriter.Close()

	signer := auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	directory := session.NewDirectory(st, cfg.Auth.DirectoryTTL)
	sessions := session.NewService(st, discord.NewClient(cfg.Discord), signer, directory,
		session.WithRefreshTTL(cfg.Auth.RefreshTTL),
		session.WithProviderTimeout(cfg.Discord.Timeout),
	)

	telegram := notify.NewTelegram(st, st, cfg.Server.FrontendURL, lg)
	if err := telegram.Reload(ctx); err != nil {
		// a bad token must not keep the dashboard down; it can be fixed from the admin panel
		lg.Error("telegram notifier not started", zap.Error(err))
	}
	defer telegram.Close()

	if cfg.Storage.Driver == config.DriverSQLite {
		// mongo expires old logs with a TTL index
		go retention.New(st, cfg.Retention.Interval, cfg.Retention.MaxAge, lg).Run(ctx)
	}

	var static fs.FS
	if cfg.Server.StaticDir != "" {
		static = os.DirFS(cfg.Server.StaticDir)
	}

	rl := cfg.RateLimit
	router, err := api.NewRouter(api.Deps{
		Store:     st,
		Signer:    signer,
		Directory: directory,
		Sessions:  sessions,
		Audit:     auditWriter,
		Hub:       hub,
		IPFilter:  middleware.NewIPFilter(st, banCacheTTL, lg),
		Limits: api.Limits{
			General: middleware.NewRateLimiter(rl.General.Requests, rl.General.Window,
				"Too many requests from this IP, please try again later.", middleware.SkipPaths("/health")),
			Auth: middleware.NewRateLimiter(rl.Auth.Requests, rl.Auth.Window,
				"Too many authentication attempts, please try again later.", middleware.SkipSuccessful()),
			Create: middleware.NewRateLimiter(rl.Create.Requests, rl.Create.Window,
				"Too many create requests, please slow down."),
		},
		Admins: middleware.Admins{
			MasterKey:  cfg.Admin.APIKey,
			DiscordIDs: cfg.Admin.DiscordIDs,
		},
		Credentials:    cfg.Admin.Credentials,
		BotKey:         cfg.Bot.APIKey,
		Notifier:       telegram,
		Telegram:       telegram,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Version:        version,
		Environment:    cfg.Server.Environment,
		Static:         static,
		Log:            lg,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
