package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/freeboardgames/fbg-lobby/internal/api"
	"github.com/freeboardgames/fbg-lobby/internal/auth"
	"github.com/freeboardgames/fbg-lobby/internal/bgio"
	"github.com/freeboardgames/fbg-lobby/internal/config"
	"github.com/freeboardgames/fbg-lobby/internal/database"
	"github.com/freeboardgames/fbg-lobby/internal/games"
	"github.com/freeboardgames/fbg-lobby/internal/graph"
	"github.com/freeboardgames/fbg-lobby/internal/lobby"
	"github.com/freeboardgames/fbg-lobby/internal/pubsub"
	"github.com/freeboardgames/fbg-lobby/internal/server"
	"github.com/freeboardgames/fbg-lobby/internal/stats"
	"github.com/redis/go-redis/v9"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configPath     string
	opts           config.Options
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&configPath, "config", "", "optional YAML config file, explicit flags take precedence")
	flag.StringVar(&opts.Addr, "addr", "localhost:3001", "server address")
	flag.StringVar(&opts.DSN, "dsn", "", "postgres connection string, in-memory store when empty")
	flag.StringVar(&opts.SigningKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.DurationVar(&opts.TokenTTL, "token-ttl", 30*24*time.Hour, "lifetime of issued tokens, 0 never expires")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&opts.RedisAddr, "redis-addr", "", "redis address for pub/sub, in-process when empty")
	flag.StringVar(&opts.RedisPassword, "redis-password", "", "redis password")
	flag.IntVar(&opts.RedisDB, "redis-db", 0, "redis database")
	flag.StringVar(&opts.BgioServerUrl, "bgio-server-url", "http://localhost:8001", "game server url handed to players")
	flag.StringVar(&opts.BgioLobbyUrl, "bgio-lobby-url", "", "game server lobby api url, credentials are minted locally when empty")
	flag.BoolVar(&opts.Migrate, "migrate", false, "apply database migrations on start")
	flag.Parse()

	opts.AllowedOrigins = allowedOrigins

	logger := log.New(os.Stderr, "[fbg-lobby] ", log.LstdFlags)

	if configPath != "" {
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		file, err := config.LoadFile(configPath)
		if err != nil {
			logger.Fatal("config:", err)
		}
		if err := file.Apply(&opts, explicit); err != nil {
			logger.Fatal("config:", err)
		}
	}

	cfg, err := config.NewConfig(opts)
	if err != nil {
		logger.Fatal("config:", err)
	}

	store := openStore(logger, cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	broadcaster := openBroadcaster(logger, cfg)
	defer broadcaster.Close()

	var transport bgio.Transport = bgio.LocalMinter{}
	if cfg.BgioLobbyUrl != "" {
		transport = bgio.NewLobbyClient(cfg.BgioLobbyUrl, nil)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := lobby.NewService(logger, store, broadcaster, games.Default(), transport,
		lobby.WithServerUrl(cfg.BgioServerUrl),
		lobby.WithStats(statsUpdater),
	)
	tokens := auth.NewTokenManager(cfg.SigningKey, cfg.TokenTTL)
	schema := graph.NewSchema(logger, svc, tokens)

	subs := server.NewSubscriptionServer(logger, schema, tokens, statsUpdater, cfg.AllowedOrigins)
	srv := api.NewFbgApp(mux, logger, schema, subs, tokens, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go subs.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down subscription server...")
	if err := subs.Shutdown(shutDownCtx); err != nil {
		logger.Println("subscription server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

func openStore(logger *log.Logger, cfg *config.Config) database.Store {
	if cfg.DatabaseDSN == "" {
		logger.Println("using in-memory store")
		return database.NewMemoryStore()
	}

	if cfg.Migrate {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatal("db migrate:", err)
		}
		logger.Println("database migrations applied")
	}

	store, err := database.NewPgStore(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	return store
}

func openBroadcaster(logger *log.Logger, cfg *config.Config) pubsub.Broadcaster {
	if cfg.RedisAddr == "" {
		logger.Println("using in-process pub/sub")
		return pubsub.NewMemoryBroadcaster(logger)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping:", err)
	}

	return pubsub.NewRedisBroadcaster(logger, rdb)
}
