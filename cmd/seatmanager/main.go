package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"seatmanager/internal/auth"
	"seatmanager/internal/config"
	"seatmanager/internal/database"
	"seatmanager/internal/events"
	"seatmanager/internal/metrics"
	"seatmanager/internal/offsite"
	"seatmanager/internal/server"
	"seatmanager/internal/session"
	"seatmanager/internal/store"
	"seatmanager/internal/storeapi"
)

var version = "dev"

const usage = `usage: seatmanager [command]

commands:
  serve (default)         run the API
  seed [tables]           create tables with 8 empty seats each (SQL backends)
  backup                  write a sqlite backup now
  audit [limit]           print recent seat changes (SQL backends)
  hash-password <plain>   print a bcrypt hash for auth.users`

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd == "hash-password" {
		if len(args) != 1 {
			logger.Fatal().Msg("hash-password needs exactly one argument")
		}
		hash, err := auth.HashPassword(args[0], 12)
		if err != nil {
			logger.Fatal().Err(err).Msg("hash password")
		}
		fmt.Println(hash)
		return
	}

	cfgPath := os.Getenv("SEATMANAGER_CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		if err := serve(ctx, cfg, cfgPath, &logger); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	case "seed", "backup", "audit":
		if err := runSQLCommand(ctx, cmd, args, cfg, &logger); err != nil {
			logger.Fatal().Err(err).Str("command", cmd).Msg("command failed")
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func intArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	return strconv.Atoi(args[0])
}

func openSQL(cfg *config.Config) (*database.DB, error) {
	if cfg.Store.Driver == config.DriverHosted {
		return nil, fmt.Errorf("command needs store.driver sqlite3 or postgres")
	}
	return database.Open(cfg.DataSource())
}

func runSQLCommand(ctx context.Context, cmd string, args []string, cfg *config.Config, logger *zerolog.Logger) error {
	db, err := openSQL(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	switch cmd {
	case "seed":
		count, err := intArg(args, 30)
		if err != nil {
			return err
		}
		n, err := db.Seed(ctx, count)
		if err != nil {
			return err
		}
		logger.Info().Int("tables", n).Msg("seed complete")
	case "backup":
		svc, err := newBackupService(ctx, db, cfg, logger)
		if err != nil {
			return err
		}
		path, err := svc.PerformBackup(ctx)
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("backup written")
	case "audit":
		limit, err := intArg(args, 50)
		if err != nil {
			return err
		}
		entries, err := db.ListAudit(ctx, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-14s table=%s seat=%s guest=%q by=%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Action, e.TableID, e.SeatID, e.GuestName, e.Actor)
		}
	}
	return nil
}

func newBackupService(ctx context.Context, db *database.DB, cfg *config.Config, logger *zerolog.Logger) (*database.BackupService, error) {
	svc := database.NewBackupService(db, cfg.Backup, logger)
	if cfg.Backup.S3Bucket != "" {
		up, err := offsite.NewS3Uploader(ctx, cfg.Backup.S3Bucket, cfg.Backup.S3Region, cfg.Backup.S3Prefix)
		if err != nil {
			return nil, err
		}
		svc.SetUploader(up)
	}
	return svc, nil
}

func serve(ctx context.Context, cfg *config.Config, cfgPath string, logger *zerolog.Logger) error {
	var (
		backend store.Backend
		rdb     *redis.Client
	)
	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})

	switch cfg.Store.Driver {
	case config.DriverHosted:
		client := storeapi.NewClient(cfg.Store.BaseURL, cfg.Store.APIKey)
		if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer rdb.Close()
			client.UseRedisCache(rdb, cfg.CacheTTL())
		}
		backend = client
	default:
		db, err := database.Open(cfg.DataSource())
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		backend = db
		bus.SubscribeAll(db.RecordEvent)

		if cfg.Backup.Enabled {
			svc, err := newBackupService(ctx, db, cfg, logger)
			if err != nil {
				return err
			}
			go svc.Start(ctx)
		}
	}

	if cfg.Events.AMQPURL != "" {
		fwd, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Error().Err(err).Msg("amqp unavailable, seat events stay local")
		} else {
			defer fwd.Close()
			bus.SubscribeAll(fwd.Handle)
		}
	}

	authn := auth.NewAuthenticator(cfg.Auth, backend, *logger)
	if err := config.WatchAuth(ctx, cfgPath, 30*time.Second, func(a config.AuthConfig) {
		authn.Update(a)
		logger.Info().Int("users", len(a.Users)).Msg("auth config reloaded")
	}); err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	}

	if cfg.Auth.SessionSecret == "" {
		logger.Warn().Msg("auth.session_secret is empty, cookies are signed with an empty key")
	}
	sessions := session.NewManager(cfg.Auth.SessionSecret, int(cfg.SessionIdleTimeout().Seconds()), cfg.Server.SecureCookies)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, backend, rdb, logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	api := server.New(server.Config{
		Repo:        backend,
		Auth:        authn,
		Sessions:    sessions,
		Bus:         bus,
		Logger:      *logger,
		IdleTimeout: cfg.SessionIdleTimeout(),
		Version:     version,
	})
	logger.Info().Str("driver", cfg.Store.Driver).Str("version", version).Msg("seat manager started")
	return api.Start(ctx, cfg.Server.Address)
}

func startHealthServer(ctx context.Context, port int, backend store.Backend, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := backend.Ping(ctxPing); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
