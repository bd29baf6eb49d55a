package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/api"
	"github.com/hackgods/clinic-agenda/internal/appointment"
	"github.com/hackgods/clinic-agenda/internal/config"
	"github.com/hackgods/clinic-agenda/internal/db"
	"github.com/hackgods/clinic-agenda/internal/logger"
	"github.com/hackgods/clinic-agenda/internal/metrics"
	redisclient "github.com/hackgods/clinic-agenda/internal/redis"
	"github.com/hackgods/clinic-agenda/internal/roster"
)

const version = "0.3.0"

// streamMaxLen caps the appointment event stream.
const streamMaxLen = 10_000

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel, os.Stdout)
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("clinic_id", cfg.ClinicID).
		Str("timezone", cfg.Location.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api-server stopped")
	}
	log.Info().Msg("api-server shut down")
}

func run(rootCtx context.Context, cfg config.Config, log zerolog.Logger) error {
	// Redis is optional. When configured, this process must own the clinic
	// before it loads any state.
	var (
		rdb    *redis.Client
		events appointment.EventPublisher
	)
	if cfg.RedisEnabled() {
		var err error
		rdb, err = redisclient.Connect(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		lease, err := redisclient.AcquireLease(rootCtx, rdb, cfg.ClinicID, cfg.LeaseTTL)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lease.Release(ctx); err != nil {
				log.Error().Err(err).Msg("error releasing clinic lease")
			}
		}()
		log.Info().Str("clinic_id", cfg.ClinicID).Dur("ttl", cfg.LeaseTTL).Msg("clinic lease acquired")

		// Losing the lease means another process may be writing; stop serving.
		leaseCtx, cancelLease := context.WithCancel(rootCtx)
		defer cancelLease()
		go lease.Keep(leaseCtx, func(err error) {
			log.Error().Err(err).Msg("clinic lease lost, shutting down")
			cancelLease()
		})
		rootCtx = leaseCtx

		events = redisclient.NewStreamPublisher(rdb, cfg.ClinicID, streamMaxLen)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, running without clinic lease or event stream")
	}

	var (
		pgPool *pgxpool.Pool
		repo   appointment.Repository
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		var err error
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			return err
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")

		if err := db.Migrate(rootCtx, pgPool); err != nil {
			return err
		}
		repo = appointment.NewPgRepository(pgPool, cfg.ClinicID)
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, appointments live in memory only")
		repo = appointment.NewMemoryRepository()
	}

	m := metrics.New("agenda")
	svc := appointment.NewService(repo, events, m, log, cfg)

	if err := svc.Hydrate(rootCtx); err != nil {
		return err
	}

	if cfg.RosterFile != "" {
		profs, err := roster.Load(cfg.RosterFile)
		if err != nil {
			return err
		}
		if err := svc.ApplyRoster(rootCtx, profs); err != nil {
			return err
		}
		log.Info().Str("file", cfg.RosterFile).Int("professionals", len(profs)).Msg("roster applied")
	}

	if cfg.SweepInterval > 0 {
		go runSweeper(rootCtx, svc, cfg.SweepInterval, log)
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Metrics:        m,
		Logger:         log,
		PgPool:         pgPool,
		Redis:          rdb,
		Env:            cfg.Env,
		Version:        version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-rootCtx.Done():
	}

	log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
