package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"proctor-session-service/internal/app"
	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/config"
	"proctor-session-service/internal/events"
	"proctor-session-service/internal/infra/memory"
	pgstore "proctor-session-service/internal/infra/postgres"
	redisstore "proctor-session-service/internal/infra/redis"
	"proctor-session-service/internal/logger"
	"proctor-session-service/internal/metrics"
	"proctor-session-service/internal/proctor"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/session"
	"proctor-session-service/internal/timer"
	transport "proctor-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the proctoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader catalog.Loader = sampleLoader()
	if pool != nil {
		loader = pgstore.NewLoader(pool)
	}

	contentTTL := config.TTLDuration(cfg.Assessment.TTL, 10*time.Minute)
	var content catalog.Repository
	var timers timer.Store
	var attempts app.AttemptRepository
	if redisClient != nil {
		content = redisstore.NewAssessmentRepository(redisClient, loader, contentTTL)
		timers = redisstore.NewTimerStore(redisClient)
		attempts = redisstore.NewAttemptStore(redisClient, redisTTL)
	} else {
		log.Warn().Msg("redis not configured, attempt deadlines will not survive a restart")
		content = memory.NewAssessmentRepository(loader, contentTTL)
		timers = memory.NewTimerStore()
		attempts = memory.NewAttemptStore()
	}

	var results session.ResultReporter = memory.NewResultStore()
	var audit events.AuditSink = memory.NewAuditLog()
	if pool != nil {
		results = pgstore.NewResultStore(pool)
		audit = pgstore.NewAuditStore(pool)
	}

	var recommender recommend.Recommender
	if cfg.Recommend.Endpoint != "" {
		recommender = recommend.NewClient(cfg.Recommend.Endpoint, config.TTLDuration(cfg.Recommend.Timeout, 20*time.Second))
	}

	pub, sub, err := eventBus(cfg, log)
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(pub, cfg.Events.Topic, log)
	m := metrics.New()

	service := app.NewProctorService(attempts, app.Dependencies{
		Content:     content,
		Timers:      timers,
		Results:     results,
		Recommender: recommender,
		Transitions: []session.TransitionFunc{m.ObserveTransition, publisher.ObserveTransition},
		Log:         log,
	}, app.Settings{
		TimerTTL:        config.TTLDuration(cfg.Timer.TTL, time.Hour),
		ReasonTTL:       config.TTLDuration(cfg.Timer.ReasonTTL, 24*time.Hour),
		RecheckInterval: config.TTLDuration(cfg.Integrity.RecheckInterval, 30*time.Second),
		Proctor:         proctorConfig(cfg),
	})

	wsHandler := transport.NewWSHandler(service, m, log)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, wsHandler, m, log),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting proctor service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisClient != nil {
		g.Go(func() error {
			return service.KeepAlive(gctx, redisTTL/3)
		})
	}
	if cfg.Events.Audit {
		g.Go(func() error {
			return events.RunAudit(gctx, sub, cfg.Events.Topic, audit, log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		service.Close()
		if cerr := publisher.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close event publisher")
		}
		if cerr := sub.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close event subscriber")
		}
		return err
	})
	return g.Wait()
}

// eventBus returns Kafka pub/sub when brokers are configured, otherwise an
// in-process channel shared by publisher and audit consumer.
func eventBus(cfg config.Config, log zerolog.Logger) (message.Publisher, message.Subscriber, error) {
	if len(cfg.Events.Brokers) == 0 {
		bus := events.NewInProcess(log)
		return bus, bus, nil
	}
	pub, err := events.NewKafkaPublisher(cfg.Events.Brokers, log)
	if err != nil {
		return nil, nil, err
	}
	group := cfg.Events.ConsumerGroup
	if group == "" {
		group = "proctor-audit"
	}
	sub, err := events.NewKafkaSubscriber(cfg.Events.Brokers, group, log)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}
	return pub, sub, nil
}

func proctorConfig(cfg config.Config) proctor.Config {
	def := proctor.DefaultConfig()
	pc := cfg.Proctor
	out := proctor.Config{
		LookAwayThreshold: config.TTLDuration(pc.LookAwayThreshold, def.LookAwayThreshold),
		DisqualifyAfter:   config.TTLDuration(pc.DisqualifyAfter, def.DisqualifyAfter),
		StaleAfter:        config.TTLDuration(pc.StaleAfter, def.StaleAfter),
		SampleInterval:    def.SampleInterval,
		MaxViolations:     pc.MaxViolations,
		MinEyeRatio:       pc.MinEyeRatio,
		MaxEyeRatio:       pc.MaxEyeRatio,
	}
	if out.MaxViolations <= 0 {
		out.MaxViolations = def.MaxViolations
	}
	return out
}
