package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"vexcel-xp-service/internal/app"
	"vexcel-xp-service/internal/config"
	"vexcel-xp-service/internal/domain"
	"vexcel-xp-service/internal/infra/memory"
	pgstore "vexcel-xp-service/internal/infra/postgres"
	rediscache "vexcel-xp-service/internal/infra/redis"
	"vexcel-xp-service/internal/metrics"
	transport "vexcel-xp-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the XP server",
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
	setupLogging(cfg.Log.Level, true)

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
	metricsPath := cfg.Server.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store app.Store = memory.NewStore()
	if pool != nil {
		store = pgstore.NewStore(pool)
	}

	loader, err := contentLoader(cfg, pool)
	if err != nil {
		return err
	}
	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var content app.ContentRepository
	if redisClient != nil {
		content = rediscache.NewContentRepository(redisClient, loader, contentTTL)
	} else {
		content = memory.NewContentRepository(loader, contentTTL)
	}

	var sessions app.ChallengeRepository
	if redisClient != nil {
		sessions = rediscache.NewChallengeStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewChallengeStore()
	}

	deps := app.Deps{
		Store:    store,
		Content:  content,
		Leveling: domain.NewLeveling(cfg.Leveling.XPPerLevel),
		Events:   app.NewHub(),
		Gate:     app.NewGate(),
	}
	services := transport.Services{
		Users:    app.NewUserService(deps),
		Progress: app.NewProgressService(deps),
		Teams:    app.NewTeamService(deps),
		Challenges: app.NewChallengeService(deps, sessions, app.ChallengeSettings{
			QuestionSeconds: cfg.Challenge.QuestionSeconds,
			MaxXP:           cfg.Challenge.MaxXP,
		}),
		Events:                deps.Events,
		DefaultChallengeCount: cfg.Challenge.DefaultCount,
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwtSecret is empty; tokens signed with an empty key will be accepted")
	}
	wsHandler := transport.NewWSHandler(services, transport.NewTokenVerifier(cfg.Auth.JWTSecret))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle(metricsPath, metrics.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting xp service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// contentLoader picks the content source: Postgres when configured, then a
// YAML file, then the built-in sample.
func contentLoader(cfg config.Config, pool *pgxpool.Pool) (memory.ContentLoader, error) {
	if pool != nil {
		return pgstore.NewContentLoader(pool), nil
	}
	if cfg.Content.Path != "" {
		return memory.LoadContentFile(cfg.Content.Path)
	}
	return memory.NewStaticContentLoader(sampleContent())
}

// sampleContent is enough to exercise every activity type without a database.
func sampleContent() domain.Content {
	return domain.Content{
		Modules: []domain.ModuleDoc{
			{
				ID:    "getting-started",
				Title: "Getting started",
				Activities: []domain.ActivityDoc{
					{ID: "welcome", Type: domain.TypeLesson, Title: "Welcome", XP: 20},
					{ID: "basics-quiz", Type: domain.TypeQuiz, Title: "Basics", XP: 50, Questions: []domain.Question{
						{ID: "bq1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: 1},
						{ID: "bq2", Prompt: "Which is a prime number?", Options: []string{"4", "6", "7"}, Correct: 2},
						{ID: "bq3", Prompt: "What is 10 / 2?", Options: []string{"5", "2", "20"}, Correct: 0},
					}},
					{ID: "warmup-game", Type: domain.TypeGame, Title: "Warm-up"},
				},
			},
		},
		Challenge: []domain.Question{
			{ID: "c1", Prompt: "What is the capital of France?", Options: []string{"Paris", "Lyon", "Nice"}, Correct: 0, Category: "geography"},
			{ID: "c2", Prompt: "Which ocean is the largest?", Options: []string{"Atlantic", "Pacific", "Indian"}, Correct: 1, Category: "geography"},
			{ID: "c3", Prompt: "What is 7 x 6?", Options: []string{"42", "36", "48"}, Correct: 0, Category: "math"},
			{ID: "c4", Prompt: "What is the square root of 81?", Options: []string{"8", "9", "7"}, Correct: 1, Category: "math"},
			{ID: "c5", Prompt: "H2O is the formula for?", Options: []string{"Salt", "Water", "Oxygen"}, Correct: 1, Category: "science"},
		},
	}
}
