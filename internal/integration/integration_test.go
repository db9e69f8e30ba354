package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"vexcel-xp-service/internal/app"
	"vexcel-xp-service/internal/domain"
	pgstore "vexcel-xp-service/internal/infra/postgres"
	pgmigrations "vexcel-xp-service/internal/infra/postgres/migrations"
	infraredis "vexcel-xp-service/internal/infra/redis"
)

func TestTeamProgressEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedContent(t, ctx, pgURL, sampleModule(), sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	deps := app.Deps{
		Store:   pgstore.NewStore(pool),
		Content: infraredis.NewContentRepository(redisClient, pgstore.NewContentLoader(pool), 5*time.Minute),
		Events:  app.NewHub(),
	}
	users := app.NewUserService(deps)
	teams := app.NewTeamService(deps)
	progress := app.NewProgressService(deps)

	for _, id := range []string{"u1", "u2"} {
		if _, err := users.SignIn(ctx, domain.Identity{ID: id, DisplayName: strings.ToUpper(id)}); err != nil {
			t.Fatalf("sign in %s: %v", id, err)
		}
	}
	team, err := teams.CreateTeam(ctx, "u1", "Owls")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if _, err := teams.JoinTeam(ctx, "u2", strings.ToLower(team.Code)); err != nil {
		t.Fatalf("join team: %v", err)
	}

	if _, err := progress.CompleteActivity(ctx, "u1", "m1", "l1", domain.Attempt{}); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}
	res, err := progress.CompleteActivity(ctx, "u1", "m1", "l1", domain.Attempt{})
	if err != nil {
		t.Fatalf("repeat lesson: %v", err)
	}
	if !res.AlreadyCompleted || res.XPAwarded != 0 || res.UserXP != 20 {
		t.Fatalf("expected idempotent repeat, got %+v", res)
	}
	if _, err := progress.CompleteActivity(ctx, "u2", "m1", "q1", domain.Attempt{Answers: []int{1}}); err != nil {
		t.Fatalf("complete quiz: %v", err)
	}

	stored, err := teams.Team(ctx, team.ID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if stored.XP != 70 || len(stored.Members) != 2 {
		t.Fatalf("expected team with 70 xp and 2 members, got %+v", stored)
	}
	rec, err := users.Progress(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if rec.XP != 20 || !rec.IsCompleted("l1") {
		t.Fatalf("unexpected module progress %+v", rec)
	}

	board, err := teams.UserLeaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].ID != "u2" || board.Entries[0].Rank != 1 {
		t.Fatalf("expected u2 leading, got %+v", board.Entries)
	}

	for _, id := range []string{"u1", "u2"} {
		if _, err := teams.LeaveTeam(ctx, id); err != nil {
			t.Fatalf("leave %s: %v", id, err)
		}
	}
	if _, err := teams.Team(ctx, team.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected empty team to be deleted, got %v", err)
	}
}

func TestConcurrentCompletionAwardsOnce(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	seedContent(t, ctx, pgURL, sampleModule(), sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	if err := store.Apply(ctx, domain.CreateUser{User: domain.User{ID: "u1", DisplayName: "Alice"}}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Apply(ctx,
				domain.CompleteActivity{UserID: "u1", ModuleID: "m1", ActivityID: "l1", XP: 20},
				domain.IncrementUserXP{UserID: "u1", Delta: 20},
			)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one batch to commit, got %d", succeeded)
	}
	user, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.XP != 20 {
		t.Fatalf("expected 20 xp, got %d", user.XP)
	}
}

func TestFailedBatchLeavesNoPartialWrite(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	seedContent(t, ctx, pgURL, sampleModule(), sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	if err := store.Apply(ctx, domain.CreateUser{User: domain.User{ID: "u1", DisplayName: "Alice"}}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err = store.Apply(ctx,
		domain.CompleteActivity{UserID: "u1", ModuleID: "m1", ActivityID: "l1", XP: 20},
		domain.IncrementUserXP{UserID: "u1", Delta: 20},
		domain.IncrementTeamXP{TeamID: "missing", Delta: 20},
	)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing team to abort the batch, got %v", err)
	}

	user, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	rec, err := store.GetProgress(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if user.XP != 0 || rec.IsCompleted("l1") || rec.XP != 0 {
		t.Fatalf("expected no partial write, got user=%+v progress=%+v", user, rec)
	}
}

func TestContentLoaderReadsSeededRows(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	seedContent(t, ctx, pgURL, sampleModule(), sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	loader := pgstore.NewContentLoader(pool)

	module, err := loader.LoadModule(ctx, "m1")
	if err != nil {
		t.Fatalf("load module: %v", err)
	}
	if len(module.Activities) != 3 || module.TotalXP() != 100 {
		t.Fatalf("unexpected module %+v", module)
	}
	if _, err := loader.LoadModule(ctx, "nope"); !errors.Is(err, domain.ErrModuleNotFound) {
		t.Fatalf("expected module not found, got %v", err)
	}
	bank, err := loader.LoadChallengeBank(ctx)
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	if len(bank) != 2 || bank[0].Category != "geo" {
		t.Fatalf("unexpected bank %+v", bank)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "vexcel", "POSTGRES_PASSWORD": "vexcelpass", "POSTGRES_DB": "vexceldb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://vexcel:vexcelpass@%s:%s/vexceldb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func seedContent(t *testing.T, ctx context.Context, dsn string, module domain.Module, bank []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(module)
	if err != nil {
		t.Fatalf("marshal module: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO modules (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, module.ID, string(data)); err != nil {
		t.Fatalf("insert module: %v", err)
	}
	for _, q := range bank {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO challenge_questions (id, category, data) VALUES (?, ?, ?::jsonb) ON CONFLICT (id) DO NOTHING`, q.ID, q.Category, string(data)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func sampleModule() domain.Module {
	return domain.Module{
		ID:    "m1",
		Title: "Basics",
		Activities: []domain.Activity{
			domain.Lesson{ID: "l1", Title: "Intro", XP: 20},
			domain.Quiz{ID: "q1", Title: "Check", XP: 50, Questions: []domain.Question{
				{ID: "q1-1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: 1},
			}},
			domain.Game{ID: "g1", Title: "Warm-up"},
		},
	}
}

func sampleBank() []domain.Question {
	return []domain.Question{
		{ID: "c1", Prompt: "Capital of France?", Options: []string{"Paris", "Rome"}, Correct: 0, Category: "geo"},
		{ID: "c2", Prompt: "Capital of Italy?", Options: []string{"Paris", "Rome"}, Correct: 1, Category: "geo"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
