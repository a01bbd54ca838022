//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quitforge/aigateway/internal/api"
	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/cache"
	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/eventlog"
	"github.com/quitforge/aigateway/internal/fallback"
	"github.com/quitforge/aigateway/internal/gateway"
	"github.com/quitforge/aigateway/internal/jobs"
	"github.com/quitforge/aigateway/internal/provider"
	"github.com/quitforge/aigateway/internal/ratelimit"
)

// StubProvider stands in for the OpenAI client so integration tests never
// leave the test network.
type StubProvider struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (s *StubProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return provider.Response{}, s.Err
	}
	return provider.Response{
		Text:             "stubbed response for: " + req.Prompt,
		PromptTokens:     len(req.Prompt) / 4,
		CompletionTokens: 50,
	}, nil
}

type TestEnv struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Server   *httptest.Server
	Provider *StubProvider
	Gateway  *gateway.Gateway
	JobRepo  *jobs.Repository
	Ledger   *budget.Repository
	Worker   *jobs.Worker
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "aigateway_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/aigateway_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Gateway pipeline with generous budgets; individual tests use distinct
	// user IDs so they do not interfere through the shared ledger.
	budgets := config.BudgetConfig{MonthlyFree: 1.00, MonthlyPremium: 5.00}
	limits := config.RateLimitConfig{
		AIPerWindowFree: 50, AIPerWindowPremium: 100,
		ReadPerWindowFree: 500, ReadPerWindowPremium: 1000,
		Window: time.Minute,
	}
	workerCfg := config.WorkerConfig{Interval: time.Second, BatchSize: 10, MaxAttempts: 3, RetentionDays: 7}

	ledger := budget.NewRepository(pool)
	tracker := budget.NewTracker(ledger, budgets)
	limiter := ratelimit.NewLimiter(redisClient, limits.Window)
	stub := &StubProvider{}

	gw := gateway.New(cache.NewStore(redisClient), limiter, tracker, stub, fallback.NewResolver(), nil, limits)

	jobRepo := jobs.NewRepository(pool)
	worker := jobs.NewWorker(jobRepo, nil, workerCfg)
	worker.Register(jobs.TypeCohortPersonalization, jobs.NewCohortHandler(gw))
	worker.Register(jobs.TypeCacheWarmup, jobs.NewWarmupHandler(gw))

	gatewayHandler := gateway.NewHandler(gw)
	budgetHandler := budget.NewHandler(tracker, ledger)
	ratelimitHandler := ratelimit.NewHandler(limiter, limits)
	jobHandler := jobs.NewHandler(jobRepo, workerCfg)

	router := api.NewRouter(pool, redisClient, nil, api.RouterConfig{}, api.HandlerSet{
		Generate: gatewayHandler.Generate,

		BudgetStatus:    budgetHandler.Status,
		UsageList:       budgetHandler.Usage,
		RateLimitStatus: ratelimitHandler.Status,

		EnqueueJob: jobHandler.Enqueue,
		GetJob:     jobHandler.Get,
		ListJobs:   jobHandler.List,

		ListEvents: eventlog.NewHandler(eventlog.NewRepository(pool)).List,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:     pool,
		Redis:    redisClient,
		Server:   server,
		Provider: stub,
		Gateway:  gw,
		JobRepo:  jobRepo,
		Ledger:   ledger,
		Worker:   worker,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
