//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/app"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/infra"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/search"
)

const (
	TestJWTSecret = "integration-test-secret-at-least-32-chars"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "refnexus"
	TestDBPass    = "refnexus"
	TestDBName    = "refnexus_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server      *httptest.Server
	Pool        *pgxpool.Pool
	JWTMgr      *auth.JWTManager
	Hub         *infra.WSHub
	Geocoder    *FakeGeocoder
	Interpreter *FakeInterpreter
	AI          *FakeAI
	t           *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

// testDSN honours TEST_DATABASE_URL so CI can point at its own container.
func testDSN() string {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "refnexus")
}

func ensureTestDB() error {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := infra.RunMigrations(testDSN(), infra.FindMigrationDir(), quietLogger()); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and test DB. Geocoding and the AI interpreter are faked.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour)
	hub := infra.NewWSHub(logger)
	geo := NewFakeGeocoder()
	interp := &FakeInterpreter{}
	ai := &FakeAI{}

	router := app.NewRouter(app.RouterDeps{
		Pool:           pool,
		JWTMgr:         jwtMgr,
		Logger:         logger,
		Hub:            hub,
		StatsTTL:       time.Minute,
		Geocoder:       geo,
		Interpreter:    interp,
		AssistantModel: ai,
		Extractor:      ai,
		AITimeout:      2 * time.Second,
		AIRateLimit:    20,
		AIRateWindow:   time.Minute,
		AIFailures:     5,
		AICircuitReset: 30 * time.Second,
		AllowedOrigins: []string{"*"},
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:      server,
		Pool:        pool,
		JWTMgr:      jwtMgr,
		Hub:         hub,
		Geocoder:    geo,
		Interpreter: interp,
		AI:          ai,
		t:           t,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Shutdown(context.Background())
		env.CleanAll()
	})

	env.CleanAll()
	return env
}

// FakeGeocoder resolves only the places it has been taught.
type FakeGeocoder struct {
	mu     sync.Mutex
	places map[string]search.Point
	calls  int
}

// NewFakeGeocoder returns a geocoder preloaded with a few test cities.
func NewFakeGeocoder() *FakeGeocoder {
	return &FakeGeocoder{places: map[string]search.Point{
		"Springfield": {Lat: 39.7817, Lon: -89.6501},
		"Chicago":     {Lat: 41.8781, Lon: -87.6298},
	}}
}

// Add teaches the geocoder a place.
func (g *FakeGeocoder) Add(name string, p search.Point) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.places[name] = p
}

func (g *FakeGeocoder) Geocode(_ context.Context, query string) (*search.Point, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	p, ok := g.places[query]
	if !ok {
		return nil, search.ErrLocationNotFound
	}
	return &p, nil
}

// CallCount reports how many lookups were made.
func (g *FakeGeocoder) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// FakeInterpreter ranks the roster in the order it was given, or returns Err.
type FakeInterpreter struct {
	mu        sync.Mutex
	Err       error
	Calls     int
	LastQuery string
	LastCtx   search.InterpretContext
}

func (f *FakeInterpreter) Interpret(_ context.Context, query string, ictx search.InterpretContext) (*search.Interpretation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.LastQuery = query
	f.LastCtx = ictx
	if f.Err != nil {
		return nil, f.Err
	}
	out := &search.Interpretation{Explanation: "ranked by fake interpreter"}
	for _, r := range ictx.Roster {
		out.RankedIDs = append(out.RankedIDs, r.ID)
	}
	return out, nil
}

// SetErr makes subsequent calls fail with err.
func (f *FakeInterpreter) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// CallCount returns how many times Interpret ran.
func (f *FakeInterpreter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// FakeAI answers chats with Reply and extractions with Records.
type FakeAI struct {
	mu       sync.Mutex
	Reply    *assistant.Reply
	Records  []ingest.Record
	Err      error
	Messages []assistant.Message
	Tools    []assistant.ToolSpec
	Texts    []string
}

func (f *FakeAI) Chat(_ context.Context, messages []assistant.Message, tools []assistant.ToolSpec) (*assistant.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = messages
	f.Tools = tools
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Reply == nil {
		return &assistant.Reply{Content: "ok"}, nil
	}
	return f.Reply, nil
}

func (f *FakeAI) ExtractGames(_ context.Context, text string) ([]ingest.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Texts = append(f.Texts, text)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Records, nil
}

// Script sets the next chat reply and extraction result.
func (f *FakeAI) Script(reply *assistant.Reply, records []ingest.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reply = reply
	f.Records = records
}

// ExtractCalls returns the texts handed to ExtractGames.
func (f *FakeAI) ExtractCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Texts...)
}
