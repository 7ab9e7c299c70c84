// Package testutil starts throwaway backing services for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	pgCredential = "docuhub"

	// RustFSAccessKey and RustFSSecretKey are the root credentials of the object store container.
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// indexTables are truncated between tests, in dependency order.
var indexTables = []string{"document_chunks"}

// Service is a started container reachable on one mapped port.
type Service struct {
	container testcontainers.Container
	addr      string
}

// Addr returns host:port of the first exposed port.
func (s *Service) Addr() string {
	return s.addr
}

// Terminate stops and removes the container.
func (s *Service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.container)
}

func startService(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) *Service {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	addr, err := c.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		t.Fatalf("%s endpoint: %v", req.Image, err)
	}

	return &Service{container: c, addr: addr}
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	*Service
}

// NewRustFSContainer starts an object store. The caller terminates it.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	svc := startService(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{Service: svc}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Addr()
}

// SetupPostgres starts a pgvector database, migrates it to the latest
// version found in migrationsDir and returns a pool. Everything is torn
// down when t finishes.
func SetupPostgres(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	svc := startService(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// postgres restarts once after initdb
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})
	t.Cleanup(func() { _ = svc.Terminate(context.Background()) })

	url := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgCredential, pgCredential, svc.Addr(), pgCredential)

	if err := migrateUp(url, migrationsDir); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TruncateAll empties the index tables and resets their sequences.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range indexTables {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// migrateUp applies migrations the same way the server does at startup.
func migrateUp(url, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if lastErr = tryMigrateUp(url, abs); lastErr == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return lastErr
}

func tryMigrateUp(url, dir string) error {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
