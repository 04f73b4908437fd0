package provider

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresCredentials is the credentials blob for the self-hosted Postgres
// backend.
type PostgresCredentials struct {
	DSN string `json:"dsn"`
}

// Postgres stores vault objects in a single table, one row per path.
// Content tags are SHA-256 hashes, so they compare directly against the
// local manifest fingerprints.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres credentials: dsn is required")
	}

	if err := migratePostgres(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (p *Postgres) Name() string { return "postgres" }

// Close releases the connection pool. The CLI closes providers that
// implement io.Closer once a run finishes.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]RemoteObject, error) {
	rows, err := p.pool.Query(ctx, `SELECT path, content_hash, modified FROM vault_objects`)
	if err != nil {
		return nil, remoteErr("postgres", "list objects", 0, err)
	}
	defer rows.Close()

	var objects []RemoteObject
	for rows.Next() {
		var obj RemoteObject
		if err := rows.Scan(&obj.Key, &obj.ContentTag, &obj.Modified); err != nil {
			return nil, remoteErr("postgres", "scan row", 0, err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("postgres", "list objects", 0, err)
	}

	return objects, nil
}

func (p *Postgres) Upload(ctx context.Context, relPath string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO vault_objects (path, content_hash, modified, data)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (path) DO UPDATE
		SET content_hash = EXCLUDED.content_hash,
		    modified     = now(),
		    data         = EXCLUDED.data`,
		relPath, p.LocalTag(data), data)
	if err != nil {
		return remoteErr("postgres", "upsert "+relPath, 0, err)
	}
	return nil
}

func (p *Postgres) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM vault_objects WHERE path = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, remoteErr("postgres", "get "+key, 0, fmt.Errorf("no such object"))
	}
	if err != nil {
		return nil, remoteErr("postgres", "get "+key, 0, err)
	}
	return data, nil
}

func (p *Postgres) LocalTag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
