package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhejian/cipherlink/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound     = errors.New("url not found")
	ErrCodeConflict = errors.New("short code already exists")
	ErrTagConflict  = errors.New("url already exists")
)

const (
	uniqueViolation = "23505"

	shortCodeIndex = "urls_short_code_key"
	urlTagIndex    = "urls_url_tag_key"
)

const columns = `id, short_code, encrypted_url, url_tag, clicks, created_at, expires_at`

var tracer = otel.Tracer("github.com/zhejian/cipherlink/internal/repository")

// URLRepository handles database operations for URLs
type URLRepository struct {
	db *pgxpool.Pool
}

// NewURLRepository creates a new URL repository
func NewURLRepository(db *pgxpool.Pool) *URLRepository {
	return &URLRepository{db: db}
}

func startSpan(ctx context.Context, name, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "urls"),
	}, attrs...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func scanEntry(row pgx.Row) (*model.URLEntry, error) {
	var e model.URLEntry
	err := row.Scan(
		&e.ID,
		&e.ShortCode,
		&e.EncryptedURL,
		&e.URLTag,
		&e.Clicks,
		&e.CreatedAt,
		&e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert stores a new entry. Only the encrypted form of the URL is written.
// A short code collision yields ErrCodeConflict and a URL tag collision
// yields ErrTagConflict.
func (r *URLRepository) Insert(ctx context.Context, e *model.URLEntry) error {
	ctx, span := startSpan(ctx, "db.insert", "INSERT", attribute.String("short_code", e.ShortCode))
	defer span.End()

	query := `
		INSERT INTO urls (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID,
		e.ShortCode,
		e.EncryptedURL,
		e.URLTag,
		e.Clicks,
		e.CreatedAt,
		e.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case shortCodeIndex:
				return ErrCodeConflict
			case urlTagIndex:
				return ErrTagConflict
			}
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// FindByCode retrieves an entry by its short code
func (r *URLRepository) FindByCode(ctx context.Context, code string) (*model.URLEntry, error) {
	ctx, span := startSpan(ctx, "db.select", "SELECT", attribute.String("short_code", code))
	defer span.End()

	query := `SELECT ` + columns + ` FROM urls WHERE short_code = $1`
	return r.queryOne(ctx, span, query, code)
}

// FindByTag retrieves an entry by its URL dedup tag
func (r *URLRepository) FindByTag(ctx context.Context, tag string) (*model.URLEntry, error) {
	ctx, span := startSpan(ctx, "db.select", "SELECT")
	defer span.End()

	query := `SELECT ` + columns + ` FROM urls WHERE url_tag = $1`
	return r.queryOne(ctx, span, query, tag)
}

// ScanAll returns every entry, oldest first.
func (r *URLRepository) ScanAll(ctx context.Context) ([]*model.URLEntry, error) {
	ctx, span := startSpan(ctx, "db.select", "SELECT")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM urls ORDER BY created_at, short_code`)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.URLEntry, error) {
		return scanEntry(row)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

// FindAndIncrement bumps the click counter of a live entry and returns the
// updated row in one statement. Entries expired at now do not match, so
// they are neither counted nor returned.
func (r *URLRepository) FindAndIncrement(ctx context.Context, code string, now time.Time) (*model.URLEntry, error) {
	ctx, span := startSpan(ctx, "db.update", "UPDATE", attribute.String("short_code", code))
	defer span.End()

	query := `
		UPDATE urls SET clicks = clicks + 1
		WHERE short_code = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING ` + columns
	return r.queryOne(ctx, span, query, code, now)
}

// RenewExpiry replaces the expiry of an entry. A nil expiresAt makes the
// entry permanent.
func (r *URLRepository) RenewExpiry(ctx context.Context, code string, expiresAt *time.Time) (*model.URLEntry, error) {
	ctx, span := startSpan(ctx, "db.update", "UPDATE", attribute.String("short_code", code))
	defer span.End()

	query := `UPDATE urls SET expires_at = $2 WHERE short_code = $1 RETURNING ` + columns
	return r.queryOne(ctx, span, query, code, expiresAt)
}

// EnsureIndexes creates the unique indexes the service relies on. It is
// safe to call on every start.
func (r *URLRepository) EnsureIndexes(ctx context.Context) error {
	ctx, span := startSpan(ctx, "db.ddl", "CREATE INDEX")
	defer span.End()

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + shortCodeIndex + ` ON urls (short_code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + urlTagIndex + ` ON urls (url_tag)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// Ping checks database connectivity
func (r *URLRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *URLRepository) queryOne(ctx context.Context, span trace.Span, query string, args ...any) (*model.URLEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return e, nil
}
