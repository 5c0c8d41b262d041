package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/cipherlink/internal/events"
	"github.com/zhejian/cipherlink/internal/model"
	"github.com/zhejian/cipherlink/internal/repository"
	"github.com/zhejian/cipherlink/internal/shortcode"
	"github.com/zhejian/cipherlink/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrURLNotFound         = errors.New("URL not found")
	ErrURLExpired          = errors.New("URL has expired")
	ErrShortCodeGeneration = errors.New("failed to generate unique short code")
	ErrStore               = errors.New("store failure")
	ErrCrypto              = errors.New("crypto failure")
)

var tracer = otel.Tracer("github.com/zhejian/cipherlink/internal/service")

// Repository is the persistence contract the service depends on.
type Repository interface {
	Insert(ctx context.Context, e *model.URLEntry) error
	FindByCode(ctx context.Context, code string) (*model.URLEntry, error)
	FindByTag(ctx context.Context, tag string) (*model.URLEntry, error)
	ScanAll(ctx context.Context) ([]*model.URLEntry, error)
	FindAndIncrement(ctx context.Context, code string, now time.Time) (*model.URLEntry, error)
	RenewExpiry(ctx context.Context, code string, expiresAt *time.Time) (*model.URLEntry, error)
	EnsureIndexes(ctx context.Context) error
}

// Encryptor protects URLs at rest and derives their lookup tag.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
	Tag(value string) string
}

// URLServiceInterface defines the contract for URL shortening operations
type URLServiceInterface interface {
	CreateURL(ctx context.Context, in validation.CreateInput) (*model.URLEntry, bool, error)
	GetURLByCode(ctx context.Context, code string) (*model.URLEntry, error)
	ListURLs(ctx context.Context) ([]*model.URLEntry, error)
}

// URLService handles business logic for URL operations. It holds no
// mutable state after construction.
type URLService struct {
	repo      Repository
	enc       Encryptor
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *instruments
	retries   int
	generate  func() string
	now       func() time.Time
}

// NewURLService creates a new URL service. It blocks until the store's
// unique indexes are confirmed; without them duplicate codes could be
// written, so a failure here means the service must not start.
func NewURLService(ctx context.Context, repo Repository, enc Encryptor, publisher events.Publisher, logger *slog.Logger, shortCodeRetries int) (*URLService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if shortCodeRetries < 1 {
		shortCodeRetries = 1
	}

	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.ErrorContext(ctx, "unique indexes missing, duplicate short codes would be accepted",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: ensure indexes: %w", ErrStore, err)
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}

	return &URLService{
		repo:      repo,
		enc:       enc,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		retries:   shortCodeRetries,
		generate:  shortcode.NewGenerator().Generate,
		now:       time.Now,
	}, nil
}

// CreateURL returns the entry for in.URL, creating it if the URL is not
// stored yet. The boolean reports whether a new entry was written.
func (s *URLService) CreateURL(ctx context.Context, in validation.CreateInput) (*model.URLEntry, bool, error) {
	ctx, span := tracer.Start(ctx, "URLService.CreateURL")
	defer span.End()

	entry, created, err := s.createURL(ctx, in)
	if err != nil {
		recordSpanError(span, err)
		return nil, false, err
	}
	span.SetAttributes(
		attribute.String("short_code", entry.ShortCode),
		attribute.Bool("created", created),
	)
	return entry, created, nil
}

func (s *URLService) createURL(ctx context.Context, in validation.CreateInput) (*model.URLEntry, bool, error) {
	if err := validation.ValidateCreate(in); err != nil {
		return nil, false, err
	}

	if in.ShortCode != nil {
		_, err := s.repo.FindByCode(ctx, *in.ShortCode)
		switch {
		case err == nil:
			return nil, false, validation.New(validation.FieldShortCode, validation.ReasonAlreadyExists)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, false, storeErr("find by code", err)
		}
	}

	canonical, err := shortcode.Canonicalize(in.URL)
	if err != nil {
		return nil, false, validation.New(validation.FieldOriginalURL, validation.ReasonInvalidURL)
	}
	tag := s.enc.Tag(canonical)

	// timestamptz keeps microseconds; match it so the entry returned here
	// equals the one read back later.
	now := s.now().UTC().Truncate(time.Microsecond)
	expiresAt := expiryFrom(now, in.ExpiresInDays)

	existing, found, err := s.findExisting(ctx, tag, now, expiresAt)
	if err != nil {
		return nil, false, err
	}
	if found {
		return existing, false, nil
	}

	encrypted, err := s.enc.Encrypt(in.URL)
	if err != nil {
		return nil, false, fmt.Errorf("%w: encrypt: %w", ErrCrypto, err)
	}

	entry := &model.URLEntry{
		ID:           uuid.New(),
		OriginalURL:  in.URL,
		EncryptedURL: encrypted,
		URLTag:       tag,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}

	if in.ShortCode != nil {
		entry.ShortCode = *in.ShortCode
		err = s.repo.Insert(ctx, entry)
		if errors.Is(err, repository.ErrCodeConflict) {
			return nil, false, validation.New(validation.FieldShortCode, validation.ReasonAlreadyExists)
		}
	} else {
		err = s.insertGenerated(ctx, entry)
	}

	switch {
	case errors.Is(err, repository.ErrTagConflict):
		// A concurrent request stored the same URL first.
		existing, found, ferr := s.findExisting(ctx, tag, now, expiresAt)
		if ferr != nil {
			return nil, false, ferr
		}
		if !found {
			return nil, false, storeErr("reload after tag conflict", repository.ErrNotFound)
		}
		return existing, false, nil
	case errors.Is(err, ErrShortCodeGeneration):
		return nil, false, fmt.Errorf("%w: %w", ErrStore, err)
	case err != nil:
		return nil, false, storeErr("insert", err)
	}

	s.metrics.created.Add(ctx, 1)
	s.logger.InfoContext(ctx, "short URL created",
		slog.String("short_code", entry.ShortCode),
		slog.Bool("custom", in.ShortCode != nil))
	return entry, true, nil
}

// insertGenerated stores entry under freshly generated codes until one
// does not collide or the attempts run out.
func (s *URLService) insertGenerated(ctx context.Context, entry *model.URLEntry) error {
	for attempt := 0; attempt < s.retries; attempt++ {
		entry.ShortCode = s.generate()
		err := s.repo.Insert(ctx, entry)
		if !errors.Is(err, repository.ErrCodeConflict) {
			return err
		}
		s.metrics.collisions.Add(ctx, 1)
		s.logger.WarnContext(ctx, "generated short code collided",
			slog.String("short_code", entry.ShortCode),
			slog.Int("attempt", attempt+1))
	}
	return ErrShortCodeGeneration
}

// findExisting looks up the entry stored under tag. An expired entry is
// revived with expiresAt, since the tag index forbids a second row.
func (s *URLService) findExisting(ctx context.Context, tag string, now time.Time, expiresAt *time.Time) (*model.URLEntry, bool, error) {
	e, err := s.repo.FindByTag(ctx, tag)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeErr("find by tag", err)
	}

	if e.Expired(now) {
		e, err = s.repo.RenewExpiry(ctx, e.ShortCode, expiresAt)
		if err != nil {
			return nil, false, storeErr("renew expiry", err)
		}
	}

	if err := s.decrypt(ctx, e); err != nil {
		return nil, false, err
	}
	s.metrics.dedupHits.Add(ctx, 1)
	return e, true, nil
}

// GetURLByCode resolves code and counts the visit. Unknown codes yield
// ErrURLNotFound and expired ones ErrURLExpired; neither is counted.
func (s *URLService) GetURLByCode(ctx context.Context, code string) (*model.URLEntry, error) {
	ctx, span := tracer.Start(ctx, "URLService.GetURLByCode",
		trace.WithAttributes(attribute.String("short_code", code)))
	defer span.End()

	entry, err := s.getURLByCode(ctx, code)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return entry, nil
}

func (s *URLService) getURLByCode(ctx context.Context, code string) (*model.URLEntry, error) {
	now := s.now()

	entry, err := s.repo.FindAndIncrement(ctx, code, now)
	if err == nil {
		if err := s.decrypt(ctx, entry); err != nil {
			return nil, err
		}
		s.metrics.redirects.Add(ctx, 1)
		s.publishClick(ctx, entry, now)
		return entry, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("find and increment", err)
	}

	// Nothing live matched; tell unknown and expired apart.
	entry, err = s.repo.FindByCode(ctx, code)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrURLNotFound
	case err != nil:
		return nil, storeErr("find by code", err)
	case entry.Expired(now):
		return nil, ErrURLExpired
	}
	// Inserted after the increment ran; the increment is the lookup that counts.
	return nil, ErrURLNotFound
}

// ListURLs returns every stored entry with its URL decrypted.
func (s *URLService) ListURLs(ctx context.Context) ([]*model.URLEntry, error) {
	ctx, span := tracer.Start(ctx, "URLService.ListURLs")
	defer span.End()

	entries, err := s.repo.ScanAll(ctx)
	if err != nil {
		err = storeErr("scan", err)
		recordSpanError(span, err)
		return nil, err
	}
	for _, e := range entries {
		if err := s.decrypt(ctx, e); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("count", len(entries)))
	return entries, nil
}

func (s *URLService) decrypt(ctx context.Context, e *model.URLEntry) error {
	plain, err := s.enc.Decrypt(e.EncryptedURL)
	if err != nil {
		// Data written by this service always decrypts, so this is either
		// corruption or a key mismatch.
		s.metrics.integrityFailures.Add(ctx, 1)
		s.logger.ErrorContext(ctx, "stored URL failed to decrypt",
			slog.String("short_code", e.ShortCode),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: decrypt %s: %w", ErrCrypto, e.ShortCode, err)
	}
	e.OriginalURL = plain
	return nil
}

func (s *URLService) publishClick(ctx context.Context, e *model.URLEntry, at time.Time) {
	err := s.publisher.PublishClick(ctx, events.ClickEvent{
		ShortCode:  e.ShortCode,
		Clicks:     e.Clicks,
		OccurredAt: at.UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "click event not published",
			slog.String("short_code", e.ShortCode),
			slog.String("error", err.Error()))
	}
}

func expiryFrom(now time.Time, days *int) *time.Time {
	if days == nil {
		return nil
	}
	t := now.AddDate(0, 0, *days)
	return &t
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func recordSpanError(span trace.Span, err error) {
	var verr *validation.ValidationError
	if errors.As(err, &verr) || errors.Is(err, ErrURLNotFound) || errors.Is(err, ErrURLExpired) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Ensure URLService implements URLServiceInterface at compile time
var _ URLServiceInterface = (*URLService)(nil)
