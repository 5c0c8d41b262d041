package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/cipherlink/internal/api"
	"github.com/zhejian/cipherlink/internal/crypto"
	"github.com/zhejian/cipherlink/internal/model"
	"github.com/zhejian/cipherlink/internal/service"
	"github.com/zhejian/cipherlink/internal/validation"
)

const baseURL = "https://sho.rt"

// MockURLService mocks the service layer
type MockURLService struct {
	mock.Mock
}

func (m *MockURLService) CreateURL(ctx context.Context, in validation.CreateInput) (*model.URLEntry, bool, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.URLEntry), args.Bool(1), args.Error(2)
}

func (m *MockURLService) GetURLByCode(ctx context.Context, code string) (*model.URLEntry, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URLEntry), args.Error(1)
}

func (m *MockURLService) ListURLs(ctx context.Context) ([]*model.URLEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.URLEntry), args.Error(1)
}

// MockDB for health check
type MockDB struct {
	shouldFail bool
}

func (m *MockDB) Ping(ctx context.Context) error {
	if m.shouldFail {
		return assert.AnError
	}
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(svc service.URLServiceInterface, db api.DBInterface) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	api.NewHandler(svc, db, baseURL+"/", logger).RegisterRoutes(r)
	return r
}

func sampleEntry(code, original string) *model.URLEntry {
	return &model.URLEntry{
		ID:           uuid.New(),
		OriginalURL:  original,
		EncryptedURL: "ciphertext",
		URLTag:       "tag",
		ShortCode:    code,
		Clicks:       2,
		CreatedAt:    time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC),
	}
}

func postJSON(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/urls", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_HealthCheck(t *testing.T) {
	t.Run("returns ok when database is up", func(t *testing.T) {
		router := setupRouter(new(MockURLService), &MockDB{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "ok", response["status"])
	})

	t.Run("returns 503 when database is down", func(t *testing.T) {
		router := setupRouter(new(MockURLService), &MockDB{shouldFail: true})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "degraded", response["status"])
		deps := response["dependencies"].(map[string]any)
		assert.Equal(t, "down", deps["database"])
	})
}

func TestHandler_CreateURL(t *testing.T) {
	t.Run("returns 201 for a new entry", func(t *testing.T) {
		svc := new(MockURLService)
		entry := sampleEntry("abcdefg123", "https://example.com/long")
		svc.On("CreateURL", mock.Anything, validation.CreateInput{URL: "https://example.com/long"}).
			Return(entry, true, nil)

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com/long"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp model.URLResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "abcdefg123", resp.ShortCode)
		assert.Equal(t, "https://example.com/long", resp.OriginalURL)
		assert.Equal(t, baseURL+"/r/abcdefg123", resp.ShortURL)
		assert.Equal(t, entry.ID, resp.ID)
		assert.Nil(t, resp.ExpiresAt)
		svc.AssertExpectations(t)
	})

	t.Run("never exposes ciphertext or tag", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("CreateURL", mock.Anything, mock.Anything).
			Return(sampleEntry("abcdefg123", "https://example.com"), true, nil)

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com"}`)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.NotContains(t, raw, "encrypted_url")
		assert.NotContains(t, raw, "url_tag")
		assert.NotContains(t, raw, "expires_at")
	})

	t.Run("returns 200 for an existing entry", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("CreateURL", mock.Anything, mock.Anything).
			Return(sampleEntry("existing01", "https://example.com"), false, nil)

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com"}`)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("passes optional fields through", func(t *testing.T) {
		svc := new(MockURLService)
		days := 7
		code := "my-code"
		svc.On("CreateURL", mock.Anything, validation.CreateInput{
			URL:           "https://example.com",
			ExpiresInDays: &days,
			ShortCode:     &code,
		}).Return(sampleEntry(code, "https://example.com"), true, nil)

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com","expires_in_days":7,"short_code":"my-code"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("returns 400 for malformed body", func(t *testing.T) {
		svc := new(MockURLService)

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CreateURL", mock.Anything, mock.Anything)
	})

	t.Run("returns 400 with field and reason", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("CreateURL", mock.Anything, mock.Anything).
			Return(nil, false, validation.New(validation.FieldShortCode, validation.ReasonAlreadyExists))

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com","short_code":"taken"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp model.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "short_code", resp.Field)
		assert.Equal(t, "already_exists", resp.Reason)
	})

	t.Run("returns 500 without leaking the cause", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("CreateURL", mock.Anything, mock.Anything).
			Return(nil, false, fmt.Errorf("%w: insert: %w", service.ErrStore, assert.AnError))

		w := postJSON(setupRouter(svc, &MockDB{}), `{"url":"https://example.com"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	})
}

func TestHandler_Redirect(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		entry        *model.URLEntry
		err          error
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "redirects to original URL",
			code:         "abc123",
			entry:        sampleEntry("abc123", "https://example.com/target"),
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "https://example.com/target",
		},
		{
			name:         "prefixes scheme-less URL",
			code:         "legacy",
			entry:        sampleEntry("legacy", "example.com/old"),
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "http://example.com/old",
		},
		{
			name:       "unknown code",
			code:       "missing",
			err:        service.ErrURLNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "expired code",
			code:       "expired",
			err:        service.ErrURLExpired,
			wantStatus: http.StatusGone,
		},
		{
			name:       "integrity failure",
			code:       "broken",
			err:        fmt.Errorf("%w: decrypt broken: %w", service.ErrCrypto, crypto.ErrAuthentication),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockURLService)
			if tt.err != nil {
				svc.On("GetURLByCode", mock.Anything, tt.code).Return(nil, tt.err)
			} else {
				svc.On("GetURLByCode", mock.Anything, tt.code).Return(tt.entry, nil)
			}

			w := httptest.NewRecorder()
			setupRouter(svc, &MockDB{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r/"+tt.code, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
				assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_ListURLs(t *testing.T) {
	t.Run("returns all entries", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("ListURLs", mock.Anything).Return([]*model.URLEntry{
			sampleEntry("one1111111", "https://one.example"),
			sampleEntry("two2222222", "https://two.example"),
		}, nil)

		w := httptest.NewRecorder()
		setupRouter(svc, &MockDB{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/urls", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp []model.URLResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, "https://one.example", resp[0].OriginalURL)
		assert.Equal(t, baseURL+"/r/two2222222", resp[1].ShortURL)
	})

	t.Run("empty store returns empty array", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("ListURLs", mock.Anything).Return([]*model.URLEntry{}, nil)

		w := httptest.NewRecorder()
		setupRouter(svc, &MockDB{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/urls", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("returns 500 on store failure", func(t *testing.T) {
		svc := new(MockURLService)
		svc.On("ListURLs", mock.Anything).Return(nil, service.ErrStore)

		w := httptest.NewRecorder()
		setupRouter(svc, &MockDB{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/urls", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
