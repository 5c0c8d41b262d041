package model

import (
	"time"

	"github.com/google/uuid"
)

// URLEntry represents a shortened URL as stored and served.
// OriginalURL is only populated after decryption and is never persisted.
type URLEntry struct {
	ID           uuid.UUID  `json:"id"`
	OriginalURL  string     `json:"original_url"`
	EncryptedURL string     `json:"-"`
	URLTag       string     `json:"-"`
	ShortCode    string     `json:"short_code"`
	Clicks       int64      `json:"clicks"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry has an expiry at or before now.
func (e *URLEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// CreateURLRequest represents the request body for creating a short URL
type CreateURLRequest struct {
	URL           string  `json:"url"`
	ExpiresInDays *int    `json:"expires_in_days,omitempty"`
	ShortCode     *string `json:"short_code,omitempty"`
}

// URLResponse represents a URL entry as returned by the API
type URLResponse struct {
	ID          uuid.UUID  `json:"id"`
	OriginalURL string     `json:"original_url"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// NewURLResponse builds the API view of an entry. baseURL is the public
// prefix that the redirect route is mounted under.
func NewURLResponse(e *URLEntry, baseURL string) URLResponse {
	return URLResponse{
		ID:          e.ID,
		OriginalURL: e.OriginalURL,
		ShortCode:   e.ShortCode,
		ShortURL:    baseURL + "/r/" + e.ShortCode,
		Clicks:      e.Clicks,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
