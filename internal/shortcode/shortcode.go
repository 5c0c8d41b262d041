package shortcode

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"
)

// Alphanumeric character set for short code generation
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// RandomLen is the number of random characters in a generated code.
	RandomLen = 7
	// CodeLen is the total length of a generated code: the random part
	// followed by three timestamp digits.
	CodeLen = RandomLen + 3
)

var ErrInvalidURL = errors.New("invalid URL format")

// Generator produces short codes. Codes are not unique by construction;
// the store's unique index is the arbiter.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator reading the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate returns RandomLen characters drawn uniformly from the
// alphanumeric alphabet followed by the current millisecond modulo 1000.
func (g *Generator) Generate() string {
	var b strings.Builder
	b.Grow(CodeLen)
	for range RandomLen {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	fmt.Fprintf(&b, "%03d", g.now().UnixMilli()%1000)
	return b.String()
}

// Canonicalize normalizes a long URL for hashing and comparison.
// It lowercases the scheme and host, removes default ports and strips a
// trailing slash. Query strings and fragments are kept since both can
// change where a redirect lands.
func Canonicalize(longURL string) (string, error) {
	u, err := url.Parse(longURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// u.Host might be "example.com:443" → "example.com"
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = strings.TrimSuffix(u.RawPath, "/")

	return u.String(), nil
}
