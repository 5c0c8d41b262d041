package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name       string
		input      CreateInput
		wantField  string
		wantReason string
	}{
		{
			name:  "plain URL",
			input: CreateInput{URL: "https://example.com"},
		},
		{
			name:  "URL with path and query",
			input: CreateInput{URL: "http://example.com:8080/a/b?c=d#e"},
		},
		{
			name:       "empty URL",
			input:      CreateInput{URL: ""},
			wantField:  FieldOriginalURL,
			wantReason: ReasonInvalidURL,
		},
		{
			name:       "missing scheme",
			input:      CreateInput{URL: "example.com/page"},
			wantField:  FieldOriginalURL,
			wantReason: ReasonInvalidURL,
		},
		{
			name:       "missing host",
			input:      CreateInput{URL: "https:///page"},
			wantField:  FieldOriginalURL,
			wantReason: ReasonInvalidURL,
		},
		{
			name:       "garbage",
			input:      CreateInput{URL: "not a url"},
			wantField:  FieldOriginalURL,
			wantReason: ReasonInvalidURL,
		},
		{
			name:       "custom code of length 2",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("ab")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidLength,
		},
		{
			name:  "custom code of length 3",
			input: CreateInput{URL: "https://example.com", ShortCode: ptr("abc")},
		},
		{
			name:  "custom code of length 20",
			input: CreateInput{URL: "https://example.com", ShortCode: ptr(strings.Repeat("a", 20))},
		},
		{
			name:       "custom code of length 21",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr(strings.Repeat("a", 21))},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidLength,
		},
		{
			name:       "empty custom code",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidLength,
		},
		{
			name:  "custom code with dash and underscore",
			input: CreateInput{URL: "https://example.com", ShortCode: ptr("my-code_1")},
		},
		{
			name:       "custom code with slash",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("my/alias")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "custom code with query marker",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("abc?x=1")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "custom code with fragment marker",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("abc#top")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "custom code with space",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr("my code")},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "long custom code with slash reports length",
			input:      CreateInput{URL: "https://example.com", ShortCode: ptr(strings.Repeat("a/", 11))},
			wantField:  FieldShortCode,
			wantReason: ReasonInvalidLength,
		},
		{
			name:  "maximum expiry",
			input: CreateInput{URL: "https://example.com", ExpiresInDays: ptr(MaxExpiryDays)},
		},
		{
			name:       "expiry past maximum",
			input:      CreateInput{URL: "https://example.com", ExpiresInDays: ptr(MaxExpiryDays + 1)},
			wantField:  FieldExpiresInDays,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "expiry beyond timestamp range",
			input:      CreateInput{URL: "https://example.com", ExpiresInDays: ptr(213503983)},
			wantField:  FieldExpiresInDays,
			wantReason: ReasonInvalidValue,
		},
		{
			name:  "positive expiry",
			input: CreateInput{URL: "https://example.com", ExpiresInDays: ptr(7)},
		},
		{
			name:       "zero expiry",
			input:      CreateInput{URL: "https://example.com", ExpiresInDays: ptr(0)},
			wantField:  FieldExpiresInDays,
			wantReason: ReasonInvalidValue,
		},
		{
			name:       "negative expiry",
			input:      CreateInput{URL: "https://example.com", ExpiresInDays: ptr(-3)},
			wantField:  FieldExpiresInDays,
			wantReason: ReasonInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreate(tt.input)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantReason, verr.Reason)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := New(FieldShortCode, ReasonAlreadyExists)
	assert.Equal(t, "validation failed: short_code: already_exists", err.Error())
}
