package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestAuthenticator_RoundTrip(t *testing.T) {
	a, err := NewAuthenticator(testSecret, "logstory", time.Hour)
	require.NoError(t, err)

	tok, err := a.Issue("alice")
	require.NoError(t, err)
	sub, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	_, err = a.Issue("")
	assert.ErrorIs(t, err, errEmptySubject)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a, err := NewAuthenticator(testSecret, "logstory", time.Hour)
	require.NoError(t, err)

	other, err := NewAuthenticator("another-secret-0123456789", "logstory", time.Hour)
	require.NoError(t, err)
	wrongKey, err := other.Issue("alice")
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := otherIssuer.Issue("alice")
	require.NoError(t, err)

	past, err := NewAuthenticator(testSecret, "logstory", time.Hour)
	require.NoError(t, err)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue("alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "logstory",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice",
		Issuer:  "logstory",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "logstory",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"alg none":     none,
		"no expiry":    noExpiry,
		"no subject":   noSubject,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			assert.Error(t, err)
		})
	}
}

func TestNewAuthenticator_Invalid(t *testing.T) {
	_, err := NewAuthenticator("", "x", time.Hour)
	assert.ErrorIs(t, err, errMissingSecret)
	_, err = NewAuthenticator(testSecret, "x", 0)
	assert.Error(t, err)
}

func TestRequestToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
		ok     bool
	}{
		{"bearer header", "Bearer abc", "", "abc", true},
		{"query param", "", "token=xyz", "xyz", true},
		{"header wins", "Bearer abc", "token=xyz", "abc", true},
		{"basic auth", "Basic dXNlcjpwYXNz", "", "", false},
		{"empty bearer", "Bearer ", "", "", false},
		{"nothing", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := requestToken(r)
			if !tt.ok {
				assert.ErrorIs(t, err, errNoToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
