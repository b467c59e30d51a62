package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

var (
	errNoToken       = errors.New("missing bearer token")
	errEmptySubject  = errors.New("token has no subject")
	errMissingSecret = errors.New("auth secret is required")
)

// Authenticator issues and verifies HS256 bearer tokens. The token subject
// is the upload owner.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(secret, issuer string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid token ttl %v", ttl)
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for subject.
func (a *Authenticator) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errEmptySubject
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// Verify checks a signed token and returns its subject.
func (a *Authenticator) Verify(ss string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(ss, &claims, a.secretParser,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errEmptySubject
	}
	return claims.Subject, nil
}

func (a *Authenticator) secretParser(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return a.secret, nil
}

// requestToken extracts the bearer token from the Authorization header.
// Browsers cannot set headers on websocket upgrades, so the token query
// parameter is accepted as well.
func requestToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearerPrefix) {
			return "", errNoToken
		}
		if tok := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)); tok != "" {
			return tok, nil
		}
		return "", errNoToken
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", errNoToken
}
