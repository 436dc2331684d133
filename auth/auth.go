// Package auth hashes passwords and issues/validates bearer tokens.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/Skryldev/image-host/errors"
)

// ErrBadToken is the single failure reported for any unusable token.
var ErrBadToken = errors.New("Could not validate credentials")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.New(apperrors.CategoryInvalid, "auth.hash", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Tokens signs and verifies access tokens. The subject claim carries the
// user id.
type Tokens struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a Tokens for one of HS256, HS384 or HS512.
func NewTokens(secret, algorithm string, ttl time.Duration) (*Tokens, error) {
	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, apperrors.Newf(apperrors.CategoryConfig, "auth.tokens", "unsupported algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, apperrors.Newf(apperrors.CategoryConfig, "auth.tokens", "secret must not be empty")
	}
	return &Tokens{secret: []byte(secret), method: method, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for userID.
func (t *Tokens) Issue(userID int64) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CategoryAuth, "auth.issue", err)
	}
	return signed, nil
}

// Authenticate validates token and returns the user id it was issued for.
func (t *Tokens) Authenticate(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return 0, apperrors.New(apperrors.CategoryAuth, "auth.authenticate", ErrBadToken)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.New(apperrors.CategoryAuth, "auth.authenticate", ErrBadToken)
	}
	return id, nil
}
