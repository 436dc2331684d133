package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/Skryldev/image-host/auth"
	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// Users handles registration, login and token resolution.
type Users struct {
	users  core.UserRepository
	tokens *auth.Tokens
	logger core.Logger
}

func NewUsers(users core.UserRepository, tokens *auth.Tokens, logger core.Logger) *Users {
	return &Users{users: users, tokens: tokens, logger: logger}
}

// Register creates an account. Emails are compared case-insensitively.
func (s *Users) Register(ctx context.Context, email, password string) (*core.User, error) {
	const op = "users.register"

	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperrors.New(apperrors.CategoryInvalid, op, errors.New("Invalid email address"))
	}
	if password == "" {
		return nil, apperrors.New(apperrors.CategoryInvalid, op, errors.New("Password required"))
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.New(apperrors.CategoryConflict, op, apperrors.ErrEmailTaken)
	} else if !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &core.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the credentials and returns a bearer token.
func (s *Users) Login(ctx context.Context, email, password string) (string, error) {
	const op = "users.login"

	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
			return "", apperrors.New(apperrors.CategoryAuth, op, apperrors.ErrInvalidCredentials)
		}
		return "", err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return "", apperrors.New(apperrors.CategoryAuth, op, apperrors.ErrInvalidCredentials)
	}
	return s.tokens.Issue(u.ID)
}

// Authenticate resolves a bearer token to its user. Tokens of deleted users
// are rejected.
func (s *Users) Authenticate(ctx context.Context, token string) (*core.User, error) {
	id, err := s.tokens.Authenticate(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
			return nil, apperrors.New(apperrors.CategoryAuth, "users.authenticate", auth.ErrBadToken)
		}
		return nil, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
