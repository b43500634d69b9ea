// Package services – UserService
//
// This file implements UserService, which owns registration, login, profile
// reads and updates, and user search. Passwords are checked for strength and
// hashed through auth.Passwords; successful registration and login return a
// signed bearer token from auth.Tokens. Profile pictures given inline are
// uploaded through storage.Images and only the resulting URL is stored.
//
// Emails are case-folded before storage and lookup so that "Ann@X.io" and
// "ann@x.io" are the same account. Display names are NFC-normalized and have
// their whitespace collapsed.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-realtime/internal/auth"
	"github.com/tbourn/go-chat-realtime/internal/domain"
	"github.com/tbourn/go-chat-realtime/internal/repo"
	"github.com/tbourn/go-chat-realtime/internal/storage"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// UserUpdate carries the optional fields of a profile update. Nil fields are
// left unchanged.
type UserUpdate struct {
	Name        *string
	Email       *string
	Description *string
	PhoneNo     *string
	DOB         *time.Time
	Pic         *string
}

// UserService coordinates accounts and profiles.
type UserService struct {
	DB        *gorm.DB
	Tokens    *auth.Tokens
	Passwords auth.Passwords
	Images    storage.Images

	// SearchLimit caps search results (default 20).
	SearchLimit int
}

// Register creates an account and signs the caller in.
func (s *UserService) Register(ctx context.Context, name, email, password, pic string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register")
	defer span.End()

	name = normalizeName(name)
	email = foldEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	if err := s.Passwords.Validate(password); err != nil {
		return nil, err
	}

	if _, err := repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	picURL, err := s.Images.Resolve(ctx, "avatars", pic)
	if err != nil {
		return nil, err
	}
	if picURL == "" {
		picURL = domain.DefaultAvatarURL
	}

	u := &domain.User{Name: name, Email: email, PasswordHash: hash, Pic: picURL}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return s.signIn(u)
}

// Login verifies credentials. Unknown emails and wrong passwords fail alike.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, foldEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.Passwords.Matches(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return s.signIn(u)
}

// Me returns the profile of id.
func (s *UserService) Me(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Search finds other users whose name or email contains term.
func (s *UserService) Search(ctx context.Context, requesterID, term string) ([]domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Search",
		trace.WithAttributes(attribute.String("user.id", requesterID)),
	)
	defer span.End()

	limit := s.SearchLimit
	if limit <= 0 {
		limit = 20
	}
	return repo.SearchUsers(ctx, s.DB, cases.Fold().String(term), requesterID, limit)
}

// Update applies a partial profile update and returns the stored profile.
func (s *UserService) Update(ctx context.Context, id string, in UserUpdate) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	fields := map[string]any{}
	if in.Name != nil {
		name := normalizeName(*in.Name)
		if name == "" {
			return nil, ErrInvalidInput
		}
		fields["name"] = name
	}
	if in.Email != nil {
		email := foldEmail(*in.Email)
		if email == "" {
			return nil, ErrInvalidInput
		}
		fields["email"] = email
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.PhoneNo != nil {
		fields["phone_no"] = strings.TrimSpace(*in.PhoneNo)
	}
	if in.DOB != nil {
		fields["dob"] = in.DOB.UTC()
	}
	if in.Pic != nil {
		url, err := s.Images.Resolve(ctx, "avatars", *in.Pic)
		if err != nil {
			return nil, err
		}
		if url == "" {
			url = domain.DefaultAvatarURL
		}
		fields["pic"] = url
	}

	if err := repo.UpdateUser(ctx, s.DB, id, fields); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrUserExists
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Me(ctx, id)
}

func (s *UserService) signIn(u *domain.User) (*AuthResult, error) {
	tok, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok, User: u}, nil
}

// normalizeName trims, collapses whitespace, and NFC-normalizes a display name.
func normalizeName(s string) string {
	return norm.NFC.String(whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " "))
}

// foldEmail trims and case-folds an email address.
func foldEmail(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
