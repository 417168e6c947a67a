package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
	"github.com/splax/statuspage/pkg/config"
	"github.com/splax/statuspage/pkg/crypto"
	jwtpkg "github.com/splax/statuspage/pkg/jwt"
)

var errInvalidCredentials = apperr.Unauthorized("invalid email or password")

// Service handles authentication and tenant selection.
type Service struct {
	users  repository.UserRepository
	orgs   repository.OrganizationRepository
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, orgs repository.OrganizationRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, orgs: orgs, logger: logger.With("component", "auth"), cfg: cfg, now: time.Now}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Session is the result of a successful signup or login.
type Session struct {
	User         *domain.User         `json:"user"`
	Organization *domain.Organization `json:"organization,omitempty"`
	Tokens       TokenPair            `json:"tokens"`
}

// Principal is the verified caller behind a bearer token.
type Principal struct {
	User           *domain.User
	OrganizationID string
	Role           string
}

// Signup registers a new user.
func (s Service) Signup(ctx context.Context, email, password string) (*Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, apperr.Invalid("email", "a valid email is required")
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) || errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, apperr.Invalid("password", err.Error())
		}
		return nil, apperr.Internal(err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(addr.Address),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict("email is already registered")
		}
		return nil, apperr.Internal(err)
	}
	tokens, err := s.issueTokens(user.ID, "")
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return &Session{User: user, Tokens: tokens}, nil
}

// Login authenticates a user. When organizationSlug is empty the first
// organization the user belongs to is selected, if any.
func (s Service) Login(ctx context.Context, email, password, organizationSlug string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, apperr.Internal(err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}

	var org *domain.Organization
	slug := strings.TrimSpace(organizationSlug)
	if slug != "" {
		org, err = s.orgs.GetOrganizationBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("organization not found")
			}
			return nil, apperr.Internal(err)
		}
		if _, err := s.orgs.GetMembership(ctx, org.ID, user.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("organization not found")
			}
			return nil, apperr.Internal(err)
		}
	} else {
		orgs, err := s.orgs.ListOrganizationsByUser(ctx, user.ID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if len(orgs) > 0 {
			org = &orgs[0]
		}
	}
	orgID := ""
	if org != nil {
		orgID = org.ID
	}
	tokens, err := s.issueTokens(user.ID, orgID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("user logged in", "user_id", user.ID, "organization_id", orgID)
	return &Session{User: user, Organization: org, Tokens: tokens}, nil
}

// IssueForOrganization returns tokens scoped to an organization the user belongs to.
func (s Service) IssueForOrganization(ctx context.Context, userID, organizationID string) (TokenPair, error) {
	if _, err := s.orgs.GetMembership(ctx, organizationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, apperr.NotFound("organization not found")
		}
		return TokenPair{}, apperr.Internal(err)
	}
	tokens, err := s.issueTokens(userID, organizationID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return tokens, nil
}

// Refresh exchanges a refresh token for a new pair with the same tenant.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	principal, err := s.Authorize(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	tokens, err := s.issueTokens(principal.User.ID, principal.OrganizationID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return tokens, nil
}

// Authorize validates a bearer token and confirms the tenant membership still exists.
func (s Service) Authorize(ctx context.Context, token string) (*Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, apperr.Unauthorized("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid token")
		}
		return nil, apperr.Internal(err)
	}
	principal := &Principal{User: user}
	if claims.OrganizationID == "" {
		return principal, nil
	}
	member, err := s.orgs.GetMembership(ctx, claims.OrganizationID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("organization access revoked")
		}
		return nil, apperr.Internal(err)
	}
	principal.OrganizationID = member.OrganizationID
	principal.Role = member.Role
	return principal, nil
}

func (s Service) issueTokens(userID, organizationID string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, organizationID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, organizationID, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
