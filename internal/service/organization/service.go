package organization

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
)

const maxNameLength = 120

// CreateInput carries organization onboarding attributes.
type CreateInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	NotifyEmail string `json:"notify_email"`
}

// UpdateInput carries a partial organization update.
type UpdateInput struct {
	Name        *string `json:"name"`
	NotifyEmail *string `json:"notify_email"`
}

// MemberInput adds an existing user to an organization.
type MemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service handles organization onboarding and settings.
type Service struct {
	repo      repository.OrganizationRepository
	users     repository.UserRepository
	templates []Template
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Service. Nil templates fall back to DefaultTemplates.
func New(repo repository.OrganizationRepository, users repository.UserRepository, templates []Template, logger *slog.Logger) Service {
	if templates == nil {
		templates = DefaultTemplates
	}
	return Service{repo: repo, users: users, templates: templates, logger: logger.With("component", "organization"), now: time.Now}
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.Invalid("name", "name is required")
	}
	if len(name) > maxNameLength {
		return "", apperr.Invalid("name", "name is too long")
	}
	return name, nil
}

func validEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", apperr.Invalid("notify_email", "notify_email must be a valid address")
	}
	return addr.Address, nil
}

// Create registers an organization, makes the creator its admin and seeds default services.
func (s Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Organization, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	name, err := validName(input.Name)
	if err != nil {
		return nil, err
	}
	slug := strings.TrimSpace(input.Slug)
	if !domain.ValidSlug(slug) {
		return nil, apperr.Invalid("slug", "slug may only contain lowercase letters, numbers and hyphens")
	}
	email, err := validEmail(input.NotifyEmail)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOrganizationBySlug(ctx, slug); err == nil {
		return nil, apperr.Conflict("slug is already taken")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	org := &domain.Organization{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		NotifyEmail: email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &domain.Membership{OrganizationID: org.ID, UserID: userID, Role: domain.RoleAdmin, CreatedAt: now}
	services := make([]domain.Service, 0, len(s.templates))
	for _, tpl := range s.templates {
		status := domain.ServiceOperational
		if parsed, ok := domain.ParseServiceStatus(tpl.Status); ok {
			status = parsed
		}
		services = append(services, domain.Service{
			ID:             uuid.NewString(),
			OrganizationID: org.ID,
			Name:           tpl.Name,
			Description:    tpl.Description,
			Status:         status,
			MonitorURL:     tpl.MonitorURL,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err := s.repo.CreateOrganization(ctx, org, owner, services); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, apperr.Conflict("slug is already taken")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Info("organization created", "organization_id", org.ID, "slug", slug, "owner_id", userID, "services", len(services))
	return org, nil
}

// Get returns the organization if the user is a member.
func (s Service) Get(ctx context.Context, userID, organizationID string) (*domain.Organization, error) {
	if _, err := s.membership(ctx, userID, organizationID); err != nil {
		return nil, err
	}
	org, err := s.repo.GetOrganizationByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	return org, nil
}

// ListForUser returns every organization the user belongs to.
func (s Service) ListForUser(ctx context.Context, userID string) ([]domain.Organization, error) {
	orgs, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if orgs == nil {
		orgs = []domain.Organization{}
	}
	return orgs, nil
}

// Update renames the organization or changes its notification address. Admins only.
func (s Service) Update(ctx context.Context, userID, organizationID string, input UpdateInput) (*domain.Organization, error) {
	if input.Name == nil && input.NotifyEmail == nil {
		return nil, apperr.Invalid("", "no fields to update")
	}
	member, err := s.membership(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if !member.IsAdmin() {
		return nil, apperr.Unauthorized("only organization admins can update settings")
	}
	org, err := s.repo.GetOrganizationByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	if input.Name != nil {
		name, err := validName(*input.Name)
		if err != nil {
			return nil, err
		}
		org.Name = name
	}
	if input.NotifyEmail != nil {
		email, err := validEmail(*input.NotifyEmail)
		if err != nil {
			return nil, err
		}
		org.NotifyEmail = email
	}
	org.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrganization(ctx, org); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Info("organization updated", "organization_id", org.ID, "user_id", userID)
	return org, nil
}

// AddMember grants an existing user access to the organization. Admins only.
func (s Service) AddMember(ctx context.Context, userID, organizationID string, input MemberInput) (*domain.Membership, error) {
	member, err := s.membership(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if !member.IsAdmin() {
		return nil, apperr.Unauthorized("only organization admins can add members")
	}
	role := strings.ToLower(strings.TrimSpace(input.Role))
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleMember && role != domain.RoleAdmin {
		return nil, apperr.Invalid("role", "role must be admin or member")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, apperr.Invalid("email", "email is required")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}
	added := &domain.Membership{OrganizationID: organizationID, UserID: user.ID, Role: role, CreatedAt: s.now().UTC()}
	if err := s.repo.UpsertMembership(ctx, added); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Info("member added", "organization_id", organizationID, "user_id", user.ID, "role", role)
	return added, nil
}

func (s Service) membership(ctx context.Context, userID, organizationID string) (*domain.Membership, error) {
	if userID == "" || organizationID == "" {
		return nil, apperr.Unauthorized("organization context required")
	}
	member, err := s.repo.GetMembership(ctx, organizationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	return member, nil
}
