package domain

import (
	"regexp"
	"time"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Organization is the tenant that owns services and incidents.
type Organization struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	NotifyEmail string    `json:"notify_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership links a user to an organization with a role.
type Membership struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin reports whether the member may administer the organization.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// ValidSlug reports whether slug is usable as a public organization handle.
func ValidSlug(slug string) bool {
	return slug != "" && len(slug) <= 64 && slugPattern.MatchString(slug)
}
