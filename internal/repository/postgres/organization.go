package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/statuspage/internal/domain"
)

const organizationColumns = `id, slug, name, notify_email, created_at, updated_at`

// CreateOrganization inserts the organization, its owner membership and seed services in one transaction.
func (r *Repository) CreateOrganization(ctx context.Context, org *domain.Organization, owner *domain.Membership, services []domain.Service) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const orgInsert = `INSERT INTO organizations (id, slug, name, notify_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, orgInsert, org.ID, org.Slug, org.Name, org.NotifyEmail, org.CreatedAt, org.UpdatedAt); err != nil {
		return mapError(err)
	}
	if owner != nil {
		const memberInsert = `INSERT INTO memberships (organization_id, user_id, role, created_at)
			VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(ctx, memberInsert, owner.OrganizationID, owner.UserID, owner.Role, owner.CreatedAt); err != nil {
			return mapError(err)
		}
	}
	if len(services) > 0 {
		batch := &pgx.Batch{}
		for _, svc := range services {
			batch.Queue(serviceInsert, svc.ID, svc.OrganizationID, svc.Name, svc.Description, svc.Status,
				svc.MonitorURL, bytesToNil(svc.MonitorToken), svc.CreatedAt, svc.UpdatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range services {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return mapError(err)
			}
		}
		if err := br.Close(); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

// GetOrganizationByID returns an organization by identifier.
func (r *Repository) GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.pool.QueryRow(ctx, query, id))
}

// GetOrganizationBySlug returns an organization by its public slug.
func (r *Repository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	return scanOrganization(r.pool.QueryRow(ctx, query, slug))
}

// UpdateOrganization persists the mutable organization fields.
func (r *Repository) UpdateOrganization(ctx context.Context, org *domain.Organization) error {
	const query = `UPDATE organizations SET name = $2, notify_email = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, org.ID, org.Name, org.NotifyEmail, org.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

// GetMembership returns the membership of a user in an organization.
func (r *Repository) GetMembership(ctx context.Context, organizationID, userID string) (*domain.Membership, error) {
	const query = `SELECT organization_id, user_id, role, created_at FROM memberships
		WHERE organization_id = $1 AND user_id = $2`
	var m domain.Membership
	if err := r.pool.QueryRow(ctx, query, organizationID, userID).Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// UpsertMembership adds a member or changes the role of an existing one.
func (r *Repository) UpsertMembership(ctx context.Context, member *domain.Membership) error {
	const query = `INSERT INTO memberships (organization_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, query, member.OrganizationID, member.UserID, member.Role, member.CreatedAt)
	return mapError(err)
}

// ListOrganizationsByUser returns organizations the user belongs to, oldest membership first.
func (r *Repository) ListOrganizationsByUser(ctx context.Context, userID string) ([]domain.Organization, error) {
	const query = `SELECT o.id, o.slug, o.name, o.notify_email, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	orgs := make([]domain.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var org domain.Organization
	if err := row.Scan(&org.ID, &org.Slug, &org.Name, &org.NotifyEmail, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &org, nil
}
