package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
)

const incidentColumns = `id, organization_id, service_id, title, description, status, started_at, resolved_at, created_by, created_at, updated_at`

const updateInsert = `INSERT INTO incident_updates (id, incident_id, message, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5)`

// CreateIncident inserts an incident together with its first timeline entry.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident, first *domain.IncidentUpdate) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const incidentInsert = `INSERT INTO incidents (id, organization_id, service_id, title, description, status, started_at, resolved_at, created_by, created_at, updated_at)
		SELECT $1, s.organization_id, s.id, $4, $5, $6, $7, $8, $9, $10, $11
		FROM services s WHERE s.id = $3 AND s.organization_id = $2`
	tag, err := tx.Exec(ctx, incidentInsert,
		incident.ID,
		incident.OrganizationID,
		incident.ServiceID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.StartedAt,
		incident.ResolvedAt,
		nilIfEmpty(incident.CreatedByID),
		incident.CreatedAt,
		incident.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	if first != nil {
		if _, err := tx.Exec(ctx, updateInsert, first.ID, incident.ID, first.Message, first.CreatedByID, first.CreatedAt); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

// GetIncident returns an incident owned by the organization.
func (r *Repository) GetIncident(ctx context.Context, organizationID, incidentID string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND organization_id = $2`
	return scanIncident(r.pool.QueryRow(ctx, query, incidentID, organizationID))
}

// FindOpenIncidentByTitle returns the non-resolved incident with a case-insensitively equal title.
func (r *Repository) FindOpenIncidentByTitle(ctx context.Context, organizationID, title string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE organization_id = $1 AND lower(title) = lower($2) AND status <> 'RESOLVED'
		LIMIT 1`
	return scanIncident(r.pool.QueryRow(ctx, query, organizationID, strings.TrimSpace(title)))
}

// UpdateIncidentStatus writes status, resolved_at and updated_at and appends the timeline entry atomically.
func (r *Repository) UpdateIncidentStatus(ctx context.Context, change domain.IncidentStatusChange) (*domain.Incident, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `UPDATE incidents SET status = $3, resolved_at = $4, updated_at = $5
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + incidentColumns
	incident, err := scanIncident(tx.QueryRow(ctx, query,
		change.IncidentID,
		change.OrganizationID,
		change.Status,
		change.ResolvedAt,
		change.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	update := change.Update
	if _, err := tx.Exec(ctx, updateInsert, update.ID, incident.ID, update.Message, update.CreatedByID, update.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return incident, nil
}

// AppendIncidentUpdate adds a timeline entry to an incident owned by the organization.
func (r *Repository) AppendIncidentUpdate(ctx context.Context, organizationID string, update *domain.IncidentUpdate) error {
	const query = `INSERT INTO incident_updates (id, incident_id, message, created_by, created_at)
		SELECT $1, i.id, $4, $5, $6 FROM incidents i WHERE i.id = $2 AND i.organization_id = $3`
	tag, err := r.pool.Exec(ctx, query, update.ID, update.IncidentID, organizationID, update.Message, update.CreatedByID, update.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListIncidents returns the organization's incidents newest first.
func (r *Repository) ListIncidents(ctx context.Context, organizationID string, filter repository.IncidentFilter) ([]domain.Incident, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + incidentColumns + ` FROM incidents WHERE organization_id = $1`)
	args := []any{organizationID}
	if filter.ServiceID != "" {
		args = append(args, filter.ServiceID)
		fmt.Fprintf(&sb, " AND service_id = $%d", len(args))
	}
	if filter.OpenOnly {
		sb.WriteString(" AND status <> 'RESOLVED'")
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, *incident)
	}
	return incidents, rows.Err()
}

// ListIncidentUpdates returns timelines newest first, optionally capped per incident.
func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentIDs []string, perIncident int) (map[string][]domain.IncidentUpdate, error) {
	result := make(map[string][]domain.IncidentUpdate, len(incidentIDs))
	if len(incidentIDs) == 0 {
		return result, nil
	}
	const query = `SELECT id, incident_id, message, created_by, created_at FROM (
			SELECT id, incident_id, message, created_by, created_at, seq,
				ROW_NUMBER() OVER (PARTITION BY incident_id ORDER BY created_at DESC, seq DESC) AS rn
			FROM incident_updates
			WHERE incident_id = ANY($1)
		) ranked
		WHERE $2 <= 0 OR rn <= $2
		ORDER BY incident_id, created_at DESC, seq DESC`
	rows, err := r.pool.Query(ctx, query, incidentIDs, perIncident)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var update domain.IncidentUpdate
		if err := rows.Scan(&update.ID, &update.IncidentID, &update.Message, &update.CreatedByID, &update.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		result[update.IncidentID] = append(result[update.IncidentID], update)
	}
	return result, rows.Err()
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	var status string
	var createdBy *string
	if err := row.Scan(
		&incident.ID,
		&incident.OrganizationID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Description,
		&status,
		&incident.StartedAt,
		&incident.ResolvedAt,
		&createdBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	incident.Status = domain.IncidentStatus(status)
	if createdBy != nil {
		incident.CreatedByID = *createdBy
	}
	return &incident, nil
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
