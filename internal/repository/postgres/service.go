package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
)

const serviceColumns = `id, organization_id, name, description, status, monitor_url, monitor_token, created_at, updated_at`

const serviceInsert = `INSERT INTO services (id, organization_id, name, description, status, monitor_url, monitor_token, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// CreateService inserts a service.
func (r *Repository) CreateService(ctx context.Context, svc *domain.Service) error {
	_, err := r.pool.Exec(ctx, serviceInsert, svc.ID, svc.OrganizationID, svc.Name, svc.Description, svc.Status,
		svc.MonitorURL, bytesToNil(svc.MonitorToken), svc.CreatedAt, svc.UpdatedAt)
	return mapError(err)
}

// GetService returns a service owned by the organization.
func (r *Repository) GetService(ctx context.Context, organizationID, serviceID string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1 AND organization_id = $2`
	return scanService(r.pool.QueryRow(ctx, query, serviceID, organizationID))
}

// ListServices returns the organization's services in creation order.
func (r *Repository) ListServices(ctx context.Context, organizationID string) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE organization_id = $1 ORDER BY created_at ASC, name ASC`
	return r.queryServices(ctx, query, organizationID)
}

// ListMonitoredServices returns every service with a monitor URL across organizations.
func (r *Repository) ListMonitoredServices(ctx context.Context) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE monitor_url <> '' ORDER BY organization_id, created_at`
	return r.queryServices(ctx, query)
}

// UpdateService persists the mutable service fields.
func (r *Repository) UpdateService(ctx context.Context, svc *domain.Service) error {
	const query = `UPDATE services
		SET name = $3, description = $4, status = $5, monitor_url = $6, monitor_token = $7, updated_at = $8
		WHERE id = $1 AND organization_id = $2`
	tag, err := r.pool.Exec(ctx, query, svc.ID, svc.OrganizationID, svc.Name, svc.Description, svc.Status,
		svc.MonitorURL, bytesToNil(svc.MonitorToken), svc.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetServiceStatus writes status and updated_at together and returns the post-write row.
func (r *Repository) SetServiceStatus(ctx context.Context, organizationID, serviceID string, status domain.ServiceStatus, at time.Time) (*domain.Service, error) {
	query := `UPDATE services SET status = $3, updated_at = $4
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + serviceColumns
	return scanService(r.pool.QueryRow(ctx, query, serviceID, organizationID, status, at))
}

// DeleteService removes a service and everything hanging off it in one transaction.
func (r *Repository) DeleteService(ctx context.Context, organizationID, serviceID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM services WHERE id = $1 AND organization_id = $2 FOR UPDATE`, serviceID, organizationID).Scan(&id); err != nil {
		return mapError(err)
	}
	statements := []string{
		`DELETE FROM incident_updates WHERE incident_id IN (SELECT id FROM incidents WHERE service_id = $1)`,
		`DELETE FROM incidents WHERE service_id = $1`,
		`DELETE FROM service_metrics WHERE service_id = $1`,
		`DELETE FROM services WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) queryServices(ctx context.Context, query string, args ...any) ([]domain.Service, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var svc domain.Service
	var status string
	if err := row.Scan(&svc.ID, &svc.OrganizationID, &svc.Name, &svc.Description, &status,
		&svc.MonitorURL, &svc.MonitorToken, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	svc.Status = domain.ServiceStatus(status)
	return &svc, nil
}

// InsertMetric appends a health observation.
func (r *Repository) InsertMetric(ctx context.Context, metric *domain.ServiceMetric) error {
	const query = `INSERT INTO service_metrics (id, service_id, status, latency_ms, uptime, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, metric.ID, metric.ServiceID, metric.Status, metric.LatencyMS, metric.Uptime, metric.RecordedAt)
	return mapError(err)
}

// ListMetrics returns the latest limit metrics for a service in ascending time order.
func (r *Repository) ListMetrics(ctx context.Context, serviceID string, limit int) ([]domain.ServiceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, service_id, status, latency_ms, uptime, recorded_at FROM (
			SELECT id, service_id, status, latency_ms, uptime, recorded_at
			FROM service_metrics
			WHERE service_id = $1
			ORDER BY recorded_at DESC
			LIMIT $2
		) recent
		ORDER BY recorded_at ASC`
	rows, err := r.pool.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	metrics := make([]domain.ServiceMetric, 0, limit)
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// LatestMetrics returns the newest metric per service of an organization.
func (r *Repository) LatestMetrics(ctx context.Context, organizationID string) (map[string]domain.ServiceMetric, error) {
	const query = `SELECT DISTINCT ON (m.service_id) m.id, m.service_id, m.status, m.latency_ms, m.uptime, m.recorded_at
		FROM service_metrics m
		INNER JOIN services s ON s.id = m.service_id
		WHERE s.organization_id = $1
		ORDER BY m.service_id, m.recorded_at DESC`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	latest := make(map[string]domain.ServiceMetric)
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		latest[metric.ServiceID] = metric
	}
	return latest, rows.Err()
}

func scanMetric(row pgx.Row) (domain.ServiceMetric, error) {
	var metric domain.ServiceMetric
	var status string
	if err := row.Scan(&metric.ID, &metric.ServiceID, &status, &metric.LatencyMS, &metric.Uptime, &metric.RecordedAt); err != nil {
		return domain.ServiceMetric{}, mapError(err)
	}
	metric.Status = domain.ServiceStatus(status)
	return metric, nil
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
