package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// SLAPolicyRepository stores SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	// GetActiveByPriority returns the single active policy for the priority,
	// or pgx.ErrNoRows when none is configured.
	GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
	ListActive(ctx context.Context) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, name, priority, response_time_hours, resolution_time_hours, is_active, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, priority, response_time_hours, resolution_time_hours, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseTimeHours,
		policy.ResolutionTimeHours,
		policy.Active,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, priority=$2, response_time_hours=$3,
            resolution_time_hours=$4, is_active=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseTimeHours,
		policy.ResolutionTimeHours,
		policy.Active,
		policy.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *slaPolicyRepository) GetActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies
        WHERE priority=$1 AND is_active=TRUE
        ORDER BY updated_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, priority)
}

func (r *slaPolicyRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Priority,
		&policy.ResponseTimeHours,
		&policy.ResolutionTimeHours,
		&policy.Active,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM sla_policies ORDER BY priority, created_at`)
}

func (r *slaPolicyRepository) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM sla_policies WHERE is_active=TRUE ORDER BY priority, created_at`)
}

func (r *slaPolicyRepository) list(ctx context.Context, query string) ([]domain.SLAPolicy, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Priority,
			&policy.ResponseTimeHours,
			&policy.ResolutionTimeHours,
			&policy.Active,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
