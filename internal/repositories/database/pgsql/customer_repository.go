package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primebank/agent_banking_core/internal/apperrors"
	"github.com/primebank/agent_banking_core/internal/core/domain"
	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

type PgxCustomerRepository struct {
	pool *pgxpool.Pool
}

// newPgxCustomerRepository creates a read-only repository over the customer
// records owned by onboarding.
func newPgxCustomerRepository(pool *pgxpool.Pool) portsrepo.CustomerReader {
	return &PgxCustomerRepository{pool: pool}
}

var _ portsrepo.CustomerReader = (*PgxCustomerRepository)(nil)

// FindCustomerByID retrieves a customer by its unique identifier.
func (r *PgxCustomerRepository) FindCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	query := `
		SELECT customer_id, full_name, kyc_level, high_risk, pin_set,
			created_at, created_by, last_updated_at, last_updated_by
		FROM customers
		WHERE customer_id = $1;
	`
	var c domain.Customer
	err := r.pool.QueryRow(ctx, query, customerID).Scan(
		&c.CustomerID,
		&c.FullName,
		&c.KYCLevel,
		&c.HighRisk,
		&c.PINSet,
		&c.CreatedAt,
		&c.CreatedBy,
		&c.LastUpdatedAt,
		&c.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find customer by ID %s: %w", customerID, err)
	}
	return &c, nil
}
