package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

// Organizations implements store.OrganizationStore against the control
// database.
type Organizations struct {
	pool *pgxpool.Pool
}

func NewOrganizations(pool *pgxpool.Pool) *Organizations {
	return &Organizations{pool: pool}
}

func (s *Organizations) Save(ctx context.Context, org *models.Organization) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (domain, name, billing_email, account_id, payment_plan, seat_limit, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (domain) DO UPDATE SET
		   name = EXCLUDED.name,
		   billing_email = EXCLUDED.billing_email,
		   account_id = EXCLUDED.account_id,
		   payment_plan = EXCLUDED.payment_plan,
		   seat_limit = EXCLUDED.seat_limit,
		   updated_at = EXCLUDED.updated_at`,
		org.Domain, org.Name, org.BillingEmail, org.AccountID, org.PaymentPlan,
		org.SeatLimit, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save organization: %w", err)
	}
	return nil
}

func (s *Organizations) Get(ctx context.Context, domain string) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT domain, name, billing_email, account_id, payment_plan, seat_limit, created_at, updated_at
		 FROM organizations WHERE domain = $1`, domain,
	).Scan(&o.Domain, &o.Name, &o.BillingEmail, &o.AccountID, &o.PaymentPlan,
		&o.SeatLimit, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

func (s *Organizations) GetAll(ctx context.Context, opts store.ListOptions) (store.Page[*models.Organization], error) {
	var page store.Page[*models.Organization]

	cursor, err := keys.DecodeCursor(opts.Cursor)
	if err != nil {
		return page, err
	}
	limit := store.ClampLimit(opts.Limit)

	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if cursor != nil {
		conditions = append(conditions, fmt.Sprintf("domain > $%d", argIdx))
		args = append(args, cursor.Last)
		argIdx++
	}
	if opts.Search != "" {
		conditions = append(conditions,
			fmt.Sprintf("(domain ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+opts.Search+"%")
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT domain, name, billing_email, account_id, payment_plan, seat_limit, created_at, updated_at
		 FROM organizations WHERE %s ORDER BY domain LIMIT $%d`,
		strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return page, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.Domain, &o.Name, &o.BillingEmail, &o.AccountID,
			&o.PaymentPlan, &o.SeatLimit, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return page, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, &o)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}

	if len(orgs) > limit {
		orgs = orgs[:limit]
		page.NextCursor = keys.EncodeCursor(&keys.Cursor{Last: orgs[len(orgs)-1].Domain})
	}
	page.Items = orgs
	return page, nil
}

func (s *Organizations) Delete(ctx context.Context, domain string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE domain = $1`, domain)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
