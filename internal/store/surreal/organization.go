package surreal

import (
	"context"
	"fmt"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

const (
	organizationTable = "organization"
	// All organizations share one partition; the domain is the sort key.
	organizationPartition = "ORG"
)

type organizationRecord struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
	models.Organization
}

// Organizations implements store.OrganizationStore against SurrealDB.
type Organizations struct {
	db *surrealdb.DB
}

func NewOrganizations(db *surrealdb.DB) *Organizations {
	return &Organizations{db: db}
}

func (s *Organizations) Save(ctx context.Context, org *models.Organization) error {
	rec := organizationRecord{PK: organizationPartition, SK: org.Domain, Organization: *org}
	_, err := queryRows[organizationRecord](ctx, s.db,
		"UPSERT $rid CONTENT $content",
		map[string]any{
			"rid":     recordID(organizationTable, organizationPartition, org.Domain),
			"content": rec,
		})
	if err != nil {
		return fmt.Errorf("save organization: %w", err)
	}
	return nil
}

func (s *Organizations) Get(ctx context.Context, domain string) (*models.Organization, error) {
	rows, err := queryRows[organizationRecord](ctx, s.db,
		"SELECT * FROM type::table($tb) WHERE pk = $pk AND sk = $sk LIMIT 1",
		map[string]any{"tb": organizationTable, "pk": organizationPartition, "sk": domain})
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	o := rows[0].Organization
	return &o, nil
}

func (s *Organizations) GetAll(ctx context.Context, opts store.ListOptions) (store.Page[*models.Organization], error) {
	var page store.Page[*models.Organization]

	cursor, err := keys.DecodeCursor(opts.Cursor)
	if err != nil {
		return page, err
	}
	limit := store.ClampLimit(opts.Limit)

	sql := "SELECT * FROM type::table($tb) WHERE pk = $pk"
	vars := map[string]any{"tb": organizationTable, "pk": organizationPartition, "limit": limit + 1}
	if cursor != nil {
		sql += " AND sk > $after"
		vars["after"] = cursor.SK
	}
	if opts.Search != "" {
		sql += " AND " + containsClause("domain", "name")
		vars["search"] = opts.Search
	}
	sql += " ORDER BY sk LIMIT $limit"

	rows, err := queryRows[organizationRecord](ctx, s.db, sql, vars)
	if err != nil {
		return page, fmt.Errorf("list organizations: %w", err)
	}

	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	for _, row := range rows {
		o := row.Organization
		page.Items = append(page.Items, &o)
	}
	if more {
		last := rows[len(rows)-1]
		page.NextCursor = keys.EncodeCursor(&keys.Cursor{PK: last.PK, SK: last.SK})
	}
	return page, nil
}

func (s *Organizations) Delete(ctx context.Context, domain string) error {
	rows, err := queryRows[organizationRecord](ctx, s.db,
		"DELETE $rid RETURN BEFORE",
		map[string]any{"rid": recordID(organizationTable, organizationPartition, domain)})
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}
