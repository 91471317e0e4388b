// Package postgres implements the store interfaces against per-tenant
// PostgreSQL databases obtained from internal/tenantdb. The organization
// catalog lives in the control database; everything else lives in the
// tenant database named after the organization's domain.
//
// Partial updates are built dynamically with numbered placeholders.
// Caller-visible field names are translated through fixed column maps, so
// no caller input ever reaches the SQL text.
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var assessmentColumns = map[string]string{
	"name":       "name",
	"createdBy":  "created_by",
	"createdAt":  "created_at",
	"roleArn":    "role_arn",
	"regions":    "regions",
	"finishedAt": "finished_at",
	"error":      "error",
}

var pillarColumns = map[string]string{
	"name": "name",
}

var questionColumns = map[string]string{
	"title": "title",
}

var bestPracticeColumns = map[string]string{
	"name":    "name",
	"risk":    "risk",
	"checked": "checked",
}

var findingColumnNames = map[string]string{
	"hidden":        "hidden",
	"severity":      "severity",
	"statusCode":    "status_code",
	"statusDetail":  "status_detail",
	"riskDetails":   "risk_details",
	"bestPractices": "best_practices",
}

func columnFor(columns map[string]string, field string) (string, error) {
	col, ok := columns[field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", field)
	}
	return col, nil
}

// isForeignKeyViolation reports a reference to a missing parent row.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
