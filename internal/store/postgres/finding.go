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
	"github.com/assessly/assessly/internal/tenantdb"
	"github.com/assessly/assessly/pkg/models"
)

// Findings implements store.FindingStore against the tenant databases.
// Resources and comments are child rows; the best-practice association is
// kept both as the packed string on the finding row and as join-table
// rows written by AddBestPracticeResults.
type Findings struct {
	mgr *tenantdb.Manager
}

func NewFindings(mgr *tenantdb.Manager) *Findings {
	return &Findings{mgr: mgr}
}

const findingSelectColumns = `id, hidden, severity, status_code, status_detail, risk_details, best_practices, remediation_text, remediation_url`

func scanFinding(row pgx.Row) (*models.Finding, error) {
	var f models.Finding
	err := row.Scan(&f.ID, &f.Hidden, &f.Severity, &f.StatusCode, &f.StatusDetail,
		&f.RiskDetails, &f.BestPractices, &f.Remediation.Text, &f.Remediation.URL)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Findings) Save(ctx context.Context, org, assessmentID string, finding *models.Finding) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin save finding: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO findings (organization, assessment_id, id, hidden, severity, status_code, status_detail, risk_details, best_practices, remediation_text, remediation_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (organization, assessment_id, id) DO UPDATE SET
			   hidden = EXCLUDED.hidden,
			   severity = EXCLUDED.severity,
			   status_code = EXCLUDED.status_code,
			   status_detail = EXCLUDED.status_detail,
			   risk_details = EXCLUDED.risk_details,
			   best_practices = EXCLUDED.best_practices,
			   remediation_text = EXCLUDED.remediation_text,
			   remediation_url = EXCLUDED.remediation_url`,
			org, assessmentID, finding.ID, finding.Hidden, finding.Severity,
			finding.StatusCode, finding.StatusDetail, finding.RiskDetails,
			finding.BestPractices, finding.Remediation.Text, finding.Remediation.URL)
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("upsert finding: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM finding_resources WHERE organization = $1 AND assessment_id = $2 AND finding_id = $3`,
			org, assessmentID, finding.ID); err != nil {
			return fmt.Errorf("clear finding resources: %w", err)
		}
		for ri, r := range finding.Resources {
			if _, err := tx.Exec(ctx,
				`INSERT INTO finding_resources (organization, assessment_id, finding_id, id, type, region, position)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				org, assessmentID, finding.ID, r.ID, r.Type, r.Region, ri); err != nil {
				return fmt.Errorf("insert finding resource: %w", err)
			}
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM finding_comments WHERE organization = $1 AND assessment_id = $2 AND finding_id = $3`,
			org, assessmentID, finding.ID); err != nil {
			return fmt.Errorf("clear finding comments: %w", err)
		}
		for _, c := range finding.Comments {
			if _, err := tx.Exec(ctx,
				`INSERT INTO finding_comments (organization, assessment_id, finding_id, id, author_id, text, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				org, assessmentID, finding.ID, c.ID, c.AuthorID, c.Text, c.CreatedAt); err != nil {
				return fmt.Errorf("insert finding comment: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit save finding: %w", err)
		}
		return nil
	})
}

func (s *Findings) Get(ctx context.Context, org, assessmentID, findingID string) (*models.Finding, error) {
	var result *models.Finding
	err := s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		f, err := scanFinding(pool.QueryRow(ctx,
			`SELECT `+findingSelectColumns+` FROM findings
			 WHERE organization = $1 AND assessment_id = $2 AND id = $3`,
			org, assessmentID, findingID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get finding: %w", err)
		}
		if err := s.loadChildren(ctx, pool, org, assessmentID, []*models.Finding{f}); err != nil {
			return err
		}
		result = f
		return nil
	})
	return result, err
}

func (s *Findings) GetAll(ctx context.Context, org, assessmentID string, opts store.ListOptions) (store.Page[*models.Finding], error) {
	return s.page(ctx, org, assessmentID, pageQuery{
		limit:      store.ClampLimit(opts.Limit),
		search:     opts.Search,
		cursor:     opts.Cursor,
		showHidden: true,
	})
}

func (s *Findings) Update(ctx context.Context, org, assessmentID, findingID string, fields store.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		sets := make([]string, 0, len(fields))
		args := []any{org, assessmentID, findingID}
		argIdx := 4
		for field, value := range fields {
			// Remediation is one caller-visible field over two columns.
			if field == "remediation" {
				r, ok := value.(models.Remediation)
				if !ok {
					return fmt.Errorf("update finding: remediation value must be models.Remediation")
				}
				sets = append(sets,
					fmt.Sprintf("remediation_text = $%d", argIdx),
					fmt.Sprintf("remediation_url = $%d", argIdx+1))
				args = append(args, r.Text, r.URL)
				argIdx += 2
				continue
			}
			col, err := columnFor(findingColumnNames, field)
			if err != nil {
				return fmt.Errorf("update finding: %w", err)
			}
			sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
			args = append(args, value)
			argIdx++
		}

		query := fmt.Sprintf(
			`UPDATE findings SET %s WHERE organization = $1 AND assessment_id = $2 AND id = $3`,
			strings.Join(sets, ", "))
		tag, err := pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update finding: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Findings) Delete(ctx context.Context, org, assessmentID, findingID string) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		tag, err := pool.Exec(ctx,
			`DELETE FROM findings WHERE organization = $1 AND assessment_id = $2 AND id = $3`,
			org, assessmentID, findingID)
		if err != nil {
			return fmt.Errorf("delete finding: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// DeleteAll removes every finding of the assessment. Child rows and join
// rows go with them through the cascading foreign keys.
func (s *Findings) DeleteAll(ctx context.Context, org, assessmentID string) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx,
			`DELETE FROM findings WHERE organization = $1 AND assessment_id = $2`,
			org, assessmentID)
		if err != nil {
			return fmt.Errorf("delete findings: %w", err)
		}
		return nil
	})
}

func (s *Findings) SaveComment(ctx context.Context, org, assessmentID, findingID string, comment *models.FindingComment) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx,
			`INSERT INTO finding_comments (organization, assessment_id, finding_id, id, author_id, text, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (organization, assessment_id, finding_id, id) DO UPDATE SET
			   author_id = EXCLUDED.author_id,
			   text = EXCLUDED.text,
			   created_at = EXCLUDED.created_at`,
			org, assessmentID, findingID, comment.ID, comment.AuthorID, comment.Text, comment.CreatedAt)
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("save comment: %w", err)
		}
		return nil
	})
}

func (s *Findings) UpdateComment(ctx context.Context, org, assessmentID, findingID, commentID, text string) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		tag, err := pool.Exec(ctx,
			`UPDATE finding_comments SET text = $5
			 WHERE organization = $1 AND assessment_id = $2 AND finding_id = $3 AND id = $4`,
			org, assessmentID, findingID, commentID, text)
		if err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Findings) DeleteComment(ctx context.Context, org, assessmentID, findingID, commentID string) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		tag, err := pool.Exec(ctx,
			`DELETE FROM finding_comments
			 WHERE organization = $1 AND assessment_id = $2 AND finding_id = $3 AND id = $4`,
			org, assessmentID, findingID, commentID)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Findings) GetBestPracticeFindings(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, opts store.FindingQueryOptions) (store.Page[*models.Finding], error) {
	return s.page(ctx, org, assessmentID, pageQuery{
		limit:          store.ClampLimit(opts.Limit),
		search:         opts.Search,
		cursor:         opts.Cursor,
		showHidden:     opts.ShowHidden,
		pillarID:       pillarID,
		questionID:     questionID,
		bestPracticeID: bestPracticeID,
	})
}

type pageQuery struct {
	limit      int
	search     string
	cursor     string
	showHidden bool

	// Non-empty bestPracticeID restricts the page to findings linked to
	// that best practice through the join table.
	pillarID       string
	questionID     string
	bestPracticeID string
}

func (s *Findings) page(ctx context.Context, org, assessmentID string, q pageQuery) (store.Page[*models.Finding], error) {
	var page store.Page[*models.Finding]

	cursor, err := keys.DecodeCursor(q.cursor)
	if err != nil {
		return page, err
	}

	err = s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		conditions := []string{"f.organization = $1", "f.assessment_id = $2"}
		args := []any{org, assessmentID}
		argIdx := 3

		from := "findings f"
		if q.bestPracticeID != "" {
			from += ` JOIN best_practice_findings bpf
				ON bpf.organization = f.organization
				AND bpf.assessment_id = f.assessment_id
				AND bpf.finding_id = f.id`
			conditions = append(conditions,
				fmt.Sprintf("bpf.pillar_id = $%d", argIdx),
				fmt.Sprintf("bpf.question_id = $%d", argIdx+1),
				fmt.Sprintf("bpf.best_practice_id = $%d", argIdx+2))
			args = append(args, q.pillarID, q.questionID, q.bestPracticeID)
			argIdx += 3
		}
		if !q.showHidden {
			conditions = append(conditions, "f.hidden = FALSE")
		}
		if q.search != "" {
			conditions = append(conditions,
				fmt.Sprintf("(f.status_detail ILIKE $%d OR f.risk_details ILIKE $%d)", argIdx, argIdx))
			args = append(args, "%"+q.search+"%")
			argIdx++
		}
		if cursor != nil {
			conditions = append(conditions, fmt.Sprintf("f.id > $%d", argIdx))
			args = append(args, cursor.Last)
			argIdx++
		}

		query := fmt.Sprintf(
			`SELECT f.id, f.hidden, f.severity, f.status_code, f.status_detail, f.risk_details, f.best_practices, f.remediation_text, f.remediation_url
			 FROM %s WHERE %s ORDER BY f.id LIMIT $%d`,
			from, strings.Join(conditions, " AND "), argIdx)
		args = append(args, q.limit+1)

		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query findings: %w", err)
		}
		defer rows.Close()

		var findings []*models.Finding
		for rows.Next() {
			f, err := scanFinding(rows)
			if err != nil {
				return fmt.Errorf("scan finding: %w", err)
			}
			findings = append(findings, f)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if len(findings) > q.limit {
			findings = findings[:q.limit]
			page.NextCursor = keys.EncodeCursor(&keys.Cursor{Last: findings[len(findings)-1].ID})
		}
		if err := s.loadChildren(ctx, pool, org, assessmentID, findings); err != nil {
			return err
		}
		page.Items = findings
		return nil
	})
	return page, err
}

// loadChildren fills resources and comments for the given findings with
// one query per child table.
func (s *Findings) loadChildren(ctx context.Context, pool *pgxpool.Pool, org, assessmentID string, findings []*models.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	byID := make(map[string]*models.Finding, len(findings))
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	rows, err := pool.Query(ctx,
		`SELECT finding_id, id, type, region FROM finding_resources
		 WHERE organization = $1 AND assessment_id = $2 AND finding_id = ANY($3)
		 ORDER BY finding_id, position`,
		org, assessmentID, ids)
	if err != nil {
		return fmt.Errorf("load finding resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var findingID string
		var r models.Resource
		if err := rows.Scan(&findingID, &r.ID, &r.Type, &r.Region); err != nil {
			return fmt.Errorf("scan finding resource: %w", err)
		}
		if f := byID[findingID]; f != nil {
			f.Resources = append(f.Resources, r)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`SELECT finding_id, id, author_id, text, created_at FROM finding_comments
		 WHERE organization = $1 AND assessment_id = $2 AND finding_id = ANY($3)
		 ORDER BY finding_id, created_at, id`,
		org, assessmentID, ids)
	if err != nil {
		return fmt.Errorf("load finding comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var findingID string
		var c models.FindingComment
		if err := rows.Scan(&findingID, &c.ID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan finding comment: %w", err)
		}
		if f := byID[findingID]; f != nil {
			f.Comments = append(f.Comments, c)
		}
	}
	return rows.Err()
}
