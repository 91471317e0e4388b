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

// Assessments implements store.AssessmentStore against the tenant
// databases. The tree is normalized into assessments, pillars, questions,
// best_practices and file_exports rows; sibling order is kept in a
// position column.
type Assessments struct {
	mgr *tenantdb.Manager
}

func NewAssessments(mgr *tenantdb.Manager) *Assessments {
	return &Assessments{mgr: mgr}
}

// Save upserts the whole tree. Child rows are replaced wholesale, which
// also clears join-table rows hanging off replaced best practices;
// associations are re-linked by AddBestPracticeResults afterwards.
func (s *Assessments) Save(ctx context.Context, a *models.Assessment) error {
	return s.mgr.Do(ctx, a.Organization, func(pool *pgxpool.Pool) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin save assessment: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO assessments (organization, id, name, created_by, created_at, role_arn, regions, finished_at, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (organization, id) DO UPDATE SET
			   name = EXCLUDED.name,
			   created_by = EXCLUDED.created_by,
			   created_at = EXCLUDED.created_at,
			   role_arn = EXCLUDED.role_arn,
			   regions = EXCLUDED.regions,
			   finished_at = EXCLUDED.finished_at,
			   error = EXCLUDED.error`,
			a.Organization, a.ID, a.Name, a.CreatedBy, a.CreatedAt, a.RoleArn,
			a.Regions, a.FinishedAt, a.Error)
		if err != nil {
			return fmt.Errorf("upsert assessment: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM pillars WHERE organization = $1 AND assessment_id = $2`,
			a.Organization, a.ID); err != nil {
			return fmt.Errorf("clear pillars: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM file_exports WHERE organization = $1 AND assessment_id = $2`,
			a.Organization, a.ID); err != nil {
			return fmt.Errorf("clear file exports: %w", err)
		}

		for pi, p := range a.Pillars {
			if _, err := tx.Exec(ctx,
				`INSERT INTO pillars (organization, assessment_id, id, name, position)
				 VALUES ($1, $2, $3, $4, $5)`,
				a.Organization, a.ID, p.ID, p.Name, pi); err != nil {
				return fmt.Errorf("insert pillar: %w", err)
			}
			for qi, q := range p.Questions {
				if _, err := tx.Exec(ctx,
					`INSERT INTO questions (organization, assessment_id, pillar_id, id, title, position)
					 VALUES ($1, $2, $3, $4, $5, $6)`,
					a.Organization, a.ID, p.ID, q.ID, q.Title, qi); err != nil {
					return fmt.Errorf("insert question: %w", err)
				}
				for bi, bp := range q.BestPractices {
					if _, err := tx.Exec(ctx,
						`INSERT INTO best_practices (organization, assessment_id, pillar_id, question_id, id, name, risk, checked, position)
						 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
						a.Organization, a.ID, p.ID, q.ID, bp.ID, bp.Name, bp.Risk, bp.Checked, bi); err != nil {
						return fmt.Errorf("insert best practice: %w", err)
					}
				}
			}
		}

		for fi, fe := range a.FileExports {
			if _, err := tx.Exec(ctx,
				`INSERT INTO file_exports (organization, assessment_id, id, format, location, created_at, position)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				a.Organization, a.ID, fe.ID, fe.Format, fe.Location, fe.CreatedAt, fi); err != nil {
				return fmt.Errorf("insert file export: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit save assessment: %w", err)
		}
		return nil
	})
}

func (s *Assessments) Get(ctx context.Context, org, assessmentID string) (*models.Assessment, error) {
	var result *models.Assessment
	err := s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		a, err := s.load(ctx, pool, org, assessmentID)
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	return result, err
}

func (s *Assessments) load(ctx context.Context, pool *pgxpool.Pool, org, assessmentID string) (*models.Assessment, error) {
	var a models.Assessment
	err := pool.QueryRow(ctx,
		`SELECT organization, id, name, created_by, created_at, role_arn, regions, finished_at, error
		 FROM assessments WHERE organization = $1 AND id = $2`, org, assessmentID,
	).Scan(&a.Organization, &a.ID, &a.Name, &a.CreatedBy, &a.CreatedAt,
		&a.RoleArn, &a.Regions, &a.FinishedAt, &a.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	if err := s.loadTree(ctx, pool, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Assessments) loadTree(ctx context.Context, pool *pgxpool.Pool, a *models.Assessment) error {
	rows, err := pool.Query(ctx,
		`SELECT id, name FROM pillars
		 WHERE organization = $1 AND assessment_id = $2 ORDER BY position`,
		a.Organization, a.ID)
	if err != nil {
		return fmt.Errorf("load pillars: %w", err)
	}
	defer rows.Close()

	pillarIdx := make(map[string]int)
	for rows.Next() {
		var p models.Pillar
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return fmt.Errorf("scan pillar: %w", err)
		}
		pillarIdx[p.ID] = len(a.Pillars)
		a.Pillars = append(a.Pillars, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`SELECT pillar_id, id, title FROM questions
		 WHERE organization = $1 AND assessment_id = $2 ORDER BY position`,
		a.Organization, a.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	type qKey struct{ pillar, question string }
	questionIdx := make(map[qKey]int)
	for rows.Next() {
		var pillarID string
		var q models.Question
		if err := rows.Scan(&pillarID, &q.ID, &q.Title); err != nil {
			return fmt.Errorf("scan question: %w", err)
		}
		pi, ok := pillarIdx[pillarID]
		if !ok {
			continue
		}
		questionIdx[qKey{pillarID, q.ID}] = len(a.Pillars[pi].Questions)
		a.Pillars[pi].Questions = append(a.Pillars[pi].Questions, q)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`SELECT pillar_id, question_id, id, name, risk, checked FROM best_practices
		 WHERE organization = $1 AND assessment_id = $2 ORDER BY position`,
		a.Organization, a.ID)
	if err != nil {
		return fmt.Errorf("load best practices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pillarID, questionID string
		var bp models.BestPractice
		if err := rows.Scan(&pillarID, &questionID, &bp.ID, &bp.Name, &bp.Risk, &bp.Checked); err != nil {
			return fmt.Errorf("scan best practice: %w", err)
		}
		pi, ok := pillarIdx[pillarID]
		if !ok {
			continue
		}
		qi, ok := questionIdx[qKey{pillarID, questionID}]
		if !ok {
			continue
		}
		q := &a.Pillars[pi].Questions[qi]
		q.BestPractices = append(q.BestPractices, bp)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = pool.Query(ctx,
		`SELECT id, format, location, created_at FROM file_exports
		 WHERE organization = $1 AND assessment_id = $2 ORDER BY position`,
		a.Organization, a.ID)
	if err != nil {
		return fmt.Errorf("load file exports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fe models.FileExport
		if err := rows.Scan(&fe.ID, &fe.Format, &fe.Location, &fe.CreatedAt); err != nil {
			return fmt.Errorf("scan file export: %w", err)
		}
		a.FileExports = append(a.FileExports, fe)
	}
	return rows.Err()
}

func (s *Assessments) GetAll(ctx context.Context, org string, opts store.ListOptions) (store.Page[*models.Assessment], error) {
	var page store.Page[*models.Assessment]

	cursor, err := keys.DecodeCursor(opts.Cursor)
	if err != nil {
		return page, err
	}
	limit := store.ClampLimit(opts.Limit)

	err = s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		conditions := []string{"organization = $1"}
		args := []any{org}
		argIdx := 2

		if cursor != nil {
			conditions = append(conditions, fmt.Sprintf("id > $%d", argIdx))
			args = append(args, cursor.Last)
			argIdx++
		}
		if opts.Search != "" {
			conditions = append(conditions,
				fmt.Sprintf("(name ILIKE $%d OR id ILIKE $%d OR role_arn ILIKE $%d)",
					argIdx, argIdx, argIdx))
			args = append(args, "%"+opts.Search+"%")
			argIdx++
		}

		query := fmt.Sprintf(
			`SELECT organization, id, name, created_by, created_at, role_arn, regions, finished_at, error
			 FROM assessments WHERE %s ORDER BY id LIMIT $%d`,
			strings.Join(conditions, " AND "), argIdx)
		args = append(args, limit+1)

		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list assessments: %w", err)
		}
		defer rows.Close()

		var assessments []*models.Assessment
		for rows.Next() {
			var a models.Assessment
			if err := rows.Scan(&a.Organization, &a.ID, &a.Name, &a.CreatedBy,
				&a.CreatedAt, &a.RoleArn, &a.Regions, &a.FinishedAt, &a.Error); err != nil {
				return fmt.Errorf("scan assessment: %w", err)
			}
			assessments = append(assessments, &a)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if len(assessments) > limit {
			assessments = assessments[:limit]
			page.NextCursor = keys.EncodeCursor(&keys.Cursor{Last: assessments[len(assessments)-1].ID})
		}
		for _, a := range assessments {
			if err := s.loadTree(ctx, pool, a); err != nil {
				return err
			}
		}
		page.Items = assessments
		return nil
	})
	return page, err
}

func (s *Assessments) Update(ctx context.Context, org, assessmentID string, fields store.Fields) error {
	return s.updateRow(ctx, org, assessmentID, "assessments", assessmentColumns, fields,
		"organization = $1 AND id = $2", []any{org, assessmentID}, "update assessment")
}

func (s *Assessments) UpdatePillar(ctx context.Context, org, assessmentID, pillarID string, fields store.Fields) error {
	return s.updateRow(ctx, org, assessmentID, "pillars", pillarColumns, fields,
		"organization = $1 AND assessment_id = $2 AND id = $3",
		[]any{org, assessmentID, pillarID}, "update pillar")
}

func (s *Assessments) UpdateQuestion(ctx context.Context, org, assessmentID, pillarID, questionID string, fields store.Fields) error {
	return s.updateRow(ctx, org, assessmentID, "questions", questionColumns, fields,
		"organization = $1 AND assessment_id = $2 AND pillar_id = $3 AND id = $4",
		[]any{org, assessmentID, pillarID, questionID}, "update question")
}

func (s *Assessments) UpdateBestPractice(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, fields store.Fields) error {
	return s.updateRow(ctx, org, assessmentID, "best_practices", bestPracticeColumns, fields,
		"organization = $1 AND assessment_id = $2 AND pillar_id = $3 AND question_id = $4 AND id = $5",
		[]any{org, assessmentID, pillarID, questionID, bestPracticeID}, "update best practice")
}

func (s *Assessments) updateRow(ctx context.Context, org, assessmentID, table string, columns map[string]string, fields store.Fields, where string, whereArgs []any, op string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		sets := make([]string, 0, len(fields))
		args := append([]any{}, whereArgs...)
		argIdx := len(whereArgs) + 1
		for field, value := range fields {
			col, err := columnFor(columns, field)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
			args = append(args, value)
			argIdx++
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
		tag, err := pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// AddBestPracticeResults links finding ids to a best practice through the
// join table. Duplicate links are skipped, so repeated calls converge.
func (s *Assessments) AddBestPracticeResults(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, findingIDs []string) error {
	if len(findingIDs) == 0 {
		return nil
	}
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		for _, findingID := range findingIDs {
			_, err := pool.Exec(ctx,
				`INSERT INTO best_practice_findings (organization, assessment_id, pillar_id, question_id, best_practice_id, finding_id)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT DO NOTHING`,
				org, assessmentID, pillarID, questionID, bestPracticeID, findingID)
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("link best practice finding: %w", err)
			}
		}
		return nil
	})
}

func (s *Assessments) Delete(ctx context.Context, org, assessmentID string) error {
	return s.mgr.Do(ctx, org, func(pool *pgxpool.Pool) error {
		tag, err := pool.Exec(ctx,
			`DELETE FROM assessments WHERE organization = $1 AND id = $2`,
			org, assessmentID)
		if err != nil {
			return fmt.Errorf("delete assessment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
