package surreal

import (
	"context"
	"fmt"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

const assessmentTable = "assessment"

// assessmentRecord is the stored shape of an assessment: the domain
// document plus the composite key fields.
type assessmentRecord struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
	models.Assessment
}

// Assessments implements store.AssessmentStore against SurrealDB. One
// record holds the whole tree; nested updates address pillars, questions
// and best practices with SurrealQL array filters.
type Assessments struct {
	db       *surrealdb.DB
	findings *Findings
}

func NewAssessments(db *surrealdb.DB) *Assessments {
	return &Assessments{db: db, findings: NewFindings(db)}
}

func (s *Assessments) Save(ctx context.Context, assessment *models.Assessment) error {
	pk, sk := keys.AssessmentKey(assessment.Organization, assessment.ID)
	rec := assessmentRecord{PK: pk, SK: sk, Assessment: withResultSentinels(*assessment)}

	_, err := queryRows[assessmentRecord](ctx, s.db,
		"UPSERT $rid CONTENT $content",
		map[string]any{"rid": recordID(assessmentTable, pk, sk), "content": rec})
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}

func (s *Assessments) Get(ctx context.Context, org, assessmentID string) (*models.Assessment, error) {
	pk, sk := keys.AssessmentKey(org, assessmentID)
	rows, err := queryRows[assessmentRecord](ctx, s.db,
		"SELECT * FROM type::table($tb) WHERE pk = $pk AND sk = $sk LIMIT 1",
		map[string]any{"tb": assessmentTable, "pk": pk, "sk": sk})
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	a := stripResultSentinels(rows[0].Assessment)
	return &a, nil
}

func (s *Assessments) GetAll(ctx context.Context, org string, opts store.ListOptions) (store.Page[*models.Assessment], error) {
	var page store.Page[*models.Assessment]

	cursor, err := keys.DecodeCursor(opts.Cursor)
	if err != nil {
		return page, err
	}
	limit := store.ClampLimit(opts.Limit)

	sql := "SELECT * FROM type::table($tb) WHERE pk = $pk AND string::starts_with(sk, $prefix)"
	vars := map[string]any{
		"tb":     assessmentTable,
		"pk":     org,
		"prefix": "ASSESSMENT#",
		"limit":  limit + 1,
	}
	if cursor != nil {
		sql += " AND sk > $after"
		vars["after"] = cursor.SK
	}
	if opts.Search != "" {
		sql += " AND " + containsClause("name", "id", "roleArn")
		vars["search"] = opts.Search
	}
	sql += " ORDER BY sk LIMIT $limit"

	rows, err := queryRows[assessmentRecord](ctx, s.db, sql, vars)
	if err != nil {
		return page, fmt.Errorf("list assessments: %w", err)
	}

	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	for _, row := range rows {
		a := stripResultSentinels(row.Assessment)
		page.Items = append(page.Items, &a)
	}
	if more {
		last := rows[len(rows)-1]
		page.NextCursor = keys.EncodeCursor(&keys.Cursor{PK: last.PK, SK: last.SK})
	}
	return page, nil
}

func (s *Assessments) Update(ctx context.Context, org, assessmentID string, fields store.Fields) error {
	return s.updatePath(ctx, org, assessmentID, "", nil, fields, "update assessment")
}

func (s *Assessments) UpdatePillar(ctx context.Context, org, assessmentID, pillarID string, fields store.Fields) error {
	path := "pillars[WHERE id = $pid]"
	vars := map[string]any{"pid": pillarID}
	if err := s.requirePath(ctx, org, assessmentID, pillarID, "", ""); err != nil {
		return err
	}
	return s.updatePath(ctx, org, assessmentID, path, vars, fields, "update pillar")
}

func (s *Assessments) UpdateQuestion(ctx context.Context, org, assessmentID, pillarID, questionID string, fields store.Fields) error {
	path := "pillars[WHERE id = $pid].questions[WHERE id = $qid]"
	vars := map[string]any{"pid": pillarID, "qid": questionID}
	if err := s.requirePath(ctx, org, assessmentID, pillarID, questionID, ""); err != nil {
		return err
	}
	return s.updatePath(ctx, org, assessmentID, path, vars, fields, "update question")
}

func (s *Assessments) UpdateBestPractice(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, fields store.Fields) error {
	path := "pillars[WHERE id = $pid].questions[WHERE id = $qid].bestPractices[WHERE id = $bid]"
	vars := map[string]any{"pid": pillarID, "qid": questionID, "bid": bestPracticeID}
	if err := s.requirePath(ctx, org, assessmentID, pillarID, questionID, bestPracticeID); err != nil {
		return err
	}
	return s.updatePath(ctx, org, assessmentID, path, vars, fields, "update best practice")
}

// AddBestPracticeResults unions finding ids into the best practice's
// result set. Writes to the same assessment are not serialized here; the
// surrounding workflow owns that guarantee.
func (s *Assessments) AddBestPracticeResults(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, findingIDs []string) error {
	a, err := s.Get(ctx, org, assessmentID)
	if err != nil {
		return err
	}
	if a == nil {
		return store.ErrNotFound
	}
	bp := findBestPractice(a, pillarID, questionID, bestPracticeID)
	if bp == nil {
		return store.ErrNotFound
	}

	merged := unionStrings(bp.Results, findingIDs)
	return s.UpdateBestPractice(ctx, org, assessmentID, pillarID, questionID, bestPracticeID,
		store.Fields{"results": sentinelResults(merged)})
}

func (s *Assessments) Delete(ctx context.Context, org, assessmentID string) error {
	pk, sk := keys.AssessmentKey(org, assessmentID)
	rows, err := queryRows[assessmentRecord](ctx, s.db,
		"DELETE $rid RETURN BEFORE",
		map[string]any{"rid": recordID(assessmentTable, pk, sk)})
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return s.findings.DeleteAll(ctx, org, assessmentID)
}

// updatePath runs a partial update. Field values bind as $f0, $f1, ...;
// only placeholder names reach the expression syntax, the stored
// attributes keep their original names.
func (s *Assessments) updatePath(ctx context.Context, org, assessmentID, path string, pathVars map[string]any, fields store.Fields, op string) error {
	if len(fields) == 0 {
		return nil
	}
	pk, sk := keys.AssessmentKey(org, assessmentID)
	vars := map[string]any{"rid": recordID(assessmentTable, pk, sk)}
	for k, v := range pathVars {
		vars[k] = v
	}
	set := setClauses(path, fields, vars)

	rows, err := queryRows[assessmentRecord](ctx, s.db,
		fmt.Sprintf("UPDATE $rid SET %s RETURN AFTER", set), vars)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// requirePath verifies the addressed tree node exists before a nested
// update, so a missing pillar/question/best practice reports ErrNotFound
// instead of silently matching nothing.
func (s *Assessments) requirePath(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string) error {
	a, err := s.Get(ctx, org, assessmentID)
	if err != nil {
		return err
	}
	if a == nil {
		return store.ErrNotFound
	}
	for _, p := range a.Pillars {
		if p.ID != pillarID {
			continue
		}
		if questionID == "" {
			return nil
		}
		for _, q := range p.Questions {
			if q.ID != questionID {
				continue
			}
			if bestPracticeID == "" {
				return nil
			}
			for _, bp := range q.BestPractices {
				if bp.ID == bestPracticeID {
					return nil
				}
			}
			return store.ErrNotFound
		}
		return store.ErrNotFound
	}
	return store.ErrNotFound
}

func findBestPractice(a *models.Assessment, pillarID, questionID, bestPracticeID string) *models.BestPractice {
	for pi := range a.Pillars {
		if a.Pillars[pi].ID != pillarID {
			continue
		}
		for qi := range a.Pillars[pi].Questions {
			if a.Pillars[pi].Questions[qi].ID != questionID {
				continue
			}
			bps := a.Pillars[pi].Questions[qi].BestPractices
			for bi := range bps {
				if bps[bi].ID == bestPracticeID {
					return &bps[bi]
				}
			}
		}
	}
	return nil
}

func unionStrings(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, v := range existing {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	for _, v := range added {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	return merged
}

// The engine rejects empty multi-valued fields, so an empty result set is
// stored as a single empty-string member and stripped on every read. This
// is pure encoding; callers never observe the sentinel.

func sentinelResults(results []string) []string {
	if len(results) == 0 {
		return []string{""}
	}
	return results
}

func withResultSentinels(a models.Assessment) models.Assessment {
	pillars := make([]models.Pillar, len(a.Pillars))
	copy(pillars, a.Pillars)
	for pi := range pillars {
		questions := make([]models.Question, len(pillars[pi].Questions))
		copy(questions, pillars[pi].Questions)
		for qi := range questions {
			bps := make([]models.BestPractice, len(questions[qi].BestPractices))
			copy(bps, questions[qi].BestPractices)
			for bi := range bps {
				bps[bi].Results = sentinelResults(bps[bi].Results)
			}
			questions[qi].BestPractices = bps
		}
		pillars[pi].Questions = questions
	}
	a.Pillars = pillars
	return a
}

func stripResultSentinels(a models.Assessment) models.Assessment {
	for pi := range a.Pillars {
		for qi := range a.Pillars[pi].Questions {
			bps := a.Pillars[pi].Questions[qi].BestPractices
			for bi := range bps {
				var filtered []string
				for _, r := range bps[bi].Results {
					if r != "" {
						filtered = append(filtered, r)
					}
				}
				bps[bi].Results = filtered
			}
		}
	}
	return a
}
