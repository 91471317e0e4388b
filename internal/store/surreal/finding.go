package surreal

import (
	"context"
	"fmt"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

const findingTable = "finding"

// findingRecord stores one finding per record under the assessment's
// finding partition; the finding id is the sort key. Comments live inside
// the document.
type findingRecord struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
	models.Finding
}

// Findings implements store.FindingStore against SurrealDB. pageSize is
// the engine page size for internal re-querying; tests shrink it to drive
// the refill loop across several engine pages.
type Findings struct {
	db       *surrealdb.DB
	pageSize int
}

func NewFindings(db *surrealdb.DB) *Findings {
	return &Findings{db: db, pageSize: nativePageSize}
}

func (s *Findings) Save(ctx context.Context, org, assessmentID string, finding *models.Finding) error {
	pk := keys.FindingPartition(org, assessmentID)
	rec := findingRecord{PK: pk, SK: finding.ID, Finding: *finding}

	_, err := queryRows[findingRecord](ctx, s.db,
		"UPSERT $rid CONTENT $content",
		map[string]any{"rid": recordID(findingTable, pk, finding.ID), "content": rec})
	if err != nil {
		return fmt.Errorf("save finding: %w", err)
	}
	return nil
}

func (s *Findings) Get(ctx context.Context, org, assessmentID, findingID string) (*models.Finding, error) {
	pk := keys.FindingPartition(org, assessmentID)
	rows, err := queryRows[findingRecord](ctx, s.db,
		"SELECT * FROM type::table($tb) WHERE pk = $pk AND sk = $sk LIMIT 1",
		map[string]any{"tb": findingTable, "pk": pk, "sk": findingID})
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	f := rows[0].Finding
	return &f, nil
}

func (s *Findings) GetAll(ctx context.Context, org, assessmentID string, opts store.ListOptions) (store.Page[*models.Finding], error) {
	return s.page(ctx, org, assessmentID, pageQuery{
		limit:  store.ClampLimit(opts.Limit),
		search: opts.Search,
		cursor: opts.Cursor,
		hidden: true, // plain listing includes hidden findings
	})
}

func (s *Findings) Update(ctx context.Context, org, assessmentID, findingID string, fields store.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	pk := keys.FindingPartition(org, assessmentID)
	vars := map[string]any{"rid": recordID(findingTable, pk, findingID)}
	set := setClauses("", fields, vars)

	rows, err := queryRows[findingRecord](ctx, s.db,
		fmt.Sprintf("UPDATE $rid SET %s RETURN AFTER", set), vars)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Findings) Delete(ctx context.Context, org, assessmentID, findingID string) error {
	pk := keys.FindingPartition(org, assessmentID)
	rows, err := queryRows[findingRecord](ctx, s.db,
		"DELETE $rid RETURN BEFORE",
		map[string]any{"rid": recordID(findingTable, pk, findingID)})
	if err != nil {
		return fmt.Errorf("delete finding: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteAll lists every finding key in the partition (paginating at the
// native page size) and deletes in chunks bounded by the engine batch
// maximum. A failed chunk aborts the rest; completed chunks stay deleted,
// so callers re-run on error.
func (s *Findings) DeleteAll(ctx context.Context, org, assessmentID string) error {
	pk := keys.FindingPartition(org, assessmentID)

	var sks []string
	after := ""
	for {
		sql := "SELECT sk FROM type::table($tb) WHERE pk = $pk"
		vars := map[string]any{"tb": findingTable, "pk": pk, "limit": s.pageSize}
		if after != "" {
			sql += " AND sk > $after"
			vars["after"] = after
		}
		sql += " ORDER BY sk LIMIT $limit"

		rows, err := queryRows[struct {
			SK string `json:"sk"`
		}](ctx, s.db, sql, vars)
		if err != nil {
			return fmt.Errorf("list finding keys: %w", err)
		}
		for _, r := range rows {
			sks = append(sks, r.SK)
		}
		if len(rows) < s.pageSize {
			break
		}
		after = rows[len(rows)-1].SK
	}

	for start := 0; start < len(sks); start += maxBatchDelete {
		end := start + maxBatchDelete
		if end > len(sks) {
			end = len(sks)
		}
		_, err := queryRows[findingRecord](ctx, s.db,
			"DELETE type::table($tb) WHERE pk = $pk AND sk IN $chunk",
			map[string]any{"tb": findingTable, "pk": pk, "chunk": sks[start:end]})
		if err != nil {
			return fmt.Errorf("delete findings batch %d..%d: %w: %w",
				start, end, store.ErrBatchPartialFailure, err)
		}
	}
	return nil
}

func (s *Findings) SaveComment(ctx context.Context, org, assessmentID, findingID string, comment *models.FindingComment) error {
	pk := keys.FindingPartition(org, assessmentID)
	rows, err := queryRows[findingRecord](ctx, s.db,
		"UPDATE $rid SET comments += $comment RETURN AFTER",
		map[string]any{
			"rid":     recordID(findingTable, pk, findingID),
			"comment": comment,
		})
	if err != nil {
		return fmt.Errorf("save comment: %w", err)
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Findings) UpdateComment(ctx context.Context, org, assessmentID, findingID, commentID, text string) error {
	f, err := s.Get(ctx, org, assessmentID, findingID)
	if err != nil {
		return err
	}
	if f == nil || !hasComment(f, commentID) {
		return store.ErrNotFound
	}

	pk := keys.FindingPartition(org, assessmentID)
	_, err = queryRows[findingRecord](ctx, s.db,
		"UPDATE $rid SET comments[WHERE id = $cid].text = $text RETURN AFTER",
		map[string]any{
			"rid":  recordID(findingTable, pk, findingID),
			"cid":  commentID,
			"text": text,
		})
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

func (s *Findings) DeleteComment(ctx context.Context, org, assessmentID, findingID, commentID string) error {
	f, err := s.Get(ctx, org, assessmentID, findingID)
	if err != nil {
		return err
	}
	if f == nil || !hasComment(f, commentID) {
		return store.ErrNotFound
	}

	remaining := make([]models.FindingComment, 0, len(f.Comments))
	for _, c := range f.Comments {
		if c.ID != commentID {
			remaining = append(remaining, c)
		}
	}
	return s.Update(ctx, org, assessmentID, findingID, store.Fields{"comments": remaining})
}

// GetBestPracticeFindings pages through findings associated with one best
// practice. Membership comes from the best practice's result set, the same
// set AddBestPracticeResults maintains, so both backends answer from the
// explicitly linked ids rather than the packed string. The engine is
// queried at its native page size and re-queried until the caller's limit
// is exactly filled or the partition is exhausted.
func (s *Findings) GetBestPracticeFindings(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, opts store.FindingQueryOptions) (store.Page[*models.Finding], error) {
	pk, sk := keys.AssessmentKey(org, assessmentID)
	rows, err := queryRows[assessmentRecord](ctx, s.db,
		"SELECT * FROM type::table($tb) WHERE pk = $pk AND sk = $sk LIMIT 1",
		map[string]any{"tb": assessmentTable, "pk": pk, "sk": sk})
	if err != nil {
		return store.Page[*models.Finding]{}, fmt.Errorf("get assessment: %w", err)
	}

	var ids []string
	if len(rows) > 0 {
		a := stripResultSentinels(rows[0].Assessment)
		if bp := findBestPractice(&a, pillarID, questionID, bestPracticeID); bp != nil {
			ids = bp.Results
		}
	}
	if len(ids) == 0 {
		return store.Page[*models.Finding]{}, nil
	}

	return s.page(ctx, org, assessmentID, pageQuery{
		limit:  store.ClampLimit(opts.Limit),
		search: opts.Search,
		cursor: opts.Cursor,
		hidden: opts.ShowHidden,
		ids:    ids,
	})
}

func hasComment(f *models.Finding, commentID string) bool {
	for _, c := range f.Comments {
		if c.ID == commentID {
			return true
		}
	}
	return false
}

type pageQuery struct {
	limit  int
	search string
	cursor string
	hidden bool     // include hidden findings
	ids    []string // non-empty: restrict to findings with these sort keys
}

func (s *Findings) page(ctx context.Context, org, assessmentID string, q pageQuery) (store.Page[*models.Finding], error) {
	var page store.Page[*models.Finding]

	cursor, err := keys.DecodeCursor(q.cursor)
	if err != nil {
		return page, err
	}
	pk := keys.FindingPartition(org, assessmentID)

	after := ""
	if cursor != nil {
		after = cursor.SK
	}

	for {
		sql := "SELECT * FROM type::table($tb) WHERE pk = $pk"
		vars := map[string]any{"tb": findingTable, "pk": pk, "limit": s.pageSize}
		if after != "" {
			sql += " AND sk > $after"
			vars["after"] = after
		}
		if !q.hidden {
			sql += " AND hidden = false"
		}
		if len(q.ids) > 0 {
			sql += " AND sk IN $ids"
			vars["ids"] = q.ids
		}
		if q.search != "" {
			sql += " AND " + containsClause("statusDetail", "riskDetails")
			vars["search"] = q.search
		}
		sql += " ORDER BY sk LIMIT $limit"

		rows, err := queryRows[findingRecord](ctx, s.db, sql, vars)
		if err != nil {
			return store.Page[*models.Finding]{}, fmt.Errorf("query findings: %w", err)
		}

		exhausted := len(rows) < s.pageSize
		for _, row := range rows {
			f := row.Finding
			page.Items = append(page.Items, &f)
			after = row.SK
			if len(page.Items) == q.limit {
				// Limit filled mid-page means more rows may remain.
				leftover := row.SK != rows[len(rows)-1].SK
				if !exhausted || leftover {
					page.NextCursor = keys.EncodeCursor(&keys.Cursor{PK: pk, SK: after})
				}
				return page, nil
			}
		}
		if exhausted {
			return page, nil
		}
	}
}
