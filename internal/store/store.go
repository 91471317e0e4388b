// Package store defines the backend-neutral data access contracts for the
// assessment domain. Two implementations exist: internal/store/surreal
// (document engine) and internal/store/postgres (relational engine). Both
// are selected at composition time; callers hold only these interfaces and
// never see engine keys or cursors in decoded form.
package store

import (
	"context"
	"errors"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/pkg/models"
)

var (
	// ErrNotFound is returned by Update/Delete of a missing entity. Get
	// reports absence as (nil, nil) instead.
	ErrNotFound = errors.New("resource not found")

	// ErrTenantNotProvisioned is returned when a connection is requested
	// for a tenant whose database has never been provisioned.
	ErrTenantNotProvisioned = errors.New("tenant not provisioned")

	// ErrAuthExpired is surfaced after credential refresh retries are
	// exhausted. Transient auth failures are retried internally first.
	ErrAuthExpired = errors.New("database authentication expired")

	// ErrBatchPartialFailure marks a chunked batch operation that failed
	// partway. Completed chunks are not rolled back; callers re-run the
	// (idempotent) operation.
	ErrBatchPartialFailure = errors.New("batch operation partially failed")
)

// ErrInvalidCursor marks a malformed continuation token.
var ErrInvalidCursor = keys.ErrInvalidCursor

// ListOptions controls paginated listing. Search matches as a substring
// over a fixed set of textual fields. Cursor is the opaque token from a
// previous page; empty means start from the beginning.
type ListOptions struct {
	Limit  int
	Search string
	Cursor string
}

// FindingQueryOptions controls the best-practice finding query. Hidden
// findings are excluded unless ShowHidden is set. Search matches as a
// substring over statusDetail OR riskDetails.
type FindingQueryOptions struct {
	Limit      int
	Search     string
	ShowHidden bool
	Cursor     string
}

// Fields names the attributes touched by a partial update. Keys are the
// caller-visible field names; the backends translate them into engine
// expressions, substituting placeholders for characters the engine's
// syntax cannot carry while storing the original name.
type Fields map[string]any

// Page is one page of a listing. NextCursor is empty on the final page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

const (
	// DefaultLimit applies when a caller passes a non-positive limit.
	DefaultLimit = 20
	// MaxLimit caps the externally observable page size.
	MaxLimit = 100
)

// ClampLimit normalizes a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// OrganizationStore persists the tenant catalog.
type OrganizationStore interface {
	Save(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, domain string) (*models.Organization, error)
	GetAll(ctx context.Context, opts ListOptions) (Page[*models.Organization], error)
	Delete(ctx context.Context, domain string) error
}

// AssessmentStore persists the assessment tree, scoped to one tenant per
// call. Partial updates touch only the supplied fields; the nested update
// methods address one pillar/question/best practice by its in-tree path.
type AssessmentStore interface {
	Save(ctx context.Context, assessment *models.Assessment) error
	Get(ctx context.Context, org, assessmentID string) (*models.Assessment, error)
	GetAll(ctx context.Context, org string, opts ListOptions) (Page[*models.Assessment], error)
	Update(ctx context.Context, org, assessmentID string, fields Fields) error
	UpdatePillar(ctx context.Context, org, assessmentID, pillarID string, fields Fields) error
	UpdateQuestion(ctx context.Context, org, assessmentID, pillarID, questionID string, fields Fields) error
	UpdateBestPractice(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, fields Fields) error

	// AddBestPracticeResults associates finding ids with a best practice.
	// The result set is a union: adding an id twice stores it once.
	AddBestPracticeResults(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, findingIDs []string) error

	// Delete removes the assessment and cascades to all of its findings.
	Delete(ctx context.Context, org, assessmentID string) error
}

// FindingStore persists findings and their comments, scoped to one
// (tenant, assessment) pair per call.
type FindingStore interface {
	Save(ctx context.Context, org, assessmentID string, finding *models.Finding) error
	Get(ctx context.Context, org, assessmentID, findingID string) (*models.Finding, error)
	GetAll(ctx context.Context, org, assessmentID string, opts ListOptions) (Page[*models.Finding], error)
	Update(ctx context.Context, org, assessmentID, findingID string, fields Fields) error
	Delete(ctx context.Context, org, assessmentID, findingID string) error

	// DeleteAll removes every finding of the assessment in engine-sized
	// batches. A failed batch aborts the remainder; the operation is
	// idempotent and safe to re-run.
	DeleteAll(ctx context.Context, org, assessmentID string) error

	SaveComment(ctx context.Context, org, assessmentID, findingID string, comment *models.FindingComment) error
	UpdateComment(ctx context.Context, org, assessmentID, findingID, commentID, text string) error
	DeleteComment(ctx context.Context, org, assessmentID, findingID, commentID string) error

	// GetBestPracticeFindings pages through the findings associated with
	// one best practice. The returned page size is exactly opts.Limit
	// unless the data is exhausted, regardless of the engine's internal
	// page size.
	GetBestPracticeFindings(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, opts FindingQueryOptions) (Page[*models.Finding], error)
}
