// Package backfill copies the full dataset from the document store into
// the relational store. The run is strictly sequential: schema first,
// then organizations (provisioning each tenant database), then per
// organization the assessment trees, and per assessment its findings
// followed immediately by its best-practice association links. Link
// state never outlives one assessment. Every write is an upsert and
// link inserts skip conflicts, so re-running a failed migration
// converges to the same state.
package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/assessly/assessly/internal/keys"
	"github.com/assessly/assessly/internal/store"
)

// Provisioner prepares the relational side: control schema plus one
// database per tenant. Implemented by tenantdb.Manager.
type Provisioner interface {
	RunControlSchema(ctx context.Context) error
	Provision(ctx context.Context, tenant string) error
}

// Stores groups one backend's store set.
type Stores struct {
	Organizations store.OrganizationStore
	Assessments   store.AssessmentStore
	Findings      store.FindingStore
}

// Engine runs the document-to-relational migration.
type Engine struct {
	source   Stores
	target   Stores
	prov     Provisioner
	pageSize int
}

func NewEngine(source, target Stores, prov Provisioner, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{source: source, target: target, prov: prov, pageSize: pageSize}
}

// link is one pending join-table write, collected while findings stream
// through and applied in the final stage.
type link struct {
	org          string
	assessmentID string
	assoc        keys.Association
	findingIDs   []string
}

// Run executes the migration. The first error aborts the run; completed
// stages keep their writes and a re-run picks the work up again.
func (e *Engine) Run(ctx context.Context) error {
	log := slog.With("run", uuid.NewString())

	log.Info("stage starting", "stage", "run_schema")
	if err := e.prov.RunControlSchema(ctx); err != nil {
		return fmt.Errorf("run schema: %w", err)
	}
	log.Info("stage complete", "stage", "run_schema")

	orgs, err := e.migrateOrganizations(ctx, log)
	if err != nil {
		return err
	}

	for _, org := range orgs {
		assessmentIDs, err := e.migrateAssessments(ctx, log, org)
		if err != nil {
			return err
		}
		for _, assessmentID := range assessmentIDs {
			links, err := e.migrateFindings(ctx, log, org, assessmentID)
			if err != nil {
				return err
			}
			if err := e.linkAssociations(ctx, log, links); err != nil {
				return err
			}
		}
	}

	log.Info("migration done", "organizations", len(orgs))
	return nil
}

func (e *Engine) migrateOrganizations(ctx context.Context, log *slog.Logger) ([]string, error) {
	log.Info("stage starting", "stage", "migrate_organizations")

	var domains []string
	cursor := ""
	for {
		page, err := e.source.Organizations.GetAll(ctx, store.ListOptions{
			Limit:  e.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("list source organizations: %w", err)
		}
		for _, org := range page.Items {
			if err := e.target.Organizations.Save(ctx, org); err != nil {
				return nil, fmt.Errorf("save organization %s: %w", org.Domain, err)
			}
			if err := e.prov.Provision(ctx, org.Domain); err != nil {
				return nil, fmt.Errorf("provision tenant %s: %w", org.Domain, err)
			}
			domains = append(domains, org.Domain)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	log.Info("stage complete", "stage", "migrate_organizations", "count", len(domains))
	return domains, nil
}

func (e *Engine) migrateAssessments(ctx context.Context, log *slog.Logger, org string) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		page, err := e.source.Assessments.GetAll(ctx, org, store.ListOptions{
			Limit:  e.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("list source assessments for %s: %w", org, err)
		}
		for _, a := range page.Items {
			if err := e.target.Assessments.Save(ctx, a); err != nil {
				return nil, fmt.Errorf("save assessment %s/%s: %w", org, a.ID, err)
			}
			ids = append(ids, a.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	log.Info("stage complete", "stage", "migrate_assessments", "org", org, "count", len(ids))
	return ids, nil
}

func (e *Engine) migrateFindings(ctx context.Context, log *slog.Logger, org, assessmentID string) ([]*link, error) {
	var links []*link
	linkIdx := make(map[keys.Association]*link)

	count := 0
	cursor := ""
	for {
		page, err := e.source.Findings.GetAll(ctx, org, assessmentID, store.ListOptions{
			Limit:  e.pageSize,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("list source findings for %s/%s: %w", org, assessmentID, err)
		}
		for _, f := range page.Items {
			// Decode before writing so a malformed association aborts the
			// run without a half-linked finding on the target.
			assocs, err := keys.DecodeAssociations(f.BestPractices)
			if err != nil {
				return nil, fmt.Errorf("finding %s/%s/%s: %w", org, assessmentID, f.ID, err)
			}
			if err := e.target.Findings.Save(ctx, org, assessmentID, f); err != nil {
				return nil, fmt.Errorf("save finding %s/%s/%s: %w", org, assessmentID, f.ID, err)
			}
			for _, assoc := range assocs {
				l, ok := linkIdx[assoc]
				if !ok {
					l = &link{org: org, assessmentID: assessmentID, assoc: assoc}
					linkIdx[assoc] = l
					links = append(links, l)
				}
				l.findingIDs = append(l.findingIDs, f.ID)
			}
			count++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	log.Info("stage complete", "stage", "migrate_findings",
		"org", org, "assessment", assessmentID, "count", count)
	return links, nil
}

func (e *Engine) linkAssociations(ctx context.Context, log *slog.Logger, links []*link) error {
	if len(links) == 0 {
		return nil
	}

	linked := 0
	for _, l := range links {
		err := e.target.Assessments.AddBestPracticeResults(ctx,
			l.org, l.assessmentID,
			l.assoc.PillarID, l.assoc.QuestionID, l.assoc.BestPracticeID,
			l.findingIDs)
		if err != nil {
			path := keys.BestPracticePath(l.assessmentID, l.assoc.PillarID, l.assoc.QuestionID, l.assoc.BestPracticeID)
			return fmt.Errorf("link %s %s: %w", l.org, path, err)
		}
		linked += len(l.findingIDs)
	}

	log.Info("stage complete", "stage", "link_associations",
		"org", links[0].org, "assessment", links[0].assessmentID, "count", linked)
	return nil
}
