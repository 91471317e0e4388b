package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/assessly/assessly/internal/config"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/internal/store/postgres"
	"github.com/assessly/assessly/internal/tenantdb"
	"github.com/assessly/assessly/pkg/models"
)

const (
	tenant1 = "acme.example.com"
	tenant2 = "globex.example.com"
)

// setupManager spins up a Postgres container, connects the tenant manager,
// applies the control schema and provisions two tenants.
func setupManager(t *testing.T) *tenantdb.Manager {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("assessly_control"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	mgr, err := tenantdb.NewManager(ctx, config.ControlDBConfig{
		URL:             connStr,
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(mgr.CloseAll)

	require.NoError(t, mgr.RunControlSchema(ctx))
	require.NoError(t, mgr.Provision(ctx, tenant1))
	require.NoError(t, mgr.Provision(ctx, tenant2))

	return mgr
}

func sampleAssessment(org, id string) *models.Assessment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Assessment{
		ID:           id,
		Organization: org,
		Name:         "production workloads",
		CreatedBy:    "auditor@" + org,
		CreatedAt:    now,
		RoleArn:      "arn:aws:iam::123456789012:role/assessor",
		Regions:      []string{"eu-west-1", "us-east-1"},
		Pillars: []models.Pillar{
			{
				ID:   "p1",
				Name: "Security",
				Questions: []models.Question{
					{
						ID:    "q1",
						Title: "How do you manage identities?",
						BestPractices: []models.BestPractice{
							{ID: "b1", Name: "Use central identity", Risk: "HIGH"},
							{ID: "b2", Name: "Rotate credentials", Risk: "MEDIUM", Checked: true},
						},
					},
					{ID: "q2", Title: "How do you protect data at rest?"},
				},
			},
			{ID: "p2", Name: "Reliability"},
		},
		FileExports: []models.FileExport{
			{ID: "fe1", Format: "pdf", Location: "s3://exports/a.pdf", CreatedAt: now},
		},
	}
}

func sampleFinding(id string) *models.Finding {
	return &models.Finding{
		ID:           id,
		Severity:     "HIGH",
		StatusCode:   "FAIL",
		StatusDetail: "Public bucket detected",
		RiskDetails:  "Data exposure risk",
		Remediation:  models.Remediation{Text: "Block public access", URL: "https://docs.example.com/fix"},
		Resources: []models.Resource{
			{ID: "arn:aws:s3:::bucket-1", Type: "s3", Region: "eu-west-1"},
		},
	}
}

// --- Organizations ---

func TestOrganizations_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewOrganizations(mgr.Control())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	org := &models.Organization{
		Domain:       tenant1,
		Name:         "Acme",
		BillingEmail: "billing@acme.example.com",
		AccountID:    "123456789012",
		PaymentPlan:  "enterprise",
		SeatLimit:    50,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Save(ctx, org))

	got, err := s.Get(ctx, tenant1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, 50, got.SeatLimit)
	assert.True(t, now.Equal(got.CreatedAt))

	// Save again is an upsert.
	org.Name = "Acme Corp"
	require.NoError(t, s.Save(ctx, org))
	got, err = s.Get(ctx, tenant1)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)
}

func TestOrganizations_GetAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewOrganizations(mgr.Control())

	got, err := s.Get(context.Background(), "nobody.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrganizations_DeleteMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewOrganizations(mgr.Control())

	err := s.Delete(context.Background(), "nobody.example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOrganizations_Pagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewOrganizations(mgr.Control())
	ctx := context.Background()

	domains := []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com", "e.example.com"}
	for _, d := range domains {
		require.NoError(t, s.Save(ctx, &models.Organization{Domain: d, Name: d}))
	}

	var seen []string
	cursor := ""
	for {
		page, err := s.GetAll(ctx, store.ListOptions{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, o := range page.Items {
			seen = append(seen, o.Domain)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, domains, seen)
}

func TestOrganizations_InvalidCursor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewOrganizations(mgr.Control())

	_, err := s.GetAll(context.Background(), store.ListOptions{Cursor: "!!garbage!!"})
	assert.ErrorIs(t, err, store.ErrInvalidCursor)
}

// --- Assessments ---

func TestAssessments_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	a := sampleAssessment(tenant1, "A1")
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, a.Regions, got.Regions)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))

	require.Len(t, got.Pillars, 2)
	assert.Equal(t, "p1", got.Pillars[0].ID)
	assert.Equal(t, "p2", got.Pillars[1].ID)
	require.Len(t, got.Pillars[0].Questions, 2)
	require.Len(t, got.Pillars[0].Questions[0].BestPractices, 2)
	assert.Equal(t, "Rotate credentials", got.Pillars[0].Questions[0].BestPractices[1].Name)
	assert.True(t, got.Pillars[0].Questions[0].BestPractices[1].Checked)
	require.Len(t, got.FileExports, 1)
	assert.Equal(t, "pdf", got.FileExports[0].Format)
}

func TestAssessments_GetAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)

	got, err := s.Get(context.Background(), tenant1, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAssessments_PartialUpdateIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	a := sampleAssessment(tenant1, "A1")
	require.NoError(t, s.Save(ctx, a))

	finished := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.Update(ctx, tenant1, "A1", store.Fields{
		"name":       "renamed",
		"finishedAt": finished,
	}))

	got, err := s.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	// Untouched fields survive.
	assert.Equal(t, a.RoleArn, got.RoleArn)
	assert.Equal(t, a.Regions, got.Regions)
	assert.Len(t, got.Pillars, 2)
}

func TestAssessments_NestedUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleAssessment(tenant1, "A1")))

	require.NoError(t, s.UpdatePillar(ctx, tenant1, "A1", "p1", store.Fields{"name": "Security v2"}))
	require.NoError(t, s.UpdateQuestion(ctx, tenant1, "A1", "p1", "q1", store.Fields{"title": "Identity?"}))
	require.NoError(t, s.UpdateBestPractice(ctx, tenant1, "A1", "p1", "q1", "b1", store.Fields{"checked": true}))

	got, err := s.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Security v2", got.Pillars[0].Name)
	assert.Equal(t, "Identity?", got.Pillars[0].Questions[0].Title)
	assert.True(t, got.Pillars[0].Questions[0].BestPractices[0].Checked)
	// Sibling untouched.
	assert.Equal(t, "Rotate credentials", got.Pillars[0].Questions[0].BestPractices[1].Name)
}

func TestAssessments_UpdateMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	err := s.Update(ctx, tenant1, "missing", store.Fields{"name": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Save(ctx, sampleAssessment(tenant1, "A1")))
	err = s.UpdateBestPractice(ctx, tenant1, "A1", "p1", "q1", "no-such-bp", store.Fields{"checked": true})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssessments_UnknownFieldRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleAssessment(tenant1, "A1")))

	err := s.Update(ctx, tenant1, "A1", store.Fields{"organization": "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestAssessments_PaginationComplete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	want := []string{"A1", "A2", "A3", "A4", "A5"}
	for _, id := range want {
		require.NoError(t, s.Save(ctx, sampleAssessment(tenant1, id)))
	}

	var seen []string
	cursor := ""
	for {
		page, err := s.GetAll(ctx, tenant1, store.ListOptions{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, a := range page.Items {
			seen = append(seen, a.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, want, seen)
}

func TestAssessments_Search(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	a1 := sampleAssessment(tenant1, "A1")
	a1.Name = "production audit"
	a2 := sampleAssessment(tenant1, "A2")
	a2.Name = "staging audit"
	require.NoError(t, s.Save(ctx, a1))
	require.NoError(t, s.Save(ctx, a2))

	page, err := s.GetAll(ctx, tenant1, store.ListOptions{Search: "PRODUCTION"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "A1", page.Items[0].ID)
}

func TestAssessments_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)
	ctx := context.Background()

	a1 := sampleAssessment(tenant1, "A1")
	a1.Name = "belongs to acme"
	a2 := sampleAssessment(tenant2, "A1") // same id, other tenant
	a2.Name = "belongs to globex"
	require.NoError(t, s.Save(ctx, a1))
	require.NoError(t, s.Save(ctx, a2))

	got1, err := s.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	assert.Equal(t, "belongs to acme", got1.Name)

	got2, err := s.Get(ctx, tenant2, "A1")
	require.NoError(t, err)
	assert.Equal(t, "belongs to globex", got2.Name)

	require.NoError(t, s.Delete(ctx, tenant1, "A1"))

	gone, err := s.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	still, err := s.Get(ctx, tenant2, "A1")
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, "belongs to globex", still.Name)
}

func TestManager_UnprovisionedTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	s := postgres.NewAssessments(mgr)

	_, err := s.Get(context.Background(), "unknown.example.com", "A1")
	assert.ErrorIs(t, err, store.ErrTenantNotProvisioned)
}

// --- Findings ---

func saveAssessmentAndFinding(t *testing.T, mgr *tenantdb.Manager, org string) (*postgres.Assessments, *postgres.Findings) {
	t.Helper()
	ctx := context.Background()
	assessments := postgres.NewAssessments(mgr)
	findings := postgres.NewFindings(mgr)
	require.NoError(t, assessments.Save(ctx, sampleAssessment(org, "A1")))
	return assessments, findings
}

func TestFindings_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	f := sampleFinding("tool#1")
	f.BestPractices = "p1#q1#b1"
	require.NoError(t, findings.Save(ctx, tenant1, "A1", f))

	got, err := findings.Get(ctx, tenant1, "A1", "tool#1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "HIGH", got.Severity)
	assert.Equal(t, "Block public access", got.Remediation.Text)
	assert.Equal(t, "p1#q1#b1", got.BestPractices)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, "s3", got.Resources[0].Type)
}

func TestFindings_SaveRequiresAssessment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	findings := postgres.NewFindings(mgr)

	err := findings.Save(context.Background(), tenant1, "no-such-assessment", sampleFinding("tool#1"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindings_UpdateHidden(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	require.NoError(t, findings.Save(ctx, tenant1, "A1", sampleFinding("tool#1")))
	require.NoError(t, findings.Update(ctx, tenant1, "A1", "tool#1", store.Fields{"hidden": true}))

	got, err := findings.Get(ctx, tenant1, "A1", "tool#1")
	require.NoError(t, err)
	assert.True(t, got.Hidden)
	// Everything else untouched.
	assert.Equal(t, "HIGH", got.Severity)
}

func TestFindings_CommentLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	require.NoError(t, findings.Save(ctx, tenant1, "A1", sampleFinding("tool#1")))

	now := time.Now().UTC().Truncate(time.Microsecond)
	comment := &models.FindingComment{ID: "c1", AuthorID: "u1", Text: "needs review", CreatedAt: now}
	require.NoError(t, findings.SaveComment(ctx, tenant1, "A1", "tool#1", comment))

	require.NoError(t, findings.UpdateComment(ctx, tenant1, "A1", "tool#1", "c1", "reviewed"))

	got, err := findings.Get(ctx, tenant1, "A1", "tool#1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "reviewed", got.Comments[0].Text)
	assert.Equal(t, "u1", got.Comments[0].AuthorID)

	require.NoError(t, findings.DeleteComment(ctx, tenant1, "A1", "tool#1", "c1"))
	got, err = findings.Get(ctx, tenant1, "A1", "tool#1")
	require.NoError(t, err)
	assert.Empty(t, got.Comments)

	err = findings.UpdateComment(ctx, tenant1, "A1", "tool#1", "c1", "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = findings.DeleteComment(ctx, tenant1, "A1", "tool#1", "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindings_CommentOnMissingFinding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)

	err := findings.SaveComment(context.Background(), tenant1, "A1", "missing",
		&models.FindingComment{ID: "c1", Text: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindings_DeleteAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	for _, id := range []string{"tool#1", "tool#2", "tool#3"} {
		require.NoError(t, findings.Save(ctx, tenant1, "A1", sampleFinding(id)))
	}

	require.NoError(t, findings.DeleteAll(ctx, tenant1, "A1"))

	page, err := findings.GetAll(ctx, tenant1, "A1", store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// Idempotent on an already empty set.
	require.NoError(t, findings.DeleteAll(ctx, tenant1, "A1"))
}

func TestFindings_CascadeOnAssessmentDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	assessments, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	require.NoError(t, findings.Save(ctx, tenant1, "A1", sampleFinding("tool#1")))
	require.NoError(t, assessments.Delete(ctx, tenant1, "A1"))

	got, err := findings.Get(ctx, tenant1, "A1", "tool#1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Best practice associations ---

func TestBestPracticeFindings_Query(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	assessments, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	visible := sampleFinding("tool#1")
	hidden := sampleFinding("tool#2")
	hidden.Hidden = true
	unrelated := sampleFinding("tool#3")
	require.NoError(t, findings.Save(ctx, tenant1, "A1", visible))
	require.NoError(t, findings.Save(ctx, tenant1, "A1", hidden))
	require.NoError(t, findings.Save(ctx, tenant1, "A1", unrelated))

	require.NoError(t, assessments.AddBestPracticeResults(ctx, tenant1, "A1", "p1", "q1", "b1",
		[]string{"tool#1", "tool#2"}))

	page, err := findings.GetBestPracticeFindings(ctx, tenant1, "A1", "p1", "q1", "b1",
		store.FindingQueryOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "hidden findings excluded by default")
	assert.Equal(t, "tool#1", page.Items[0].ID)

	page, err = findings.GetBestPracticeFindings(ctx, tenant1, "A1", "p1", "q1", "b1",
		store.FindingQueryOptions{ShowHidden: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

// One finding associated with two best practices yields exactly two join
// rows, and re-linking adds none.
func TestBestPracticeFindings_LinkIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	assessments, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	f := sampleFinding("tool#1")
	f.BestPractices = "p1#q1#b1,p1#q2#b3"
	require.NoError(t, findings.Save(ctx, tenant1, "A1", f))

	// q2 has no best practice b3 in the sample tree; add it first.
	a, err := assessments.Get(ctx, tenant1, "A1")
	require.NoError(t, err)
	a.Pillars[0].Questions[1].BestPractices = []models.BestPractice{{ID: "b3", Name: "Encrypt"}}
	require.NoError(t, assessments.Save(ctx, a))
	require.NoError(t, findings.Save(ctx, tenant1, "A1", f))

	link := func() {
		require.NoError(t, assessments.AddBestPracticeResults(ctx, tenant1, "A1", "p1", "q1", "b1", []string{"tool#1"}))
		require.NoError(t, assessments.AddBestPracticeResults(ctx, tenant1, "A1", "p1", "q2", "b3", []string{"tool#1"}))
	}
	link()
	link() // re-run converges

	pool, err := mgr.GetConnection(ctx, tenant1)
	require.NoError(t, err)

	var count int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM best_practice_findings WHERE organization = $1 AND assessment_id = $2`,
		tenant1, "A1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBestPracticeFindings_LinkMissingTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	assessments, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	require.NoError(t, findings.Save(ctx, tenant1, "A1", sampleFinding("tool#1")))

	err := assessments.AddBestPracticeResults(ctx, tenant1, "A1", "p1", "q1", "no-such-bp", []string{"tool#1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindings_PaginationExactFill(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	assessments, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	var linked []string
	for i := 1; i <= 7; i++ {
		f := sampleFinding("tool#" + string(rune('0'+i)))
		if i%2 == 0 {
			f.Hidden = true
		}
		require.NoError(t, findings.Save(ctx, tenant1, "A1", f))
		linked = append(linked, f.ID)
	}
	require.NoError(t, assessments.AddBestPracticeResults(ctx, tenant1, "A1", "p1", "q1", "b1", linked))

	// 4 visible findings; a page of 3 fills exactly and leaves one behind.
	page, err := findings.GetBestPracticeFindings(ctx, tenant1, "A1", "p1", "q1", "b1",
		store.FindingQueryOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := findings.GetBestPracticeFindings(ctx, tenant1, "A1", "p1", "q1", "b1",
		store.FindingQueryOptions{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)

	for _, f := range append(page.Items, rest.Items...) {
		assert.False(t, f.Hidden)
	}
}

func TestFindings_Search(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	mgr := setupManager(t)
	_, findings := saveAssessmentAndFinding(t, mgr, tenant1)
	ctx := context.Background()

	f1 := sampleFinding("tool#1")
	f1.StatusDetail = "Public bucket detected"
	f2 := sampleFinding("tool#2")
	f2.StatusDetail = "Unencrypted volume"
	f2.RiskDetails = "exposure through snapshots"
	require.NoError(t, findings.Save(ctx, tenant1, "A1", f1))
	require.NoError(t, findings.Save(ctx, tenant1, "A1", f2))

	page, err := findings.GetAll(ctx, tenant1, "A1", store.ListOptions{Search: "bucket"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "tool#1", page.Items[0].ID)

	// Search matches riskDetails too.
	page, err = findings.GetAll(ctx, tenant1, "A1", store.ListOptions{Search: "snapshots"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "tool#2", page.Items[0].ID)
}
