package surreal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/assessly/assessly/internal/config"
	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

// connectTestDB mirrors the package-external test setup. This file lives
// inside the package so tests can shrink the engine page size and force
// the paging loop across several engine pages.
func connectTestDB(t *testing.T) *surrealdb.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	endpoint := os.Getenv("SURREALDB_TEST_URL")
	if endpoint == "" {
		t.Skip("SURREALDB_TEST_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, config.SurrealConfig{
		URL:       endpoint,
		Username:  os.Getenv("SURREALDB_TEST_USER"),
		Password:  os.Getenv("SURREALDB_TEST_PASS"),
		Namespace: "assessly_test",
		Database:  "t_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close(context.Background()))
	})
	return db
}

func savePagingFixture(t *testing.T, db *surrealdb.DB, findings *Findings, total int) []string {
	t.Helper()
	ctx := context.Background()

	assessments := NewAssessments(db)
	require.NoError(t, assessments.Save(ctx, &models.Assessment{
		ID:           "A1",
		Organization: "acme.example.com",
		Name:         "paging",
		Pillars: []models.Pillar{{
			ID: "p1",
			Questions: []models.Question{{
				ID:            "q1",
				BestPractices: []models.BestPractice{{ID: "b1", Name: "linked"}},
			}},
		}},
	}))

	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("tool#%02d", i)
		f := &models.Finding{ID: id, Severity: "LOW"}
		if i == 5 {
			f.Hidden = true
		}
		require.NoError(t, findings.Save(ctx, "acme.example.com", "A1", f))
		ids = append(ids, id)
	}
	require.NoError(t, assessments.AddBestPracticeResults(ctx,
		"acme.example.com", "A1", "p1", "q1", "b1", ids))
	return ids
}

// With the engine page size below the caller's limit, each returned page
// must still hold exactly the requested number of findings until the data
// runs out, and the hidden finding must be skipped without shorting a page.
func TestBestPracticeFindings_RefillAcrossEnginePages(t *testing.T) {
	db := connectTestDB(t)
	findings := NewFindings(db)
	findings.pageSize = 3
	savePagingFixture(t, db, findings, 11) // tool#05 hidden, 10 visible
	ctx := context.Background()

	var seen []string
	var pageSizes []int
	cursor := ""
	for {
		page, err := findings.GetBestPracticeFindings(ctx,
			"acme.example.com", "A1", "p1", "q1", "b1",
			store.FindingQueryOptions{Limit: 4, Cursor: cursor})
		require.NoError(t, err)
		pageSizes = append(pageSizes, len(page.Items))
		for _, f := range page.Items {
			seen = append(seen, f.ID)
			assert.False(t, f.Hidden)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []int{4, 4, 2}, pageSizes)
	want := []string{
		"tool#00", "tool#01", "tool#02", "tool#03", "tool#04",
		"tool#06", "tool#07", "tool#08", "tool#09", "tool#10",
	}
	assert.Equal(t, want, seen)
}

func TestGetAll_CompleteAcrossEnginePages(t *testing.T) {
	db := connectTestDB(t)
	findings := NewFindings(db)
	findings.pageSize = 3
	ids := savePagingFixture(t, db, findings, 11)
	ctx := context.Background()

	// A limit covering the whole set fills in one call with no cursor,
	// even though the engine serves it three rows at a time.
	page, err := findings.GetAll(ctx, "acme.example.com", "A1", store.ListOptions{Limit: 11})
	require.NoError(t, err)
	require.Len(t, page.Items, 11)
	assert.Empty(t, page.NextCursor)
	for i, f := range page.Items {
		assert.Equal(t, ids[i], f.ID)
	}

	// A limit that lands exactly on the final row also ends the chain.
	var seen int
	cursor := ""
	for {
		p, err := findings.GetAll(ctx, "acme.example.com", "A1",
			store.ListOptions{Limit: 11, Cursor: cursor})
		require.NoError(t, err)
		seen += len(p.Items)
		if p.NextCursor == "" {
			break
		}
		cursor = p.NextCursor
	}
	assert.Equal(t, 11, seen)
}
