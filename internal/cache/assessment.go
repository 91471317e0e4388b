package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

// CachedAssessmentStore is a read-through decorator over an
// AssessmentStore. Get is served from the cache when possible; every
// write invalidates the cached entry. Cache failures degrade to the
// underlying store and are logged, never surfaced.
type CachedAssessmentStore struct {
	inner store.AssessmentStore
	cache Cache
	ttl   time.Duration
}

func NewCachedAssessmentStore(inner store.AssessmentStore, cache Cache, ttl time.Duration) *CachedAssessmentStore {
	return &CachedAssessmentStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedAssessmentStore) Get(ctx context.Context, org, assessmentID string) (*models.Assessment, error) {
	key := AssessmentKey(org, assessmentID)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("assessment cache read failed", "key", key, "error", err)
	} else if ok {
		var a models.Assessment
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
		slog.Warn("assessment cache entry corrupt, dropping", "key", key)
		_ = s.cache.Delete(ctx, key)
	}

	a, err := s.inner.Get(ctx, org, assessmentID)
	if err != nil || a == nil {
		return a, err
	}

	if data, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("assessment cache write failed", "key", key, "error", err)
		}
	}
	return a, nil
}

func (s *CachedAssessmentStore) invalidate(ctx context.Context, org, assessmentID string) {
	key := AssessmentKey(org, assessmentID)
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("assessment cache invalidation failed", "key", key, "error", err)
	}
}

func (s *CachedAssessmentStore) Save(ctx context.Context, a *models.Assessment) error {
	if err := s.inner.Save(ctx, a); err != nil {
		return err
	}
	s.invalidate(ctx, a.Organization, a.ID)
	return nil
}

func (s *CachedAssessmentStore) GetAll(ctx context.Context, org string, opts store.ListOptions) (store.Page[*models.Assessment], error) {
	return s.inner.GetAll(ctx, org, opts)
}

func (s *CachedAssessmentStore) Update(ctx context.Context, org, assessmentID string, fields store.Fields) error {
	if err := s.inner.Update(ctx, org, assessmentID, fields); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}

func (s *CachedAssessmentStore) UpdatePillar(ctx context.Context, org, assessmentID, pillarID string, fields store.Fields) error {
	if err := s.inner.UpdatePillar(ctx, org, assessmentID, pillarID, fields); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}

func (s *CachedAssessmentStore) UpdateQuestion(ctx context.Context, org, assessmentID, pillarID, questionID string, fields store.Fields) error {
	if err := s.inner.UpdateQuestion(ctx, org, assessmentID, pillarID, questionID, fields); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}

func (s *CachedAssessmentStore) UpdateBestPractice(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, fields store.Fields) error {
	if err := s.inner.UpdateBestPractice(ctx, org, assessmentID, pillarID, questionID, bestPracticeID, fields); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}

func (s *CachedAssessmentStore) AddBestPracticeResults(ctx context.Context, org, assessmentID, pillarID, questionID, bestPracticeID string, findingIDs []string) error {
	if err := s.inner.AddBestPracticeResults(ctx, org, assessmentID, pillarID, questionID, bestPracticeID, findingIDs); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}

func (s *CachedAssessmentStore) Delete(ctx context.Context, org, assessmentID string) error {
	if err := s.inner.Delete(ctx, org, assessmentID); err != nil {
		return err
	}
	s.invalidate(ctx, org, assessmentID)
	return nil
}
