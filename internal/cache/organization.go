package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/assessly/assessly/internal/store"
	"github.com/assessly/assessly/pkg/models"
)

// CachedOrganizationStore is a read-through decorator over an
// OrganizationStore, following the same rules as the assessment
// decorator: Get is served from the cache when possible, every write
// invalidates the entry, and cache failures degrade to the underlying
// store.
type CachedOrganizationStore struct {
	inner store.OrganizationStore
	cache Cache
	ttl   time.Duration
}

func NewCachedOrganizationStore(inner store.OrganizationStore, cache Cache, ttl time.Duration) *CachedOrganizationStore {
	return &CachedOrganizationStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedOrganizationStore) Get(ctx context.Context, domain string) (*models.Organization, error) {
	key := OrganizationKey(domain)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("organization cache read failed", "key", key, "error", err)
	} else if ok {
		var o models.Organization
		if err := json.Unmarshal(data, &o); err == nil {
			return &o, nil
		}
		slog.Warn("organization cache entry corrupt, dropping", "key", key)
		_ = s.cache.Delete(ctx, key)
	}

	o, err := s.inner.Get(ctx, domain)
	if err != nil || o == nil {
		return o, err
	}

	if data, err := json.Marshal(o); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("organization cache write failed", "key", key, "error", err)
		}
	}
	return o, nil
}

func (s *CachedOrganizationStore) invalidate(ctx context.Context, domain string) {
	key := OrganizationKey(domain)
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("organization cache invalidation failed", "key", key, "error", err)
	}
}

func (s *CachedOrganizationStore) Save(ctx context.Context, org *models.Organization) error {
	if err := s.inner.Save(ctx, org); err != nil {
		return err
	}
	s.invalidate(ctx, org.Domain)
	return nil
}

func (s *CachedOrganizationStore) GetAll(ctx context.Context, opts store.ListOptions) (store.Page[*models.Organization], error) {
	return s.inner.GetAll(ctx, opts)
}

func (s *CachedOrganizationStore) Delete(ctx context.Context, domain string) error {
	if err := s.inner.Delete(ctx, domain); err != nil {
		return err
	}
	s.invalidate(ctx, domain)
	return nil
}
