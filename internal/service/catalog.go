package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/tcof/internal/adapter/otel"
	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/catalog"
	"github.com/Strob0t/tcof/internal/port/broadcast"
	"github.com/Strob0t/tcof/internal/port/cache"
	"github.com/Strob0t/tcof/internal/port/catalogprovider"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
)

const catalogCacheKey = "catalog:factors"

// CatalogService serves the read-only success-factor catalog through a cache.
// Entries expire after the configured TTL; Refresh drops them on every
// instance at once.
type CatalogService struct {
	provider   catalogprovider.Provider
	cache      cache.Cache
	ttl        time.Duration
	queue      messagequeue.Queue
	hub        broadcast.Broadcaster
	metrics    *cfotel.Metrics
	instanceID string
	group      singleflight.Group
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(provider catalogprovider.Provider, c cache.Cache, ttl time.Duration, queue messagequeue.Queue, hub broadcast.Broadcaster) *CatalogService {
	if queue == nil {
		queue = messagequeue.Discard{}
	}
	if hub == nil {
		hub = broadcast.Discard{}
	}
	return &CatalogService{
		provider:   provider,
		cache:      c,
		ttl:        ttl,
		queue:      queue,
		hub:        hub,
		instanceID: uuid.NewString(),
	}
}

// SetMetrics enables metric recording.
func (s *CatalogService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// List returns all success factors.
func (s *CatalogService) List(ctx context.Context) ([]catalog.Factor, error) {
	factors, ok, err := cache.GetJSON[[]catalog.Factor](ctx, s.cache, catalogCacheKey)
	if err != nil {
		slog.WarnContext(ctx, "catalog cache read failed", "error", err)
	}
	if ok {
		return factors, nil
	}

	v, err, _ := s.group.Do(catalogCacheKey, func() (any, error) {
		if cached, ok, _ := cache.GetJSON[[]catalog.Factor](ctx, s.cache, catalogCacheKey); ok {
			return cached, nil
		}
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Factor), nil
}

// Get returns one success factor.
func (s *CatalogService) Get(ctx context.Context, id string) (*catalog.Factor, error) {
	f, ok, err := s.Factor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("success factor %s: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

// Factor implements FactorLookup.
func (s *CatalogService) Factor(ctx context.Context, id string) (*catalog.Factor, bool, error) {
	factors, err := s.List(ctx)
	if err != nil {
		return nil, false, err
	}
	f, ok := catalog.Find(factors, id)
	return f, ok, nil
}

// Refresh reloads the catalog from the provider and tells other instances
// to drop their cached copy.
func (s *CatalogService) Refresh(ctx context.Context) ([]catalog.Factor, error) {
	if err := s.cache.Delete(ctx, catalogCacheKey); err != nil {
		slog.WarnContext(ctx, "catalog cache delete failed", "error", err)
	}
	s.group.Forget(catalogCacheKey)

	factors, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	payload := messagequeue.CatalogRefreshedPayload{
		InstanceID:  s.instanceID,
		FactorCount: len(factors),
		RefreshedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err == nil {
		err = s.queue.Publish(ctx, messagequeue.SubjectCatalogRefreshed, data)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish catalog refresh", "error", err)
	}
	s.hub.BroadcastEvent(ctx, broadcast.EventCatalogRefreshed, payload)

	slog.InfoContext(ctx, "catalog refreshed", "factors", len(factors))
	return factors, nil
}

// StartInvalidationListener drops the cached catalog when another instance
// refreshes it. The returned function stops listening.
func (s *CatalogService) StartInvalidationListener(ctx context.Context) (func(), error) {
	return s.queue.Subscribe(ctx, messagequeue.SubjectCatalogRefreshed, s.handleRefreshed)
}

func (s *CatalogService) handleRefreshed(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.CatalogRefreshedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode catalog refresh: %w", err)
	}
	if p.InstanceID == s.instanceID {
		return nil
	}
	s.group.Forget(catalogCacheKey)
	if err := s.cache.Delete(ctx, catalogCacheKey); err != nil {
		return fmt.Errorf("drop cached catalog: %w", err)
	}
	slog.InfoContext(ctx, "cached catalog dropped", "refreshed_by", p.InstanceID)
	return nil
}

func (s *CatalogService) load(ctx context.Context) ([]catalog.Factor, error) {
	ctx, span := cfotel.StartCatalogLoadSpan(ctx)
	defer span.End()

	factors, err := s.provider.Factors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CatalogLoads.Add(ctx, 1)
	}
	if err := cache.SetJSON(ctx, s.cache, catalogCacheKey, factors, s.ttl); err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "error", err)
	}
	return factors, nil
}
