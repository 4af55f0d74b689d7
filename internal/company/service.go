package company

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bordereau/internal/company/metrics"
	"bordereau/pkg/platform/circuit"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

const defaultLookupTimeout = 2 * time.Second

// Service fronts a Registry with a cache, a per-lookup timeout and a
// circuit breaker. It implements Registry itself.
type Service struct {
	registry Registry
	cache    Cache
	breaker  *circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(registry Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		timeout:  defaultLookupTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindCompany returns the registry record for a SIRET or VAT number.
// Unknown companies yield sentinel.ErrNotFound; an open circuit yields
// sentinel.ErrUnavailable.
func (s *Service) FindCompany(ctx context.Context, orgID string) (*Record, error) {
	id := pstrings.CompactIdentifier(orgID)
	if id == "" {
		return nil, sentinel.ErrNotFound
	}

	if s.cache != nil {
		start := time.Now()
		cached, err := s.cache.Find(ctx, id)
		s.metrics.ObserveLookupLatency("cache", time.Since(start))
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			// a broken cache must not block validation
			s.logger.WarnContext(ctx, "company cache lookup failed", "org_id", id, "error", err)
		}
	}

	if s.breaker != nil && !s.breaker.Allow() {
		s.metrics.IncrementFailure("circuit_open")
		return nil, fmt.Errorf("company registry %s: %w", s.breaker.Name(), sentinel.ErrUnavailable)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	record, err := s.registry.FindCompany(lookupCtx, id)
	s.metrics.ObserveLookupLatency("registry", time.Since(start))

	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordSuccess(ctx)
			s.metrics.IncrementFailure("not_found")
			return nil, err
		}
		s.recordFailure(ctx)
		s.metrics.IncrementFailure("error")
		s.logger.WarnContext(ctx, "company registry lookup failed", "org_id", id, "error", err)
		return nil, fmt.Errorf("find company %s: %w", id, err)
	}
	s.recordSuccess(ctx)

	if s.cache != nil {
		if err := s.cache.Save(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to cache company", "org_id", id, "error", err)
		}
	}
	return record, nil
}

func (s *Service) recordSuccess(ctx context.Context) {
	if s.breaker == nil {
		return
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetCircuitOpen(false)
		s.logger.InfoContext(ctx, "company registry circuit closed", "breaker", s.breaker.Name())
	}
}

func (s *Service) recordFailure(ctx context.Context) {
	if s.breaker == nil {
		return
	}
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.metrics.SetCircuitOpen(true)
		s.logger.WarnContext(ctx, "company registry circuit opened", "breaker", s.breaker.Name())
	}
}
