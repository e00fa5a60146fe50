package triage

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
	notifyTimeout      = 15 * time.Second
)

// Service is the business boundary for triage operations.
type Service struct {
	store       Store
	engine      *Engine
	logger      log.Logger
	metrics     *Metrics
	notifier    Notifier
	notifyLevel UrgencyLevel
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithNotifyLevel sets the minimum urgency that triggers a notification.
func WithNotifyLevel(l UrgencyLevel) ServiceOption {
	return func(s *Service) {
		s.notifyLevel = l
	}
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		store:       store,
		engine:      engine,
		logger:      logger,
		metrics:     metrics,
		notifier:    notifier,
		notifyLevel: UrgencyHigh,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze classifies q, persists the result and notifies on urgent outcomes.
// Persistence failures are logged but do not fail the call.
func (s *Service) Analyze(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	result, err := s.engine.Analyze(q)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			s.metrics.observeInvalid()
		} else {
			s.metrics.observeInternal()
			s.logger.Error(ctx, err, "triage failed", "symptoms_len", len(q.Symptoms))
		}
		return nil, err
	}

	L := s.logger.With("request_id", result.RequestID, "rule", result.Rule)

	if err := s.store.Put(ctx, result); err != nil {
		s.metrics.observeStoreError("put")
		L.Error(ctx, err, "failed to persist triage result")
	}

	s.metrics.observeAnalysis(result, time.Since(start).Seconds())

	L.Info(ctx, "triage complete",
		"urgency_level", result.UrgencyLevel,
		"urgency_score", result.UrgencyScore,
		"conditions", len(result.PotentialConditions),
		"symptoms_len", len(q.Symptoms),
	)

	if s.notifier != nil && result.UrgencyLevel.AtLeast(s.notifyLevel) {
		// pass a copy so the caller can serialize the result concurrently.
		go s.notify(context.WithoutCancel(ctx), result.Clone())
	}

	return result, nil
}

// Get retrieves a triage result by request ID.
func (s *Service) Get(ctx context.Context, id string) (*Result, bool, error) {
	r, ok, err := s.store.Get(ctx, id)
	if err != nil {
		s.metrics.observeStoreError("get")
	}
	return r, ok, err
}

// Recent lists the most recent results, newest first. limit is clamped to
// 1..MaxRecentLimit; zero or negative selects DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Result, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	out, err := s.store.Recent(ctx, limit)
	if err != nil {
		s.metrics.observeStoreError("recent")
	}
	return out, err
}

// Engine exposes the underlying classifier for callers that need a
// side-effect free classification, such as assistant tools.
func (s *Service) Engine() *Engine {
	return s.engine
}

func (s *Service) notify(ctx context.Context, result *Result) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	L := s.logger.With("request_id", result.RequestID)
	if err := s.notifier.Send(ctx, result); err != nil {
		s.metrics.observeNotification(false)
		L.Error(ctx, err, "failed to send triage notification")
		return
	}
	s.metrics.observeNotification(true)
	L.Info(ctx, "triage notification sent", "urgency_level", result.UrgencyLevel)
}
