package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	obscontext "github.com/smallbiznis/payhook/internal/observability/context"
	obsmetrics "github.com/smallbiznis/payhook/internal/observability/metrics"
	"github.com/smallbiznis/payhook/internal/reconcile"
	"github.com/smallbiznis/payhook/internal/webhook/adapters"
	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/internal/webhook/idempotency"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Adapters   *adapters.Registry
	Dedup      idempotency.Store
	Reconcile  *reconcile.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service runs one webhook delivery through the full pipeline: signature
// verification over the raw body, dedup claim on the event id, payload
// normalization, reconciliation. The dedup key is only committed after
// reconciliation succeeds; failures release the claim so the provider's
// redelivery retries the work.
type Service struct {
	log        *zap.Logger
	adapters   *adapters.Registry
	dedup      idempotency.Store
	reconcile  *reconcile.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("webhook"),
		adapters:   p.Adapters,
		dedup:      p.Dedup,
		reconcile:  p.Reconcile,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*domain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, domain.ErrInvalidProvider
	}
	ctx = obscontext.WithProvider(ctx, provider)

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.recordOutcome(ctx, provider, "rejected")
		if errors.Is(err, domain.ErrMissingSecret) {
			s.log.Error("webhook secret not configured", zap.String("provider", provider))
		} else {
			s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		}
		return nil, err
	}

	eventID, err := adapter.EventID(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			s.recordOutcome(ctx, provider, domain.OutcomeIgnored)
			return &domain.IngestResult{Outcome: domain.OutcomeIgnored}, nil
		}
		return nil, err
	}

	key := idempotency.Key(provider, eventID)
	claimed, err := s.dedup.TryBegin(ctx, key)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.log.Info("duplicate webhook delivery",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
		)
		s.recordOutcome(ctx, provider, domain.OutcomeDuplicate)
		return &domain.IngestResult{Outcome: domain.OutcomeDuplicate, EventID: eventID}, nil
	}

	signal, err := adapter.Parse(ctx, payload)
	if err != nil {
		s.release(ctx, key)
		if errors.Is(err, domain.ErrEventIgnored) {
			s.recordOutcome(ctx, provider, domain.OutcomeIgnored)
			return &domain.IngestResult{Outcome: domain.OutcomeIgnored, EventID: eventID}, nil
		}
		return nil, err
	}

	if err := s.reconcile.ProcessSignal(ctx, signal); err != nil {
		s.release(ctx, key)
		s.recordOutcome(ctx, provider, "failed")
		return nil, err
	}

	if err := s.dedup.Commit(ctx, key); err != nil {
		// Reconciliation already converged; a commit failure only risks one
		// redundant retry, which the idempotent transitions absorb.
		s.log.Warn("failed to commit dedup key", zap.String("key", key), zap.Error(err))
	}

	s.recordOutcome(ctx, provider, domain.OutcomeProcessed)
	return &domain.IngestResult{Outcome: domain.OutcomeProcessed, EventID: eventID}, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.dedup.Release(ctx, key); err != nil {
		s.log.Error("failed to release dedup claim",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *Service) recordOutcome(ctx context.Context, provider, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookEvent(ctx, provider, outcome)
}
