// Package worker provides async event processing for scored claims.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AlertWorker watches the scored-claim topic and republishes high-risk
// results to the alert topic for downstream investigation queues.
type AlertWorker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	processed     atomic.Int64
	alerted       atomic.Int64
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// HighRiskAlert is the payload published on the alert topic.
type HighRiskAlert struct {
	ScoreID     string             `json:"score_id"`
	ClaimID     string             `json:"claim_id"`
	Score       int                `json:"score"`
	RiskSegment domain.RiskSegment `json:"risk_segment"`
	Probability float64            `json:"probability"`
	ModelMode   domain.ModelMode   `json:"model_mode"`
	AlertedAt   int64              `json:"alerted_at"`
}

// NewAlertWorker creates a new alert worker.
func NewAlertWorker(bus domain.EventBus, repo domain.Repository) *AlertWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertWorker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the scored-claim topic.
func (w *AlertWorker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimScored, w.handleScoredClaim)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("alert worker started",
		"topic", domain.TopicClaimScored,
	)
	return nil
}

// handleScoredClaim inspects a scored-claim event and raises an alert
// when the claim landed in the high-risk segment.
func (w *AlertWorker) handleScoredClaim(ctx context.Context, msg *domain.Message) error {
	var event domain.ScoredClaimEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse scored claim event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)

	if event.RiskSegment != domain.SegmentHigh {
		return nil
	}

	alert := HighRiskAlert{
		ScoreID:     event.ScoreID,
		ClaimID:     event.ClaimID,
		Score:       event.Score,
		RiskSegment: event.RiskSegment,
		Probability: event.Probability,
		ModelMode:   event.ModelMode,
		AlertedAt:   time.Now().Unix(),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	if err := w.bus.Publish(ctx, domain.TopicHighRiskAlert, payload); err != nil {
		slog.Error("failed to publish high risk alert",
			"score_id", event.ScoreID,
			"claim_id", event.ClaimID,
			"error", err,
		)
		return err
	}

	w.alerted.Add(1)

	slog.Info("high risk alert raised",
		"score_id", event.ScoreID,
		"claim_id", event.ClaimID,
		"score", event.Score,
		"model_mode", event.ModelMode,
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *AlertWorker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("alert worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int   `json:"subscription_count"`
	EventsProcessed   int64 `json:"events_processed"`
	AlertsRaised      int64 `json:"alerts_raised"`
}

// GetStats returns current worker statistics.
func (w *AlertWorker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		EventsProcessed:   w.processed.Load(),
		AlertsRaised:      w.alerted.Load(),
	}
}
