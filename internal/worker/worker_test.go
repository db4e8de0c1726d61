package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func publishScoredClaim(t *testing.T, b domain.EventBus, event domain.ScoredClaimEvent) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicClaimScored, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestAlertWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewAlertWorker(eventBus, nil)

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("HighRiskRaisesAlert", func(t *testing.T) {
		w := NewAlertWorker(eventBus, nil)
		w.Start()
		defer w.Stop()

		var alertReceived atomic.Bool
		var alertPayload []byte

		eventBus.Subscribe(context.Background(), domain.TopicHighRiskAlert, func(ctx context.Context, msg *domain.Message) error {
			alertPayload = msg.Payload
			alertReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		publishScoredClaim(t, eventBus, domain.ScoredClaimEvent{
			ScoreID:     "score-high",
			ClaimID:     "claim-high",
			Score:       545,
			RiskSegment: domain.SegmentHigh,
			Probability: 0.42,
			ModelMode:   domain.ModeML,
			Timestamp:   time.Now().Unix(),
		})

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Fatal("expected alert to be published for high-risk claim")
		}

		var alert HighRiskAlert
		if err := json.Unmarshal(alertPayload, &alert); err != nil {
			t.Fatalf("failed to parse alert: %v", err)
		}
		if alert.ScoreID != "score-high" {
			t.Errorf("expected score ID 'score-high', got '%s'", alert.ScoreID)
		}
		if alert.Score != 545 {
			t.Errorf("expected score 545, got %d", alert.Score)
		}
		if alert.AlertedAt == 0 {
			t.Error("expected alerted_at to be set")
		}
	})

	t.Run("LowRiskIgnored", func(t *testing.T) {
		w := NewAlertWorker(eventBus, nil)
		w.Start()
		defer w.Stop()

		var alertReceived atomic.Bool
		eventBus.Subscribe(context.Background(), domain.TopicHighRiskAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		publishScoredClaim(t, eventBus, domain.ScoredClaimEvent{
			ScoreID:     "score-low",
			ClaimID:     "claim-low",
			Score:       690,
			RiskSegment: domain.SegmentLow,
			Probability: 0.02,
			ModelMode:   domain.ModeML,
			Timestamp:   time.Now().Unix(),
		})

		time.Sleep(100 * time.Millisecond)

		if alertReceived.Load() {
			t.Error("expected no alert for low-risk claim")
		}

		stats := w.GetStats()
		if stats.EventsProcessed != 1 {
			t.Errorf("expected 1 event processed, got %d", stats.EventsProcessed)
		}
		if stats.AlertsRaised != 0 {
			t.Errorf("expected 0 alerts raised, got %d", stats.AlertsRaised)
		}
	})

	t.Run("MalformedEventRejected", func(t *testing.T) {
		w := NewAlertWorker(eventBus, nil)
		w.Start()
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		if err := eventBus.Publish(context.Background(), domain.TopicClaimScored, []byte("not json")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)

		stats := w.GetStats()
		if stats.AlertsRaised != 0 {
			t.Errorf("expected 0 alerts for malformed event, got %d", stats.AlertsRaised)
		}
	})
}
