package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	model := scoring.NewModel(domain.DefaultCategoryWeights)
	processor := predict.NewProcessor(model, nil, 4.0)

	c := cache.NewLRUCache(1000)
	tracker := velocity.NewTracker(c)

	worker := NewWorker(eventBus, c, processor, tracker, domain.DefaultCountryRisk)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected ingest + score-request subscriptions, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessTransaction", func(t *testing.T) {
		w := NewWorker(eventBus, c, processor, tracker, domain.DefaultCountryRisk)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track decision results
		var decisionReceived atomic.Bool
		var decisionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionPayload = msg.Payload
			decisionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		txMsg := TransactionMessage{
			TenantID:   "tenant-test",
			TraceID:    "trace-001",
			CustomerID: "cust-worker",
			Timestamp:  "2025-11-03 14:30:00",
			Amount:     85.20,
			OldBalance: 2400,
			NewBalance: 2314.80,
			Category:   "groceries",
			Location:   "Denver, US",
		}

		payload, _ := json.Marshal(txMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicTransactionIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !decisionReceived.Load() {
			t.Error("expected decision to be published")
		}

		if decisionPayload != nil {
			var pred domain.Prediction
			if err := json.Unmarshal(decisionPayload, &pred); err != nil {
				t.Fatalf("failed to parse decision: %v", err)
			}

			if pred.CustomerID != "cust-worker" {
				t.Errorf("expected customer 'cust-worker', got '%s'", pred.CustomerID)
			}
			if pred.TenantID != "tenant-test" {
				t.Errorf("expected tenantID 'tenant-test', got '%s'", pred.TenantID)
			}
			if pred.Metadata.TraceID != "trace-001" {
				t.Errorf("expected traceID 'trace-001', got '%s'", pred.Metadata.TraceID)
			}
			if pred.IsFraud {
				t.Errorf("quiet groceries purchase flagged, score %.3f", pred.Score)
			}
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, c, processor, tracker, domain.DefaultCountryRisk)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track alerts
		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Night-time overdraft in a high-risk country
		txMsg := TransactionMessage{
			TenantID:   "tenant-alert",
			CustomerID: "cust-hot",
			Timestamp:  "2025-11-03 03:05:00",
			Amount:     9800,
			OldBalance: 500,
			NewBalance: -9300,
			Category:   "electronics",
			Location:   "Sao Paulo, BR",
		}

		payload, _ := json.Marshal(txMsg)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicTransactionIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for high-risk transaction")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, c, processor, tracker, domain.DefaultCountryRisk)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 4 {
			t.Errorf("expected 2 subscriptions per tenant, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ScoreByRequest", func(t *testing.T) {
		w := NewWorker(eventBus, c, processor, tracker, domain.DefaultCountryRisk)

		cfg := Config{
			TenantIDs: []string{"tenant-sync"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		txMsg := TransactionMessage{
			TenantID:   "tenant-sync",
			TraceID:    "trace-sync",
			CustomerID: "cust-sync",
			Timestamp:  "2025-11-03 10:30:00",
			Amount:     60.00,
			OldBalance: 1500,
			NewBalance: 1440,
			Category:   "groceries",
			Location:   "Boston, US",
		}

		payload, _ := json.Marshal(txMsg)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		reply, err := eventBus.Request(ctx, "tenant-sync", domain.TopicScoreRequest, payload)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var pred domain.Prediction
		if err := json.Unmarshal(reply, &pred); err != nil {
			t.Fatalf("failed to parse reply: %v", err)
		}
		if pred.CustomerID != "cust-sync" {
			t.Errorf("expected customer 'cust-sync', got '%s'", pred.CustomerID)
		}
		if pred.IsFraud {
			t.Errorf("quiet groceries purchase flagged, score %.3f", pred.Score)
		}
	})
}

func TestTransactionMessageParsing(t *testing.T) {
	msg := TransactionMessage{
		TenantID:   "tenant-001",
		TraceID:    "trace-456",
		CustomerID: "cust-123",
		Timestamp:  "2025-11-03 14:30:00",
		Amount:     1234.56,
		OldBalance: 5000,
		NewBalance: 3765.44,
		Category:   "travel",
		Location:   "Paris, FR",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed TransactionMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.CustomerID != msg.CustomerID {
		t.Errorf("expected CustomerID '%s', got '%s'", msg.CustomerID, parsed.CustomerID)
	}
	if parsed.Amount != msg.Amount {
		t.Errorf("expected Amount %.2f, got %.2f", msg.Amount, parsed.Amount)
	}
	if parsed.Timestamp != msg.Timestamp {
		t.Errorf("expected Timestamp '%s', got '%s'", msg.Timestamp, parsed.Timestamp)
	}
}
