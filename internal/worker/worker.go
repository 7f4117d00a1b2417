// Package worker provides async message processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// Worker scores ingested transactions asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	cache     domain.Cache
	processor *predict.Processor
	tracker   *velocity.Tracker

	countryRisk map[string]float64

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, cache domain.Cache, processor *predict.Processor, tracker *velocity.Tracker, countryRisk map[string]float64) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		cache:       cache,
		processor:   processor,
		tracker:     tracker,
		countryRisk: countryRisk,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	reqSub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicScoreRequest, func(ctx context.Context, msg *domain.Message) error {
		return w.handleScoreRequest(ctx, msg.TenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, reqSub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		_, err := w.processTransaction(ctx, tenantID, msg)
		return err
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	reqSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScoreRequest, func(ctx context.Context, msg *domain.Message) error {
		return w.handleScoreRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, reqSub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	_, err := w.processTransaction(ctx, msg.TenantID, msg)
	return err
}

// handleScoreRequest serves the synchronous request-reply path: score the
// transaction like any ingested one, then answer on the reply topic the
// requester put in the message metadata.
func (w *Worker) handleScoreRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	prediction, err := w.processTransaction(ctx, tenantID, msg)
	if err != nil {
		return err
	}

	replyTo := msg.Metadata[domain.MetaReplyTo]
	if replyTo == "" {
		// Fire-and-forget caller; the decision topics already carry the result.
		return nil
	}

	payload, err := json.Marshal(prediction)
	if err != nil {
		return err
	}
	if err := w.bus.Publish(ctx, tenantID, replyTo, payload); err != nil {
		slog.Error("failed to publish score reply",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}
	return nil
}

// TransactionMessage is the message payload for async transaction scoring.
// It mirrors the POST /predict request plus the routing identifiers.
type TransactionMessage struct {
	TenantID   string `json:"tenantId,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`

	Amount     float64 `json:"amount"`
	OldBalance float64 `json:"old_balance"`
	NewBalance float64 `json:"new_balance"`
	Category   string  `json:"category"`
	Location   string  `json:"location"`
}

// processTransaction scores a transaction through the decision pipeline and
// publishes the outcome on the decision (and, when flagged, alert) topics.
func (w *Worker) processTransaction(ctx context.Context, tenantID string, msg *domain.Message) (*domain.Prediction, error) {
	start := time.Now()

	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil, err
	}

	// Use message tenant if provided
	if txMsg.TenantID != "" {
		tenantID = txMsg.TenantID
	}

	traceID := txMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	customerID := txMsg.CustomerID
	if customerID == "" {
		customerID = domain.UnknownValue
	}

	ts := time.Now().UTC()
	if txMsg.Timestamp != "" {
		if parsed, err := time.Parse(domain.TimestampLayout, txMsg.Timestamp); err == nil {
			ts = parsed
		}
	}

	slog.Debug("processing transaction",
		"customer_id", customerID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	country := txMsg.Location
	if idx := strings.LastIndex(country, ","); idx >= 0 {
		country = strings.TrimSpace(country[idx+1:])
	}

	homeCountry := country
	riskFactor := 1.0
	if w.cache != nil && customerID != domain.UnknownValue {
		if profile, err := w.cache.GetProfile(ctx, tenantID, customerID); err == nil && profile != nil {
			homeCountry = profile.HomeCountry
			riskFactor = profile.RiskFactor
		}
	}

	countryRisk := 1.0
	if risk, ok := w.countryRisk[country]; ok {
		countryRisk = risk
	}

	var obs *velocity.Observation
	if w.tracker != nil && customerID != domain.UnknownValue {
		var err error
		obs, err = w.tracker.Observe(ctx, tenantID, customerID, ts)
		if err != nil {
			slog.Error("velocity observation failed", "customer_id", customerID, "error", err)
		}
	}
	if obs == nil {
		obs = &velocity.Observation{TxnFreq: 1}
	}

	prediction := w.processor.Process(ctx, &predict.DecisionInput{
		TenantID:    tenantID,
		TraceID:     traceID,
		CustomerID:  customerID,
		Country:     country,
		HomeCountry: homeCountry,
		StartTime:   start,
		Features: scoring.Input{
			Amount:         txMsg.Amount,
			OldBalance:     txMsg.OldBalance,
			NewBalance:     txMsg.NewBalance,
			Category:       txMsg.Category,
			Hour:           ts.Hour(),
			TxnFreq:        obs.TxnFreq,
			SinceLastHours: obs.SinceLastHours,
			HasPrior:       obs.HasPrior,
			RiskFactor:     riskFactor,
			CountryRisk:    countryRisk,
			CrossBorder:    country != homeCountry,
		},
	})

	resultPayload, _ := json.Marshal(prediction)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"customer_id", customerID,
			"error", err,
		)
	}

	if prediction.IsFraud {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"customer_id", customerID,
				"error", err,
			)
		}
	}

	slog.Info("transaction processed",
		"customer_id", customerID,
		"tenant_id", tenantID,
		"is_fraud", prediction.IsFraud,
		"score", prediction.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return prediction, nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
