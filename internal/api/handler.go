package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/generator"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	genCfg    domain.GeneratorConfig
	sink      domain.Sink
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *predict.Processor
	tracker   *velocity.Tracker
	version   string

	// Registered override rules, the reload source for the engine.
	overrideMu sync.RWMutex
	overrides  map[string]*domain.OverrideRule
}

// NewHandler creates a new API handler.
func NewHandler(genCfg domain.GeneratorConfig, sink domain.Sink, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *predict.Processor, tracker *velocity.Tracker, version string) *Handler {
	return &Handler{
		genCfg:    genCfg,
		sink:      sink,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: processor,
		tracker:   tracker,
		version:   version,
		overrides: make(map[string]*domain.OverrideRule),
	}
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	prediction, errMsg := h.scoreTransaction(r, tenantID, traceID, &req, start)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// scoreTransaction runs the full serving path for one transaction: validate,
// resolve profile and velocity context, score, and publish. A non-empty
// second return is a validation message deserving a 400.
func (h *Handler) scoreTransaction(r *http.Request, tenantID, traceID string, req *domain.PredictionRequest, start time.Time) (*domain.Prediction, string) {
	ctx := r.Context()

	if req.Amount <= 0 {
		return nil, "amount must be positive"
	}
	if req.Category == "" {
		return nil, "category is required"
	}

	// Optional identity fields fall back to documented defaults.
	customerID := req.CustomerID
	if customerID == "" {
		customerID = domain.UnknownValue
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(domain.TimestampLayout, req.Timestamp)
		if err != nil {
			return nil, "timestamp must use format " + domain.TimestampLayout
		}
		ts = parsed
	}

	country := countryFromLocation(req.Location)

	// Profile attributes come from the cache when the customer is known.
	// Unknown customers score with neutral risk and their own country as home.
	homeCountry := country
	riskFactor := 1.0
	if h.cache != nil && customerID != domain.UnknownValue {
		if profile, err := h.cache.GetProfile(ctx, tenantID, customerID); err == nil && profile != nil {
			homeCountry = profile.HomeCountry
			riskFactor = profile.RiskFactor
		}
	}

	countryRisk := 1.0
	if risk, ok := h.genCfg.CountryRisk[country]; ok {
		countryRisk = risk
	}

	// Live velocity snapshot. The observation also advances the counters.
	var obs *velocity.Observation
	if h.tracker != nil && customerID != domain.UnknownValue {
		var err error
		obs, err = h.tracker.Observe(ctx, tenantID, customerID, ts)
		if err != nil {
			slog.Error("velocity observation failed", "customer_id", customerID, "error", err)
		}
	}
	if obs == nil {
		obs = &velocity.Observation{TxnFreq: 1}
	}

	input := &predict.DecisionInput{
		TenantID:    tenantID,
		TraceID:     traceID,
		CustomerID:  customerID,
		Country:     country,
		HomeCountry: homeCountry,
		StartTime:   start,
		Features: scoring.Input{
			Amount:         req.Amount,
			OldBalance:     req.OldBalance,
			NewBalance:     req.NewBalance,
			Category:       req.Category,
			Hour:           ts.Hour(),
			TxnFreq:        obs.TxnFreq,
			SinceLastHours: obs.SinceLastHours,
			HasPrior:       obs.HasPrior,
			RiskFactor:     riskFactor,
			CountryRisk:    countryRisk,
			CrossBorder:    country != homeCountry,
		},
	}

	prediction := h.processor.Process(ctx, input)

	// Refresh the cached profile so the next prediction sees this one.
	if h.cache != nil && customerID != domain.UnknownValue {
		profile := &domain.ProfileCache{
			CustomerID:  customerID,
			HomeCountry: homeCountry,
			RiskFactor:  riskFactor,
			CountryRisk: countryRisk,
			LastSeen:    ts.Format(domain.TimestampLayout),
		}
		if err := h.cache.SetProfile(ctx, tenantID, customerID, profile, 24*time.Hour); err != nil {
			slog.Error("failed to cache profile", "customer_id", customerID, "error", err)
		}
	}

	h.publishDecision(r, tenantID, prediction)

	return prediction, ""
}

// BatchPredictRequest is the request body for POST /predict_batch.
type BatchPredictRequest struct {
	Transactions []domain.PredictionRequest `json:"transactions"`
}

// BatchResult is one per-transaction entry in the batch response.
type BatchResult struct {
	TransactionIndex int      `json:"transaction_index"`
	IsFraud          bool     `json:"is_fraud"`
	Probability      float64  `json:"fraud_probability"`
	Score            float64  `json:"score"`
	RiskLevel        string   `json:"risk_level"`
	Reasons          []string `json:"reasons,omitempty"`
}

// BatchPredict handles POST /predict_batch requests: the single-transaction
// serving path applied per entry, with indexed results and a fraud tally.
func (h *Handler) BatchPredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req BatchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions field is required and must not be empty",
		})
		return
	}

	results := make([]BatchResult, 0, len(req.Transactions))
	fraudCount := 0
	for i := range req.Transactions {
		prediction, errMsg := h.scoreTransaction(r, tenantID, traceID, &req.Transactions[i], start)
		if errMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("transaction %d: %s", i, errMsg),
			})
			return
		}
		if prediction.IsFraud {
			fraudCount++
		}
		results = append(results, BatchResult{
			TransactionIndex: i,
			IsFraud:          prediction.IsFraud,
			Probability:      prediction.Probability,
			Score:            prediction.Score,
			RiskLevel:        prediction.RiskLevel,
			Reasons:          prediction.Reasons,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold":          h.processor.Threshold(),
		"total_transactions": len(results),
		"fraud_count":        fraudCount,
		"results":            results,
	})
}

// publishDecision emits the prediction on the event bus, plus an alert
// message when the transaction is flagged.
func (h *Handler) publishDecision(r *http.Request, tenantID string, prediction *domain.Prediction) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(prediction)
	if err != nil {
		slog.Error("failed to marshal prediction", "error", err)
		return
	}

	ctx := r.Context()
	if err := h.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision", "error", err)
	}
	if prediction.IsFraud {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "error", err)
		}
	}
}

// GenerateRequest is the request body for POST /generate. Zero values fall
// back to the server's configured generation parameters.
type GenerateRequest struct {
	Seed            uint64 `json:"seed,omitempty"`
	PoolSize        int    `json:"pool_size,omitempty"`
	NumTransactions int    `json:"num_transactions,omitempty"`
}

// Generate handles POST /generate: runs a full dataset generation and
// commits it to the sink.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req GenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	cfg := h.genCfg
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.PoolSize > 0 {
		cfg.PoolSize = req.PoolSize
	}
	if req.NumTransactions > 0 {
		cfg.NumTransactions = req.NumTransactions
	}

	gen, err := generator.New(cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid generation parameters: " + err.Error(),
		})
		return
	}

	dataset, err := gen.Run(ctx)
	if err != nil {
		slog.Error("dataset generation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "dataset generation failed",
		})
		return
	}

	if h.sink != nil {
		if err := h.sink.WriteDataset(ctx, dataset); err != nil {
			slog.Error("failed to write dataset", "run_id", dataset.RunID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to persist dataset",
			})
			return
		}
	}

	// Serve subsequent predictions against the fresh threshold.
	h.processor.SetThreshold(dataset.Threshold)

	if h.bus != nil {
		if payload, err := json.Marshal(dataset.Info()); err == nil {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicRunCompleted, payload); err != nil {
				slog.Error("failed to publish run completion", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, dataset.Info())
}

// LatestRun handles GET /runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "sink not available",
		})
		return
	}

	info, err := h.sink.LatestRun(r.Context())
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no runs recorded",
		})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.sink == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "sink not available",
		})
		return
	}

	info, err := h.sink.GetRun(r.Context(), runID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.sink != nil {
		if err := h.sink.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListOverrides returns all registered override rules.
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	h.overrideMu.RLock()
	list := make([]*domain.OverrideRule, 0, len(h.overrides))
	for _, rule := range h.overrides {
		list = append(list, rule)
	}
	h.overrideMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": list,
		"count":     len(list),
		"loaded":    h.engine.RulesCount(),
	})
}

// GetOverride retrieves an override rule by ID.
func (h *Handler) GetOverride(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "override id is required",
		})
		return
	}

	h.overrideMu.RLock()
	rule, ok := h.overrides[ruleID]
	h.overrideMu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "override not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateOverride registers a new override rule and loads it into the engine.
func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	var rule domain.OverrideRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "failed to load override: " + err.Error(),
			})
			return
		}
	}

	h.overrideMu.Lock()
	h.overrides[rule.ID] = &rule
	h.overrideMu.Unlock()

	slog.Info("override created", "id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, &rule)
}

// UpdateOverride replaces an existing override rule and reloads the engine.
func (h *Handler) UpdateOverride(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "override id is required",
		})
		return
	}

	var rule domain.OverrideRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rule.ID = ruleID

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	h.overrideMu.Lock()
	if _, ok := h.overrides[ruleID]; !ok {
		h.overrideMu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "override not found",
		})
		return
	}
	h.overrides[ruleID] = &rule
	err := h.engine.ReloadRules(h.snapshotOverridesLocked())
	h.overrideMu.Unlock()

	if err != nil {
		slog.Error("failed to reload overrides after update", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload overrides",
		})
		return
	}

	slog.Info("override updated", "id", ruleID)
	writeJSON(w, http.StatusOK, &rule)
}

// DeleteOverride removes an override rule and reloads the engine.
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "override id is required",
		})
		return
	}

	h.overrideMu.Lock()
	if _, ok := h.overrides[ruleID]; !ok {
		h.overrideMu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "override not found",
		})
		return
	}
	delete(h.overrides, ruleID)
	err := h.engine.ReloadRules(h.snapshotOverridesLocked())
	h.overrideMu.Unlock()

	if err != nil {
		slog.Error("failed to reload overrides after delete", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload overrides",
		})
		return
	}

	slog.Info("override deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "override deleted",
	})
}

// ReloadOverrides reloads all registered overrides into the engine.
func (h *Handler) ReloadOverrides(w http.ResponseWriter, r *http.Request) {
	h.overrideMu.RLock()
	snapshot := h.snapshotOverridesLocked()
	h.overrideMu.RUnlock()

	if err := h.engine.ReloadRules(snapshot); err != nil {
		slog.Error("failed to reload overrides", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload overrides: " + err.Error(),
		})
		return
	}

	slog.Info("overrides reloaded", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "overrides reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// snapshotOverridesLocked copies the registered overrides. Callers hold
// overrideMu.
func (h *Handler) snapshotOverridesLocked() []*domain.OverrideRule {
	snapshot := make([]*domain.OverrideRule, 0, len(h.overrides))
	for _, rule := range h.overrides {
		snapshot = append(snapshot, rule)
	}
	return snapshot
}

// countryFromLocation extracts the country code from a "City, CC" location.
func countryFromLocation(location string) string {
	idx := strings.LastIndex(location, ",")
	if idx < 0 {
		return strings.TrimSpace(location)
	}
	return strings.TrimSpace(location[idx+1:])
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
