package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// investigationCostPerCase is the assumed cost of one manual fraud
// investigation, used by the ROI projection.
const investigationCostPerCase = 450.0

// Handler holds dependencies for API handlers.
type Handler struct {
	scorer    scoring.Scorer
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	agg       *metrics.Aggregator
	resultTTL time.Duration
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(scorer scoring.Scorer, repo domain.Repository, cache domain.Cache, bus domain.EventBus, agg *metrics.Aggregator, resultTTL time.Duration, version string) *Handler {
	if resultTTL <= 0 {
		resultTTL = 5 * time.Minute
	}
	return &Handler{
		scorer:    scorer,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		agg:       agg,
		resultTTL: resultTTL,
		version:   version,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	ScoreID string `json:"score_id,omitempty"`
	ClaimID string `json:"claim_id,omitempty"`
	domain.ScorecardResult
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var claim domain.ClaimRecord
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.scoreClaim(r, claim)
	if err != nil {
		writeScoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// scoreClaim runs the full scoring path for a single claim: cache lookup by
// claim digest, scoring, persistence, event publication, and KPI recording.
func (h *Handler) scoreClaim(r *http.Request, claim domain.ClaimRecord) (*PredictResponse, error) {
	start := time.Now()
	ctx := r.Context()

	if err := claim.Validate(); err != nil {
		return nil, err
	}

	// Scoring is deterministic, so the claim digest is a safe cache key.
	digest := claim.Digest()
	var result *domain.ScorecardResult
	cacheHit := false

	if h.cache != nil {
		cached, err := h.cache.GetResult(ctx, digest)
		if err != nil {
			slog.Warn("result cache lookup failed", "error", err)
		} else if cached != nil {
			result = cached
			cacheHit = true
		}
	}

	if result == nil {
		var err error
		result, err = h.scorer.Score(ctx, claim)
		if err != nil {
			return nil, err
		}

		if h.cache != nil {
			if err := h.cache.SetResult(ctx, digest, result, h.resultTTL); err != nil {
				slog.Warn("result cache store failed", "error", err)
			}
		}
	}

	claimID := uuid.New().String()
	scoreID := uuid.New().String()
	now := time.Now().UTC()

	// Persist claim and score record
	if h.repo != nil {
		if err := h.repo.SaveClaim(ctx, &domain.Claim{
			ID:         claimID,
			Attributes: claim,
			ReceivedAt: now,
		}); err != nil {
			slog.Error("failed to save claim", "claim_id", claimID, "error", err)
		}
		if err := h.repo.SaveScore(ctx, &domain.ScoreRecord{
			ID:        scoreID,
			ClaimID:   claimID,
			Claim:     claim,
			Result:    *result,
			CreatedAt: now,
		}); err != nil {
			slog.Error("failed to save score record", "score_id", scoreID, "error", err)
		}
	}

	// Publish scored-claim event for async consumers
	if h.bus != nil {
		event := domain.ScoredClaimEvent{
			ScoreID:     scoreID,
			ClaimID:     claimID,
			Score:       result.Score,
			RiskSegment: result.RiskSegment,
			Probability: result.Probability,
			ModelMode:   result.ModelMode,
			Timestamp:   now.Unix(),
		}
		payload, _ := json.Marshal(event)
		if err := h.bus.Publish(ctx, domain.TopicClaimScored, payload); err != nil {
			slog.Error("failed to publish scored claim", "score_id", scoreID, "error", err)
		}
	}

	// Hourly throughput counter for ops dashboards
	if h.cache != nil {
		hour := now.Format("2006010215")
		if _, err := h.cache.IncrementCounter(ctx, "claims:hour:"+hour, time.Hour); err != nil {
			slog.Warn("throughput counter increment failed", "error", err)
		}
	}

	if h.agg != nil {
		h.agg.Record(result, time.Since(start))
	}

	slog.Info("claim scored",
		"score_id", scoreID,
		"score", result.Score,
		"risk_segment", result.RiskSegment,
		"model_mode", result.ModelMode,
		"cache_hit", cacheHit,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &PredictResponse{
		ScoreID:         scoreID,
		ClaimID:         claimID,
		ScorecardResult: *result,
	}, nil
}

// BatchRequest is the request body for POST /predict/batch.
type BatchRequest struct {
	Claims []domain.ClaimRecord `json:"claims"`
}

// BatchResponse is the response for POST /predict/batch. Results preserve
// request order; failed items carry an inline error marker instead of a score.
type BatchResponse struct {
	Results          []any   `json:"results"`
	TotalProcessed   int     `json:"total_processed"`
	HighRiskCount    int     `json:"high_risk_count"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// PredictBatch handles POST /predict/batch requests.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Claims) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claims must not be empty",
		})
		return
	}

	resp := BatchResponse{Results: make([]any, 0, len(req.Claims))}

	for _, claim := range req.Claims {
		// A cancelled request aborts the remainder of the batch.
		if err := ctx.Err(); err != nil {
			break
		}

		item, err := h.scoreClaim(r, claim)
		if err != nil {
			resp.Results = append(resp.Results, map[string]string{
				"error": err.Error(),
			})
			continue
		}

		resp.Results = append(resp.Results, item)
		resp.TotalProcessed++
		if item.RiskSegment == domain.SegmentHigh {
			resp.HighRiskCount++
		}
	}

	resp.ProcessingTimeMs = math.Round(float64(time.Since(start).Microseconds())/10) / 100

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	deps := map[string]string{}

	if h.repo != nil {
		deps["database"] = "connected"
		if err := h.repo.Ping(r.Context()); err != nil {
			deps["database"] = "unreachable"
			status = "degraded"
		}
	}
	if h.cache != nil {
		deps["cache"] = "connected"
		if err := h.cache.Ping(r.Context()); err != nil {
			deps["cache"] = "unreachable"
			status = "degraded"
		}
	}
	if h.bus != nil {
		deps["event_bus"] = "connected"
		if err := h.bus.Ping(r.Context()); err != nil {
			deps["event_bus"] = "unreachable"
			status = "degraded"
		}
	}

	modelMode := "ML Engine Active"
	if h.scorer.Mode() == domain.ModeFallback {
		modelMode = string(domain.ModeFallback)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"service":      "kestrel",
		"version":      h.version,
		"model_mode":   modelMode,
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetScore retrieves a persisted score record by ID.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scoreID := chi.URLParam(r, "id")

	if scoreID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	record, err := h.repo.GetScore(ctx, scoreID)
	if err != nil {
		slog.Error("failed to get score record", "id", scoreID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "score record not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// BusinessMetrics returns the executive KPI snapshot.
func (h *Handler) BusinessMetrics(w http.ResponseWriter, r *http.Request) {
	snap := h.agg.Snapshot()

	uptime := time.Since(snap.StartedAt)

	// Annualized savings, extrapolated from the observed run so far. Only
	// meaningful once the process has scored for a while.
	var annualProjection float64
	if hours := uptime.Hours(); hours >= 1 {
		annualProjection = math.Round(snap.EstimatedSavings / hours * 24 * 365)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"scoring": map[string]any{
			"claims_processed":     snap.TotalScored,
			"fraud_cases_detected": snap.HighCount,
			"high_risk_percentage": round1(snap.HighRiskRate() * 100),
			"avg_response_time_ms": round2(snap.AvgLatencyMs()),
			"fallback_scored":      snap.FallbackCount,
		},
		"business_impact": map[string]any{
			"estimated_savings":         snap.EstimatedSavings,
			"annual_savings_projection": annualProjection,
		},
		"system": map[string]any{
			"uptime_seconds": int64(uptime.Seconds()),
			"started_at":     snap.StartedAt,
			"last_updated":   snap.LastUpdated,
		},
	})
}

// segmentPriorities maps each risk segment to an investigation priority.
var segmentPriorities = map[domain.RiskSegment]string{
	domain.SegmentHigh:   "Critical",
	domain.SegmentMedium: "High",
	domain.SegmentLow:    "Standard",
}

// RiskSegments returns the risk segment distribution, overall and for the
// trailing 24 hours.
func (h *Handler) RiskSegments(w http.ResponseWriter, r *http.Request) {
	snap := h.agg.Snapshot()

	segments := make([]map[string]any, 0, 3)
	for _, seg := range []domain.RiskSegment{domain.SegmentHigh, domain.SegmentMedium, domain.SegmentLow} {
		count := snap.SegmentCount(seg)
		share := 0.0
		if snap.TotalScored > 0 {
			share = float64(count) / float64(snap.TotalScored)
		}
		segments = append(segments, map[string]any{
			"segment":  seg,
			"count":    count,
			"share":    round2(share),
			"priority": segmentPriorities[seg],
		})
	}

	resp := map[string]any{
		"segments": segments,
		"business_recommendations": []string{
			"Implement automatic flagging for claims reported within 7 days",
			"Enhanced verification protocols for premium vehicle claims",
			"Age-based risk scoring with additional verification steps",
			"Real-time alerts for combinations of high-risk factors",
		},
	}

	// Trailing 24h distribution from persisted score records
	if h.repo != nil {
		records, err := h.repo.ListScoresSince(r.Context(), time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			slog.Error("failed to list recent scores", "error", err)
		} else {
			last24h := map[string]int{"total": len(records)}
			for _, rec := range records {
				last24h[string(rec.Result.RiskSegment)]++
			}
			resp["last_24h"] = last24h
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ROIAnalysis projects the return on investigation spend: estimated recovered
// value against the cost of manually investigating flagged claims.
func (h *Handler) ROIAnalysis(w http.ResponseWriter, r *http.Request) {
	snap := h.agg.Snapshot()

	investigationCost := float64(snap.HighCount) * investigationCostPerCase
	netBenefit := snap.EstimatedSavings - investigationCost

	var roiPercent float64
	if investigationCost > 0 {
		roiPercent = round1(netBenefit / investigationCost * 100)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claims_scored":               snap.TotalScored,
		"high_risk_count":             snap.HighCount,
		"estimated_savings":           snap.EstimatedSavings,
		"investigation_cost":          investigationCost,
		"investigation_cost_per_case": investigationCostPerCase,
		"net_benefit":                 netBenefit,
		"roi_percent":                 roiPercent,
	})
}

// ModelInfo returns the active model's metadata.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scorer.Info())
}

// featureNotes maps feature display names to their business interpretation.
var featureNotes = map[string]string{
	"Days_Policy_Claim": "Time between policy start and claim filing",
	"PolicyType":        "Complexity and coverage type of policy",
	"Make":              "Vehicle manufacturer premium positioning",
	"AgeOfPolicyHolder": "Age demographic risk profile",
	"VehiclePrice":      "Vehicle value and attractiveness for fraud",
	"AgeOfVehicle":      "Vehicle age profile",
	"AccidentArea":      "Urban versus rural accident location",
	"Claim_Urgency":     "Claim filed within days of policy start",
	"Premium_Make":      "Premium vehicle manufacturer flag",
	"Young_Driver":      "Young policy holder flag",
	"Luxury_Vehicle":    "High-value vehicle flag",
	"Complex_Policy":    "All Perils coverage flag",
}

// ModelFeatures returns the active model's feature schema with business
// interpretations. In fallback mode the engine has no encoded features, so a
// rules-oriented description is returned instead.
func (h *Handler) ModelFeatures(w http.ResponseWriter, r *http.Request) {
	type featureLister interface {
		Features() []string
	}

	lister, ok := h.scorer.(featureLister)
	if !ok {
		info := h.scorer.Info()
		writeJSON(w, http.StatusOK, map[string]any{
			"model_mode":  h.scorer.Mode(),
			"description": "Scoring is driven by deterministic business rules; no trained feature schema is active.",
			"rules_count": info.FeatureCount,
		})
		return
	}

	names := lister.Features()
	features := make([]map[string]any, 0, len(names))
	for _, name := range names {
		display := trimFeatureSuffix(name)
		features = append(features, map[string]any{
			"feature":                 name,
			"business_interpretation": featureNotes[display],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model_mode": h.scorer.Mode(),
		"features":   features,
		"count":      len(features),
	})
}

func trimFeatureSuffix(name string) string {
	for _, suffix := range []string{"_WoE", "_Numeric"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

// writeScoreError maps scoring errors to HTTP responses.
func writeScoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSchema):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("scoring failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
