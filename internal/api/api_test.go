package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fallback"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scorecard"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	engine, err := fallback.NewEngine(fallback.DefaultRules(), nil)
	if err != nil {
		t.Fatalf("fallback engine: %v", err)
	}
	segmenter, err := scorecard.NewSegmenter(scorecard.DefaultBands())
	if err != nil {
		t.Fatalf("segmenter: %v", err)
	}
	scorer := scoring.NewFallbackScorer(engine, segmenter)

	tmpFile, err := os.CreateTemp("", "kestrel-api-test-*.db")
	if err != nil {
		t.Fatalf("temp db: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	resultCache := cache.NewLRUCache(100)
	t.Cleanup(func() { resultCache.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	agg := metrics.NewAggregator(map[domain.RiskSegment]float64{
		domain.SegmentHigh:   42500,
		domain.SegmentMedium: 8500,
	})

	return NewServer(domain.ServerConfig{}, scorer, repo, resultCache, eventBus, agg, time.Minute, "test")
}

func highRiskClaim() domain.ClaimRecord {
	return domain.ClaimRecord{
		"Make":              "BMW",
		"PolicyType":        "Sport - All Perils",
		"Days_Policy_Claim": "1 to 7",
		"AgeOfPolicyHolder": "21 to 25",
		"VehiclePrice":      "more than 69000",
		"AccidentArea":      "Rural",
	}
}

func lowRiskClaim() domain.ClaimRecord {
	return domain.ClaimRecord{
		"Make":              "Honda",
		"PolicyType":        "Sedan - Collision",
		"Days_Policy_Claim": "more than 30",
		"AgeOfPolicyHolder": "41 to 50",
		"VehiclePrice":      "20000 to 29000",
		"AccidentArea":      "Urban",
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPredict(t *testing.T) {
	srv := newTestServer(t)

	t.Run("HighRiskClaim", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/predict", highRiskClaim())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp PredictResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if resp.Score != 557 {
			t.Errorf("score = %d, want 557", resp.Score)
		}
		if resp.RiskSegment != domain.SegmentHigh {
			t.Errorf("risk_segment = %s, want HIGH", resp.RiskSegment)
		}
		if resp.RecommendedAction != "INVESTIGATE IMMEDIATELY - Multiple high-risk indicators detected" {
			t.Errorf("unexpected action: %s", resp.RecommendedAction)
		}
		if resp.ModelMode != domain.ModeFallback {
			t.Errorf("model_mode = %s, want FALLBACK", resp.ModelMode)
		}
		if resp.ScoreID == "" || resp.ClaimID == "" {
			t.Error("expected score_id and claim_id to be set")
		}
	})

	t.Run("LowRiskClaim", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/predict", lowRiskClaim())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp PredictResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)

		if resp.Score != 677 {
			t.Errorf("score = %d, want 677", resp.Score)
		}
		if resp.RiskSegment != domain.SegmentLow {
			t.Errorf("risk_segment = %s, want LOW", resp.RiskSegment)
		}
	})

	t.Run("MissingRequiredField", func(t *testing.T) {
		claim := highRiskClaim()
		delete(claim, "Make")

		rec := doJSON(t, srv, http.MethodPost, "/predict", claim)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}

		var resp map[string]string
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["error"] == "" {
			t.Error("expected error message in response")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("ScoreRecordPersisted", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/predict", highRiskClaim())
		var resp PredictResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)

		rec = doJSON(t, srv, http.MethodGet, "/scores/"+resp.ScoreID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var record domain.ScoreRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if record.ID != resp.ScoreID {
			t.Errorf("record ID = %s, want %s", record.ID, resp.ScoreID)
		}
		if record.Result.Score != 557 {
			t.Errorf("persisted score = %d, want 557", record.Result.Score)
		}
	})
}

func TestPredictBatch(t *testing.T) {
	srv := newTestServer(t)

	t.Run("OrderedResults", func(t *testing.T) {
		broken := highRiskClaim()
		delete(broken, "PolicyType")

		rec := doJSON(t, srv, http.MethodPost, "/predict/batch", BatchRequest{
			Claims: []domain.ClaimRecord{highRiskClaim(), broken, lowRiskClaim()},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Results          []json.RawMessage `json:"results"`
			TotalProcessed   int               `json:"total_processed"`
			HighRiskCount    int               `json:"high_risk_count"`
			ProcessingTimeMs float64           `json:"processing_time_ms"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if len(resp.Results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(resp.Results))
		}
		if resp.TotalProcessed != 2 {
			t.Errorf("total_processed = %d, want 2", resp.TotalProcessed)
		}
		if resp.HighRiskCount != 1 {
			t.Errorf("high_risk_count = %d, want 1", resp.HighRiskCount)
		}

		// First item scored high
		var first PredictResponse
		json.Unmarshal(resp.Results[0], &first)
		if first.Score != 557 {
			t.Errorf("first score = %d, want 557", first.Score)
		}

		// Second item carries an inline error marker in its original position
		var second map[string]string
		json.Unmarshal(resp.Results[1], &second)
		if second["error"] == "" {
			t.Error("expected inline error for invalid claim")
		}

		// Third item scored low
		var third PredictResponse
		json.Unmarshal(resp.Results[2], &third)
		if third.Score != 677 {
			t.Errorf("third score = %d, want 677", third.Score)
		}
	})

	t.Run("EmptyBatchRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/predict/batch", BatchRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp map[string]any
		json.Unmarshal(rec.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", resp["status"])
		}
		if resp["model_mode"] != string(domain.ModeFallback) {
			t.Errorf("model_mode = %v, want FALLBACK", resp["model_mode"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestBusinessEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// Score a known mix: 2 high, 1 low
	for _, claim := range []domain.ClaimRecord{highRiskClaim(), highRiskClaim(), lowRiskClaim()} {
		rec := doJSON(t, srv, http.MethodPost, "/predict", claim)
		if rec.Code != http.StatusOK {
			t.Fatalf("seed predict failed: %d", rec.Code)
		}
	}

	t.Run("Metrics", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/business/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp struct {
			Scoring struct {
				ClaimsProcessed    int64   `json:"claims_processed"`
				FraudCasesDetected int64   `json:"fraud_cases_detected"`
				HighRiskPercentage float64 `json:"high_risk_percentage"`
			} `json:"scoring"`
			BusinessImpact struct {
				EstimatedSavings float64 `json:"estimated_savings"`
			} `json:"business_impact"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if resp.Scoring.ClaimsProcessed != 3 {
			t.Errorf("claims_processed = %d, want 3", resp.Scoring.ClaimsProcessed)
		}
		if resp.Scoring.FraudCasesDetected != 2 {
			t.Errorf("fraud_cases_detected = %d, want 2", resp.Scoring.FraudCasesDetected)
		}
		if resp.BusinessImpact.EstimatedSavings != 85000 {
			t.Errorf("estimated_savings = %v, want 85000", resp.BusinessImpact.EstimatedSavings)
		}
	})

	t.Run("RiskSegments", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/business/risk-segments", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp struct {
			Segments []struct {
				Segment  string  `json:"segment"`
				Count    int64   `json:"count"`
				Share    float64 `json:"share"`
				Priority string  `json:"priority"`
			} `json:"segments"`
			Last24h map[string]int `json:"last_24h"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if len(resp.Segments) != 3 {
			t.Fatalf("expected 3 segments, got %d", len(resp.Segments))
		}
		if resp.Segments[0].Segment != "HIGH" || resp.Segments[0].Count != 2 {
			t.Errorf("HIGH segment = %+v", resp.Segments[0])
		}
		if resp.Segments[0].Priority != "Critical" {
			t.Errorf("HIGH priority = %s, want Critical", resp.Segments[0].Priority)
		}
		if resp.Last24h["total"] != 3 {
			t.Errorf("last_24h total = %d, want 3", resp.Last24h["total"])
		}
		if resp.Last24h["HIGH"] != 2 {
			t.Errorf("last_24h HIGH = %d, want 2", resp.Last24h["HIGH"])
		}
	})

	t.Run("ROIAnalysis", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/business/roi-analysis", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp struct {
			HighRiskCount     int64   `json:"high_risk_count"`
			EstimatedSavings  float64 `json:"estimated_savings"`
			InvestigationCost float64 `json:"investigation_cost"`
			NetBenefit        float64 `json:"net_benefit"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if resp.InvestigationCost != 2*investigationCostPerCase {
			t.Errorf("investigation_cost = %v, want %v", resp.InvestigationCost, 2*investigationCostPerCase)
		}
		if resp.NetBenefit != resp.EstimatedSavings-resp.InvestigationCost {
			t.Errorf("net_benefit = %v inconsistent", resp.NetBenefit)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Info", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/model/info", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var info scoring.ModelInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatalf("decode info: %v", err)
		}
		if info.ModelType != "Business Rules Engine (Fallback Mode)" {
			t.Errorf("model_type = %s", info.ModelType)
		}
		if info.Version != scoring.FallbackVersion {
			t.Errorf("version = %s, want %s", info.Version, scoring.FallbackVersion)
		}
	})

	t.Run("FeaturesInFallbackMode", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/model/features", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp map[string]any
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["model_mode"] != string(domain.ModeFallback) {
			t.Errorf("model_mode = %v, want FALLBACK", resp["model_mode"])
		}
		if resp["rules_count"] != float64(6) {
			t.Errorf("rules_count = %v, want 6", resp["rules_count"])
		}
	})
}

func TestResultCaching(t *testing.T) {
	srv := newTestServer(t)

	claim := highRiskClaim()

	// First request populates the cache; repeats must return the same score.
	var scores []int
	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/predict", claim)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
		var resp PredictResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		scores = append(scores, resp.Score)
	}

	for i, s := range scores {
		if s != scores[0] {
			t.Errorf("request %d score = %d, diverged from %d", i, s, scores[0])
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Generated", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/health", nil)
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID to be set")
		}
	})

	t.Run("Propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("X-Request-ID = %s, want req-123", got)
		}
	})
}

func TestScoreNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/scores/%s", "missing-id"), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
