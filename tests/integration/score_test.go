//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Harrier risk scoring service.
//
// These tests verify the COMPLETE scoring pipeline:
//
//	Application → Traditional Features → Graph Features → Scorecard → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. APPLICATION: A loan application for a customer. Carries three required
//    numeric fields: age, income, creditHistory (years).
//
// 2. GRAPH FEATURES: Derived from the customer relationship graph:
//    community size/density/risk ratio, centralities, risk exposure,
//    community growth rate and activity frequency. Customers absent from
//    the graph score with a zero graph vector (knownCustomer=false).
//
// 3. FRAUD SCORE: Additive scorecard in [300, 900]. Higher is safer.
//    Community risk and exposure subtract; credit history and income add.
//
// 4. CREDIT SCORE: Served by the trained logistic scorecard. Before any
//    training run the engine falls back to a traditional-feature formula
//    and flags the result with modelFallback=true.
//
// 5. DECISION TABLE (ordered):
//    - fraudScore < 600                          → REJECT
//    - fraudScore < 700 AND creditScore < 650    → MANUAL_REVIEW
//    - otherwise                                 → APPROVE
//
// The service starts with an empty model slot; the training scenario in
// this file publishes one. Tests that depend on the untrained state run
// against a fresh instance.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("HARRIER_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Harrier's API contract)
// ============================================================================

// ScoreRequest is the application sent to POST /score
type ScoreRequest struct {
	CustomerID      string         `json:"customerId"`
	ApplicationData map[string]any `json:"applicationData"`
}

// ScoreResponse is what POST /score returns
type ScoreResponse struct {
	CustomerID    string   `json:"customerId"`
	FraudScore    float64  `json:"fraudScore"`
	CreditScore   float64  `json:"creditScore"`
	Decision      string   `json:"decision"`
	Reasons       []string `json:"reasons"`
	CommunityID   string   `json:"communityId"`
	RiskLevel     string   `json:"riskLevel"`
	KnownCustomer bool     `json:"knownCustomer"`
	ModelFallback bool     `json:"modelFallback"`
}

// TrainRequest is the payload for POST /train
type TrainRequest struct {
	Samples []TrainingSample `json:"samples"`
}

type TrainingSample struct {
	CustomerID      string         `json:"customerId"`
	ApplicationData map[string]any `json:"applicationData"`
	IsFraud         bool           `json:"isFraud"`
}

// TrainResponse is what POST /train returns
type TrainResponse struct {
	ModelID           string             `json:"modelId"`
	Metrics           Metrics            `json:"metrics"`
	FeatureImportance map[string]float64 `json:"featureImportance"`
	SampleCount       int                `json:"sampleCount"`
}

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, config TestConfig, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

func score(t *testing.T, config TestConfig, req ScoreRequest) ScoreResponse {
	t.Helper()

	resp, body := postJSON(t, config, "/score", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result ScoreResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func application(age, income, creditHistory float64) map[string]any {
	return map[string]any{
		"age":           age,
		"income":        income,
		"creditHistory": creditHistory,
	}
}

// ============================================================================
// SCENARIO 1: Established Applicant (Approval)
// ============================================================================

func TestEstablishedApplicant_Approved(t *testing.T) {
	/*
	   SCENARIO: A 40-year-old applicant with a solid income and 10 years of
	   credit history, unknown to the relationship graph.

	   EXPECTED BEHAVIOR:
	   - Graph features default to zero (knownCustomer=false)
	   - fraudScore = 600 + 10*50 + 80000*0.01, clamped to 900
	   - 900 >= 700 → APPROVE regardless of the credit score
	   - riskLevel "low"

	   WHY THIS TEST:
	   The approval path must not depend on graph presence; new customers
	   with strong traditional features sail through.
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		CustomerID:      "customer-established-001",
		ApplicationData: application(40, 80000, 10),
	})

	if result.Decision != "APPROVE" {
		t.Errorf("Expected APPROVE, got %s", result.Decision)
	}
	if result.FraudScore != 900 {
		t.Errorf("Expected fraud score clamped to 900, got %.2f", result.FraudScore)
	}
	if result.RiskLevel != "low" {
		t.Errorf("Expected low risk, got %s", result.RiskLevel)
	}
	if result.KnownCustomer {
		t.Errorf("Expected knownCustomer=false for a customer absent from the graph")
	}

	t.Logf("✓ Established applicant approved: fraud=%.0f credit=%.0f decision=%s",
		result.FraudScore, result.CreditScore, result.Decision)
}

// ============================================================================
// SCENARIO 2: Thin-File Applicant (Boundary of the Reject Band)
// ============================================================================

func TestThinFileApplicant_NotRejectedAtBoundary(t *testing.T) {
	/*
	   SCENARIO: An applicant with zero credit history and zero declared
	   income, unknown to the graph.

	   EXPECTED BEHAVIOR:
	   - fraudScore = 600 exactly (no additions, no graph penalties)
	   - The reject band is fraudScore < 600 (strict), so 600 does NOT
	     reject; it lands in the review band when the credit score is
	     below 650.

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in the decision table.
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		CustomerID:      "customer-thinfile-001",
		ApplicationData: application(19, 0, 0),
	})

	if result.FraudScore != 600 {
		t.Errorf("Expected fraud score exactly 600, got %.4f", result.FraudScore)
	}
	if result.Decision == "REJECT" {
		t.Errorf("Score 600 must not reject (reject band is strictly below 600), got %s", result.Decision)
	}

	t.Logf("✓ Boundary test passed: fraud=%.0f → decision=%s", result.FraudScore, result.Decision)
}

// ============================================================================
// SCENARIO 3: Deterministic Scoring
// ============================================================================

func TestRepeatedScoring_Deterministic(t *testing.T) {
	/*
	   SCENARIO: The same application scored twice.

	   EXPECTED BEHAVIOR:
	   Identical fraud score, credit score and decision. Feature vectors
	   are memoized but the cache must be transparent.
	*/
	config := getTestConfig()

	req := ScoreRequest{
		CustomerID:      "customer-repeat-001",
		ApplicationData: application(35, 45000, 4),
	}

	first := score(t, config, req)
	second := score(t, config, req)

	if first.FraudScore != second.FraudScore {
		t.Errorf("Fraud score changed between identical requests: %.2f vs %.2f",
			first.FraudScore, second.FraudScore)
	}
	if first.CreditScore != second.CreditScore {
		t.Errorf("Credit score changed between identical requests: %.2f vs %.2f",
			first.CreditScore, second.CreditScore)
	}
	if first.Decision != second.Decision {
		t.Errorf("Decision changed between identical requests: %s vs %s",
			first.Decision, second.Decision)
	}

	t.Logf("✓ Deterministic: fraud=%.2f credit=%.2f decision=%s",
		first.FraudScore, first.CreditScore, first.Decision)
}

// ============================================================================
// SCENARIO 4: Batch Scoring (Partial Failure)
// ============================================================================

func TestBatchScoring_PartialFailure(t *testing.T) {
	/*
	   SCENARIO: A batch with one valid application and one missing its
	   customerId.

	   EXPECTED BEHAVIOR:
	   - HTTP 200 (the batch itself succeeds)
	   - Item 1 carries a result, item 2 carries an error string
	   - One failing applicant never fails the batch
	*/
	config := getTestConfig()

	payload := map[string]any{
		"applications": []ScoreRequest{
			{CustomerID: "customer-batch-001", ApplicationData: application(30, 50000, 5)},
			{CustomerID: "", ApplicationData: application(30, 50000, 5)},
		},
	}

	resp, body := postJSON(t, config, "/score/batch", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var batch struct {
		Results []struct {
			CustomerID string         `json:"customerId"`
			Result     *ScoreResponse `json:"result"`
			Error      string         `json:"error"`
		} `json:"results"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		t.Fatalf("Failed to unmarshal batch response: %v", err)
	}

	if batch.Count != 2 {
		t.Fatalf("Expected 2 results, got %d", batch.Count)
	}
	if batch.Results[0].Result == nil || batch.Results[0].Error != "" {
		t.Errorf("Expected first item to succeed, got error %q", batch.Results[0].Error)
	}
	if batch.Results[1].Error == "" {
		t.Errorf("Expected second item to carry an error")
	}

	t.Logf("✓ Batch handled partial failure: %d results", batch.Count)
}

// ============================================================================
// SCENARIO 5: Training Lifecycle
// ============================================================================

func TestTrainingLifecycle(t *testing.T) {
	/*
	   SCENARIO: Train a scorecard on labeled applications, then inspect it.

	   EXPECTED BEHAVIOR:
	   - POST /train returns held-out metrics and feature importance
	   - GET /model/parameters serves the persisted record afterwards
	   - Subsequent scoring stops using the traditional fallback
	     (modelFallback=false)

	   NOTE: This scenario mutates server state (publishes a model). Run
	   untrained-state assertions against a fresh instance.
	*/
	config := getTestConfig()

	samples := make([]TrainingSample, 0, 40)
	for i := 0; i < 40; i++ {
		fraud := i%2 == 0
		app := application(45, 70000, 8)
		if fraud {
			app = application(18, 1000, 0)
		}
		samples = append(samples, TrainingSample{
			CustomerID:      fmt.Sprintf("customer-train-%03d", i),
			ApplicationData: app,
			IsFraud:         fraud,
		})
	}

	resp, body := postJSON(t, config, "/train", TrainRequest{Samples: samples})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result TrainResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal train response: %v", err)
	}

	if result.ModelID == "" {
		t.Error("Missing modelId")
	}
	if result.SampleCount != 40 {
		t.Errorf("Expected sampleCount 40, got %d", result.SampleCount)
	}
	if result.Metrics.Accuracy < 0 || result.Metrics.Accuracy > 1 {
		t.Errorf("Accuracy out of range: %.2f", result.Metrics.Accuracy)
	}
	if len(result.FeatureImportance) == 0 {
		t.Error("Expected non-empty feature importance")
	}

	// The model record is now served.
	paramResp, err := http.Get(config.BaseURL + "/model/parameters")
	if err != nil {
		t.Fatalf("GET /model/parameters failed: %v", err)
	}
	defer paramResp.Body.Close()
	if paramResp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /model/parameters after training, got %d", paramResp.StatusCode)
	}

	// Scoring takes the trained path.
	scored := score(t, config, ScoreRequest{
		CustomerID:      "customer-posttrain-001",
		ApplicationData: application(30, 50000, 5),
	})
	if scored.ModelFallback {
		t.Error("Expected modelFallback=false after a training run")
	}

	t.Logf("✓ Training lifecycle: modelId=%s accuracy=%.2f f1=%.2f",
		result.ModelID[:8], result.Metrics.Accuracy, result.Metrics.F1)
}

// ============================================================================
// SCENARIO 6: Input Validation
// ============================================================================

func TestMissingCustomerID_Error(t *testing.T) {
	/*
	   SCENARIO: Score request without customerId.

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	resp, _ := postJSON(t, config, "/score", ScoreRequest{
		ApplicationData: application(30, 50000, 5),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing customerId, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing customerId → HTTP %d", resp.StatusCode)
}

func TestNonNumericApplicationField_Error(t *testing.T) {
	/*
	   SCENARIO: Application with a non-numeric income.

	   EXPECTED: HTTP 400 Bad Request (validation, not a server error)
	*/
	config := getTestConfig()

	resp, _ := postJSON(t, config, "/score", ScoreRequest{
		CustomerID: "customer-badfield-001",
		ApplicationData: map[string]any{
			"age":           30,
			"income":        "plenty",
			"creditHistory": 5,
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric income, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: non-numeric income → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Health and Monitoring Surfaces
// ============================================================================

func TestHealthAndMonitoringEndpoints(t *testing.T) {
	/*
	   SCENARIO: The operational endpoints answer with their contracts.

	   - GET /health reports status and version
	   - GET /alerts and GET /reports return envelope objects with counts
	     (possibly zero on a quiet instance)
	*/
	config := getTestConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(config.BaseURL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", resp.StatusCode)
	}
	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health["status"] == "" {
		t.Error("Missing health status")
	}

	for _, path := range []string{"/alerts", "/reports"} {
		resp, err := client.Get(config.BaseURL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200 from %s, got %d: %s", path, resp.StatusCode, string(body))
			continue
		}
		var envelope map[string]any
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Errorf("Failed to decode %s response: %v", path, err)
			continue
		}
		if _, ok := envelope["count"]; !ok {
			t.Errorf("Missing count in %s response", path)
		}
	}

	t.Logf("✓ Operational endpoints: status=%s version=%s", health["status"], health["version"])
}
