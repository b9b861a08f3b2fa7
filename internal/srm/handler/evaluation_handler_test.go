package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/bitfantasy/vendo/internal/srm/service"
	"github.com/bitfantasy/vendo/internal/srm/testutil"
	"go.uber.org/zap"
)

func setupEvaluationTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	svcs := service.NewServices(repos, scoring.Default(), zap.NewNop(), service.Options{})
	handlers := NewHandlers(svcs)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1/srm")
	api.POST("/suppliers", handlers.Supplier.CreateSupplier)
	api.GET("/suppliers/:id", handlers.Supplier.GetSupplier)
	api.POST("/evaluations", handlers.Evaluation.CreateEvaluation)
	api.GET("/evaluations/:id", handlers.Evaluation.GetEvaluation)
	api.PUT("/evaluations/:id", handlers.Evaluation.UpdateEvaluation)
	api.DELETE("/evaluations/:id", handlers.Evaluation.DeleteEvaluation)
	api.POST("/evaluations/preview", handlers.Evaluation.Preview)
	api.GET("/suppliers/:id/evaluations", handlers.Evaluation.GetSupplierHistory)
	api.GET("/suppliers/:id/evaluation-summary", handlers.Evaluation.GetSupplierSummary)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func createTestEvaluation(t *testing.T, env *testutil.TestEnv, token, supplierID string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	if body == nil {
		body = map[string]interface{}{}
	}
	body["supplier_id"] = supplierID
	if _, ok := body["evaluation_date"]; !ok {
		body["evaluation_date"] = "2026-03-15"
	}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/srm/evaluations", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

// TestEvaluationCreateComputesScore tests that creating a fully rated evaluation
// derives score and tier server-side
func TestEvaluationCreateComputesScore(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E001", "测试供应商A")

	data := createTestEvaluation(t, env, token, supplier.ID, map[string]interface{}{
		"quality_rating":      "high",
		"availability_rating": "high",
		"timeliness_rating":   "high",
		"price_rating":        "high",
	})

	if data["score"].(float64) != 1.0 {
		t.Fatalf("expected score 1.0, got %v", data["score"])
	}
	if data["tier"] != "A" {
		t.Fatalf("expected tier A, got %v", data["tier"])
	}
	if data["lifecycle_state"] != "viewing" {
		t.Fatalf("expected lifecycle_state viewing, got %v", data["lifecycle_state"])
	}
}

// TestEvaluationCreateUnratedHasNoScore tests that a record without ratings
// persists with null score and no tier
func TestEvaluationCreateUnratedHasNoScore(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E002", "测试供应商B")

	data := createTestEvaluation(t, env, token, supplier.ID, nil)

	if data["score"] != nil {
		t.Fatalf("expected null score, got %v", data["score"])
	}
	if tier, ok := data["tier"]; ok && tier != "" {
		t.Fatalf("expected empty tier, got %v", tier)
	}
}

// TestEvaluationUpdateRescores tests that editing a rating recomputes score and tier
func TestEvaluationUpdateRescores(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E003", "测试供应商C")

	data := createTestEvaluation(t, env, token, supplier.ID, map[string]interface{}{
		"quality_rating":      "high",
		"availability_rating": "high",
		"timeliness_rating":   "high",
		"price_rating":        "high",
	})
	evalID := data["id"].(string)

	// Downgrade all ratings to low: 2026-03-15 uses the current model, 4 x low = 40
	body := map[string]interface{}{
		"quality_rating":      "low",
		"availability_rating": "low",
		"timeliness_rating":   "low",
		"price_rating":        "low",
	}
	w := testutil.DoRequest(env.Router, http.MethodPut, "/api/v1/srm/evaluations/"+evalID, body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	updated := resp["data"].(map[string]interface{})
	if updated["score"].(float64) != 0.4 {
		t.Fatalf("expected score 0.4, got %v", updated["score"])
	}
	if updated["tier"] != "C" {
		t.Fatalf("expected tier C, got %v", updated["tier"])
	}
}

// TestEvaluationUpdateNoChangesConflicts tests that saving without modifications
// is rejected with a conflict
func TestEvaluationUpdateNoChangesConflicts(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E004", "测试供应商D")

	data := createTestEvaluation(t, env, token, supplier.ID, nil)
	evalID := data["id"].(string)

	w := testutil.DoRequest(env.Router, http.MethodPut, "/api/v1/srm/evaluations/"+evalID, map[string]interface{}{}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

// TestEvaluationFieldSafetyDowngrade tests the field safety override in the full stack
func TestEvaluationFieldSafetyDowngrade(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E005", "测试供应商E")

	data := createTestEvaluation(t, env, token, supplier.ID, map[string]interface{}{
		"quality_rating":       "high",
		"availability_rating":  "high",
		"timeliness_rating":    "high",
		"price_rating":         "high",
		"field_safety_applied": true,
		"field_safety_rating":  "C",
	})

	if data["score"].(float64) != 1.0 {
		t.Fatalf("expected score 1.0, got %v", data["score"])
	}
	if data["tier"] != "C" {
		t.Fatalf("expected field safety to downgrade tier to C, got %v", data["tier"])
	}
}

// TestEvaluationDeleteTwoStep tests the delete confirmation contract:
// without confirm the record survives, with confirm it is removed
func TestEvaluationDeleteTwoStep(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E006", "测试供应商F")

	data := createTestEvaluation(t, env, token, supplier.ID, nil)
	evalID := data["id"].(string)

	// First call without confirm: 428, record still there
	w := testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/srm/evaluations/"+evalID, nil, token)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/srm/evaluations/"+evalID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected record to survive unconfirmed delete, got %d", w.Code)
	}

	// Confirmed delete removes the record
	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/srm/evaluations/"+evalID+"?confirm=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/srm/evaluations/"+evalID, nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after confirmed delete, got %d", w.Code)
	}
}

// TestEvaluationPermissionDenied tests that a token without edit permission
// cannot update an evaluation
func TestEvaluationPermissionDenied(t *testing.T) {
	env := setupEvaluationTest(t)
	adminToken := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E007", "测试供应商G")

	data := createTestEvaluation(t, env, adminToken, supplier.ID, nil)
	evalID := data["id"].(string)

	readOnlyToken := testutil.GenerateTestToken(
		"test-user-002", "Read Only", "ro@test.com",
		nil, []string{"srm:evaluation:read"},
	)

	body := map[string]interface{}{"observations": "尝试越权修改"}
	w := testutil.DoRequest(env.Router, http.MethodPut, "/api/v1/srm/evaluations/"+evalID, body, readOnlyToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

// TestEvaluationPreview tests score preview without persistence
func TestEvaluationPreview(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()

	body := map[string]interface{}{
		"evaluation_date":     "2024-06-01",
		"quality_rating":      "medium",
		"availability_rating": "medium",
		"timeliness_rating":   "medium",
		"price_rating":        "medium",
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/srm/evaluations/preview", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["epoch"] != "2025" {
		t.Fatalf("expected epoch 2025 for a 2024 date, got %v", data["epoch"])
	}
	if data["score_percent"].(float64) != 75 {
		t.Fatalf("expected score_percent 75, got %v", data["score_percent"])
	}
	if data["tier"] != "B" {
		t.Fatalf("expected tier B, got %v", data["tier"])
	}
}

// TestSupplierSummaryAggregates tests the summary endpoint after two saves
func TestSupplierSummaryAggregates(t *testing.T) {
	env := setupEvaluationTest(t)
	token := testutil.DefaultTestToken()
	supplier := testutil.SeedTestSupplier(t, env.DB, "SUP-E008", "测试供应商H")

	createTestEvaluation(t, env, token, supplier.ID, map[string]interface{}{
		"evaluation_date":     "2026-01-10",
		"quality_rating":      "high",
		"availability_rating": "high",
		"timeliness_rating":   "high",
		"price_rating":        "high",
	})
	createTestEvaluation(t, env, token, supplier.ID, map[string]interface{}{
		"evaluation_date":     "2026-02-10",
		"quality_rating":      "low",
		"availability_rating": "low",
		"timeliness_rating":   "low",
		"price_rating":        "low",
	})

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/srm/suppliers/"+supplier.ID+"/evaluation-summary", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["evaluation_count"].(float64) != 2 {
		t.Fatalf("expected 2 evaluations, got %v", data["evaluation_count"])
	}
	// (1.0 + 0.4) / 2
	if avg := data["avg_score"].(float64); avg < 0.69 || avg > 0.71 {
		t.Fatalf("expected avg_score ~0.7, got %v", avg)
	}
	// Latest by evaluation date is the all-low record
	if data["latest_tier"] != "C" {
		t.Fatalf("expected latest_tier C, got %v", data["latest_tier"])
	}
}
