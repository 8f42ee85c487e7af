package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RaunoDriveX/drivex-jobflow/internal/config"
	"github.com/RaunoDriveX/drivex-jobflow/internal/domain"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
)

func newTestServer(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	dsn := fmt.Sprintf("file:httpapi_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	offers := services.NewOfferService(db)
	wf := services.NewWorkflowService(db, offers, nil)
	sel := services.NewSelectionService(db)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, db, wf, sel, offers, config.Config{
		APIBasePath:     "/api/v1",
		RateWindowLimit: 1000,
		RateWindow:      time.Hour,
		OTEL:            config.OTELConfig{ServiceName: "jobflow-test"},
	})
	return db, r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func seedDirectoryShop(t *testing.T, db *gorm.DB, name string) *domain.Shop {
	t.Helper()
	s := &domain.Shop{ID: uuid.NewString(), Name: name, City: "Tallinn", AdasCalibration: true}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return s
}

func TestHealthAndFallbacks(t *testing.T) {
	_, r := newTestServer(t)

	if w := do(t, r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("/health = %d, want 200", w.Code)
	}

	w := do(t, r, http.MethodGet, "/no/such/route", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Errorf("404 body not enveloped: %s", w.Body.String())
	}

	w = do(t, r, http.MethodDelete, "/api/v1/appointments", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method = %d, want 405", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"method_not_allowed"`) {
		t.Errorf("405 body not enveloped: %s", w.Body.String())
	}
}

func TestDamageReportIntake(t *testing.T) {
	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"customer_name":  "Mari Tamm",
		"customer_email": "mari@example.com",
		"vehicle_make":   "Skoda",
		"vehicle_model":  "Octavia",
		"service_type":   "replacement",
		"damage_type":    "crack",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("intake = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID            string `json:"id"`
		TrackingCode  string `json:"tracking_code"`
		TrackingToken string `json:"tracking_token"`
		WorkflowStage string `json:"workflow_stage"`
		JobStatus     string `json:"job_status"`
	}
	decode(t, w, &created)
	if !domain.ValidTrackingCode(created.TrackingCode) || !domain.ValidTrackingToken(created.TrackingToken) {
		t.Fatalf("bad tracking identity: %+v", created)
	}
	if created.WorkflowStage != "new" || created.JobStatus != "pending" {
		t.Fatalf("unexpected initial state: %+v", created)
	}

	// Lookup by tracking code serves the customer view without the token.
	w = do(t, r, http.MethodGet, "/api/v1/appointments/"+created.TrackingCode, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), created.TrackingToken) {
		t.Error("tracking token leaked in appointment view")
	}

	// Unknown service type is rejected before it reaches the engine.
	w = do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"customer_name":  "Mari Tamm",
		"customer_email": "mari@example.com",
		"vehicle_make":   "Skoda",
		"vehicle_model":  "Octavia",
		"service_type":   "polish",
		"damage_type":    "crack",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad payload = %d, want 400", w.Code)
	}

	if w := do(t, r, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown ref = %d, want 404", w.Code)
	}
}

func TestSelectionFlowOverHTTP(t *testing.T) {
	db, r := newTestServer(t)
	shopA := seedDirectoryShop(t, db, "Shop A")
	shopB := seedDirectoryShop(t, db, "Shop B")

	w := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"customer_name":  "Mari Tamm",
		"customer_email": "mari@example.com",
		"vehicle_make":   "Skoda",
		"vehicle_model":  "Octavia",
		"service_type":   "repair",
		"damage_type":    "chip",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("intake = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID            string `json:"id"`
		TrackingCode  string `json:"tracking_code"`
		TrackingToken string `json:"tracking_token"`
	}
	decode(t, w, &created)

	// Insurer proposes the shortlist.
	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/shops", gin.H{
		"shops": []gin.H{
			{"shop_id": shopA.ID, "estimated_price": 199, "distance_km": 2.5},
			{"shop_id": shopB.ID, "estimated_price": 215, "distance_km": 7.1},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("propose = %d: %s", w.Code, w.Body.String())
	}
	// Proposing again conflicts.
	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/shops", gin.H{
		"shops": []gin.H{{"shop_id": shopA.ID, "estimated_price": 199}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat propose = %d, want 409", w.Code)
	}

	// Customer sees the selection page through the token.
	w = do(t, r, http.MethodGet, "/api/v1/selection/"+created.TrackingToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("selection page = %d: %s", w.Code, w.Body.String())
	}
	var page struct {
		Shops []struct {
			ShopID        string `json:"shop_id"`
			PriorityOrder int    `json:"priority_order"`
		} `json:"shops"`
	}
	decode(t, w, &page)
	if len(page.Shops) != 2 || page.Shops[0].ShopID != shopA.ID {
		t.Fatalf("unexpected shops on page: %+v", page.Shops)
	}

	// A malformed token 404s without revealing whether it could exist.
	if w := do(t, r, http.MethodGet, "/api/v1/selection/short", nil); w.Code != http.StatusNotFound {
		t.Fatalf("bad token = %d, want 404", w.Code)
	}

	// Customer picks shop A with a schedule; an offer goes out.
	w = do(t, r, http.MethodPost, "/api/v1/selection", gin.H{
		"tracking_token":   created.TrackingToken,
		"action":           "select_shop_and_schedule",
		"shop_id":          shopA.ID,
		"appointment_date": "2026-09-15",
		"appointment_time": "10:00:00",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("select shop = %d: %s", w.Code, w.Body.String())
	}
	var picked struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		NextStage string `json:"next_stage"`
	}
	decode(t, w, &picked)
	if !picked.Success || picked.NextStage != "awaiting_shop_response" {
		t.Fatalf("unexpected selection result: %+v", picked)
	}

	var offer domain.JobOffer
	if err := db.Where("appointment_id = ?", created.ID).First(&offer).Error; err != nil {
		t.Fatalf("offer not created: %v", err)
	}

	// Picking again conflicts.
	w = do(t, r, http.MethodPost, "/api/v1/selection", gin.H{
		"tracking_token":   created.TrackingToken,
		"action":           "select_shop_and_schedule",
		"shop_id":          shopB.ID,
		"appointment_date": "2026-09-16",
		"appointment_time": "09:00:00",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second pick = %d, want 409", w.Code)
	}

	// The shop accepts the offer.
	w = do(t, r, http.MethodPost, "/api/v1/job-response", gin.H{
		"jobOfferId": offer.ID,
		"response":   "accept",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("accept = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success            bool   `json:"success"`
		Response           string `json:"response"`
		NewPerformanceTier string `json:"newPerformanceTier"`
		Message            string `json:"message"`
	}
	decode(t, w, &resp)
	if !resp.Success || resp.Response != "accepted" || resp.NewPerformanceTier != "premium" {
		t.Fatalf("unexpected response body: %s", w.Body.String())
	}

	// Responding twice conflicts.
	w = do(t, r, http.MethodPost, "/api/v1/job-response", gin.H{
		"jobOfferId": offer.ID,
		"response":   "decline",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second response = %d, want 409: %s", w.Code, w.Body.String())
	}

	// The job moved on and carries the agreed price.
	w = do(t, r, http.MethodGet, "/api/v1/appointments/"+created.TrackingCode, nil)
	var view struct {
		WorkflowStage string   `json:"workflow_stage"`
		TotalCost     *float64 `json:"total_cost"`
	}
	decode(t, w, &view)
	if view.WorkflowStage != "damage_report" {
		t.Errorf("stage = %s, want damage_report", view.WorkflowStage)
	}
	if view.TotalCost == nil || *view.TotalCost != 199 {
		t.Errorf("total = %v, want 199", view.TotalCost)
	}

	// Insurer approves the agreed price, customer approves the cost.
	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/price-review", gin.H{"decision": "approve"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("price review = %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/v1/selection", gin.H{
		"tracking_token": created.TrackingToken,
		"action":         "approve_cost",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("approve_cost = %d: %s", w.Code, w.Body.String())
	}
	var approved struct {
		Success   bool   `json:"success"`
		NextStage string `json:"next_stage"`
	}
	decode(t, w, &approved)
	if !approved.Success || approved.NextStage != "scheduled" {
		t.Fatalf("unexpected approve_cost result: %s", w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/v1/selection", gin.H{
		"tracking_token": created.TrackingToken,
		"action":         "approve_cost",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second approve_cost = %d, want 409", w.Code)
	}

	// Shop runs the job to completion.
	for _, status := range []string{"in_progress", "completed"} {
		w = do(t, r, http.MethodPut, "/api/v1/appointments/"+created.ID+"/status", gin.H{"status": status})
		if w.Code != http.StatusNoContent {
			t.Fatalf("status %s = %d: %s", status, w.Code, w.Body.String())
		}
	}
	w = do(t, r, http.MethodGet, "/api/v1/appointments/"+created.TrackingCode, nil)
	decode(t, w, &view)
	if view.WorkflowStage != "completed" {
		t.Fatalf("final stage = %s, want completed", view.WorkflowStage)
	}

	// Stats reflect the pipeline.
	w = do(t, r, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var stats struct {
		Appointments int64            `json:"appointments"`
		ByStage      map[string]int64 `json:"by_stage"`
	}
	decode(t, w, &stats)
	if stats.Appointments != 1 || stats.ByStage["completed"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPlatformEstimateFlowOverHTTP(t *testing.T) {
	db, r := newTestServer(t)
	shop := seedDirectoryShop(t, db, "Shop A")

	w := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"customer_name":  "Jaan Kask",
		"customer_email": "jaan@example.com",
		"vehicle_make":   "Volvo",
		"vehicle_model":  "V60",
		"service_type":   "replacement",
		"damage_type":    "crack",
	})
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	// Drive the job to the pricing stage directly; the offer mechanics are
	// covered by the selection flow test.
	err := db.Model(&domain.Appointment{}).
		Where("id = ?", created.ID).
		Updates(map[string]any{"workflow_stage": domain.StageCustomerHandover, "shop_id": shop.ID, "shop_name": shop.Name}).Error
	if err != nil {
		t.Fatal(err)
	}

	if w := do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/handover", nil); w.Code != http.StatusNoContent {
		t.Fatalf("handover = %d: %s", w.Code, w.Body.String())
	}

	// A client total that disagrees with the recomputation is rejected.
	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/estimate", gin.H{
		"shop_id":    shop.ID,
		"line_items": []gin.H{{"name": "Windshield", "quantity": 1, "unit_price": 180}},
		"labor_cost": 60,
		"total_cost": 500,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("mismatched total = %d, want 400: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/estimate", gin.H{
		"shop_id":    shop.ID,
		"line_items": []gin.H{{"name": "Windshield", "quantity": 1, "unit_price": 180}},
		"labor_cost": 60,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("estimate = %d: %s", w.Code, w.Body.String())
	}
	var est struct {
		TotalCost float64 `json:"total_cost"`
	}
	decode(t, w, &est)
	if est.TotalCost != 240 {
		t.Fatalf("total = %v, want 240", est.TotalCost)
	}

	// Rejection sends the job back for re-pricing.
	w = do(t, r, http.MethodPost, "/api/v1/appointments/"+created.ID+"/price-review", gin.H{"decision": "reject"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reject = %d: %s", w.Code, w.Body.String())
	}
	var view struct {
		WorkflowStage string `json:"workflow_stage"`
	}
	w = do(t, r, http.MethodGet, "/api/v1/appointments/"+created.ID, nil)
	decode(t, w, &view)
	if view.WorkflowStage != "customer_handover" {
		t.Fatalf("stage after reject = %s, want customer_handover", view.WorkflowStage)
	}
}

func TestShopDirectoryEndpoints(t *testing.T) {
	db, r := newTestServer(t)
	shop := seedDirectoryShop(t, db, "Autoklaas24")

	w := do(t, r, http.MethodGet, "/api/v1/shops", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var listing struct {
		Shops []struct {
			ID              string `json:"id"`
			PerformanceTier string `json:"performance_tier"`
		} `json:"shops"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, w, &listing)
	if listing.Pagination.Total != 1 || listing.Shops[0].PerformanceTier != "standard" {
		t.Fatalf("unexpected listing: %s", w.Body.String())
	}

	if w := do(t, r, http.MethodGet, "/api/v1/shops/"+shop.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get shop = %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/shops/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown shop = %d, want 404", w.Code)
	}

	w = do(t, r, http.MethodGet, "/api/v1/shops/"+shop.ID+"/offers?page=1&page_size=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("offers = %d", w.Code)
	}
	var offers struct {
		Offers     []json.RawMessage `json:"offers"`
		Pagination struct {
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		} `json:"pagination"`
	}
	decode(t, w, &offers)
	if len(offers.Offers) != 0 || offers.Pagination.PageSize != 5 {
		t.Fatalf("unexpected offers body: %s", w.Body.String())
	}

	// Shortlist removal is exposed to the insurer.
	wApp := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"customer_name":  "Mari Tamm",
		"customer_email": "mari@example.com",
		"vehicle_make":   "Skoda",
		"vehicle_model":  "Octavia",
		"service_type":   "repair",
		"damage_type":    "chip",
	})
	var created struct {
		ID string `json:"id"`
	}
	decode(t, wApp, &created)
	if w := do(t, r, http.MethodDelete, "/api/v1/appointments/"+created.ID+"/shops/"+shop.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove shop = %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, "/api/v1/appointments/"+uuid.NewString()+"/shops/"+shop.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("remove for unknown appointment = %d, want 404", w.Code)
	}
}
