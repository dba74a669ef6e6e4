package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/picklists/internal/packer"
	"github.com/eugenenazirov/picklists/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRouter(t *testing.T) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(store,
		WithClock(clock.Now),
		WithHandlerLogger(zaptest.NewLogger(t)),
		WithRunIDGenerator(func() string { return "run-1" }),
	)
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func doJSON(t *testing.T, router http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestGetCapacityReturnsDefaults(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/capacity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Capacity  packer.Capacity `json:"capacity"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Capacity != packer.DefaultCapacity() {
		t.Fatalf("expected default capacity, got %+v", body.Capacity)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutCapacityUpdatesStorage(t *testing.T) {
	router, clock := setupTestRouter(t)

	clock.Advance(time.Hour)

	want := packer.Capacity{UnitCap: 100, NormalWeightCapKg: 40, FragileWeightCapKg: 10}
	rec := doJSON(t, router, http.MethodPut, "/api/capacity", want)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Capacity  packer.Capacity `json:"capacity"`
		UpdatedAt time.Time       `json:"updatedAt"`
		Message   string          `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Message == "" {
		t.Fatalf("expected success message, got empty string")
	}
	if body.Capacity != want {
		t.Fatalf("expected %+v, got %+v", want, body.Capacity)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutCapacityValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/capacity", map[string]any{"unitCap": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/capacity", bytes.NewReader([]byte("{")))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed JSON, got %d", rec.Code)
	}
}

type packBody struct {
	RunID          string              `json:"runId"`
	Picklists      []packer.Picklist   `json:"picklists"`
	Summary        []packer.SummaryRow `json:"summary"`
	Rejected       []packer.Rejection  `json:"rejected"`
	TotalPicklists int                 `json:"totalPicklists"`
	Report         struct {
		TotalPicklists    int     `json:"totalPicklists"`
		BaselinePicklists int     `json:"baselinePicklists"`
		QualityScore      float64 `json:"pqs"`
	} `json:"report"`
}

func decodePackBody(t *testing.T, rec *httptest.ResponseRecorder) packBody {
	t.Helper()
	var body packBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestPackEndpointSplitsOverUnitCap(t *testing.T) {
	router, _ := setupTestRouter(t)

	payload := map[string]any{
		"items": []map[string]any{
			{"orderId": "A1", "sku": "S1", "quantity": 2500, "zone": "A", "unitWeightKg": 0.05, "priority": 1},
			{"orderId": "A2", "sku": "S2", "quantity": 1, "zone": "A", "unitWeightKg": 0.05, "priority": 1},
			{"orderId": "A3", "sku": "S3", "quantity": 1, "zone": "A", "unitWeightKg": 0.05, "priority": 1},
		},
	}
	rec := doJSON(t, router, http.MethodPost, "/api/picklists", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodePackBody(t, rec)
	if body.RunID != "run-1" {
		t.Fatalf("expected run id run-1, got %q", body.RunID)
	}
	if body.TotalPicklists != 2 || len(body.Picklists) != 2 || len(body.Summary) != 2 {
		t.Fatalf("expected 2 picklists, got %+v", body)
	}
	if body.Picklists[0].TotalUnits != 2000 || body.Picklists[1].TotalUnits != 502 {
		t.Fatalf("unexpected split: %d / %d", body.Picklists[0].TotalUnits, body.Picklists[1].TotalUnits)
	}
	if body.Picklists[0].File != "2024-11-01_ZONE_A_PL1.csv" {
		t.Fatalf("unexpected file name %q", body.Picklists[0].File)
	}
	if body.Report.TotalPicklists != 2 || body.Report.BaselinePicklists != 4 {
		t.Fatalf("unexpected report: %+v", body.Report)
	}
}

func TestPackEndpointDefaultsMissingFields(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{
		"items": []map[string]any{{"sku": "S1"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodePackBody(t, rec)
	if len(body.Picklists) != 1 {
		t.Fatalf("expected one picklist, got %d", len(body.Picklists))
	}
	pl := body.Picklists[0]
	if pl.Zone != "UNKNOWN" || pl.TotalUnits != 1 || pl.Lines[0].OrderID != "0" {
		t.Fatalf("expected defaults to be applied, got %+v", pl)
	}
}

func TestPackEndpointUnpackableItem(t *testing.T) {
	router, _ := setupTestRouter(t)

	items := []map[string]any{
		{"orderId": "F1", "sku": "VASE", "quantity": 1, "zone": "A", "unitWeightKg": 60, "fragile": true},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{"items": items})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	var errBody struct {
		Details    string `json:"details"`
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if errBody.Suggestion == "" || errBody.Details == "" {
		t.Fatalf("expected details and suggestion, got %+v", errBody)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{"items": items, "rejectUnpackable": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 with rejectUnpackable, got %d", rec.Code)
	}
	body := decodePackBody(t, rec)
	if len(body.Rejected) != 1 || body.TotalPicklists != 0 {
		t.Fatalf("expected item to be set aside, got %+v", body)
	}
}

func TestPackEndpointUsesStoredCapacity(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/capacity", packer.Capacity{UnitCap: 10, NormalWeightCapKg: 100, FragileWeightCapKg: 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{
		"items": []map[string]any{{"orderId": "O1", "sku": "S", "quantity": 25, "zone": "A"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := decodePackBody(t, rec); body.TotalPicklists != 3 {
		t.Fatalf("expected 3 picklists under a unit cap of 10, got %d", body.TotalPicklists)
	}
}

func TestPackEndpointRejectsInvalidPayloads(t *testing.T) {
	router, _ := setupTestRouter(t)

	cases := map[string]any{
		"NegativeQuantity": map[string]any{"items": []map[string]any{{"quantity": -1}}},
		"NegativeWeight":   map[string]any{"items": []map[string]any{{"unitWeightKg": -2}}},
		"UnknownField":     map[string]any{"orders": []int{1}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/picklists", payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestPackEndpointEmptyItems(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{"items": []any{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := decodePackBody(t, rec)
	if body.TotalPicklists != 0 || len(body.Picklists) != 0 || len(body.Summary) != 0 {
		t.Fatalf("expected empty result, got %+v", body)
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/picklists", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rec.Header().Get("X-Request-ID"); len(got) != 32 {
		t.Fatalf("expected generated request id, got %q", got)
	}
}

func TestPackEndpointRejectsOversizedQuantities(t *testing.T) {
	store := storage.NewMemoryStorage()
	handler := NewHandler(store, WithMaxRequestUnits(100), WithHandlerLogger(zaptest.NewLogger(t)))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	cases := map[string][]map[string]any{
		"SingleHugeLine": {{"sku": "S1", "quantity": int64(1) << 40}},
		"SumOverLimit":   {{"sku": "S1", "quantity": 60}, {"sku": "S2", "quantity": 41}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{"items": items})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}

	rec := doJSON(t, router, http.MethodPost, "/api/picklists", map[string]any{
		"items": []map[string]any{{"sku": "S1", "quantity": 60}, {"sku": "S2", "quantity": 40}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected a request at the limit to succeed, got %d", rec.Code)
	}
}
