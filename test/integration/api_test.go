package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/picklists/internal/application"
	"github.com/eugenenazirov/picklists/internal/config"
	"github.com/eugenenazirov/picklists/internal/packer"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.EnableRequestLogging = false
	cfg.RateLimitRPS = 0

	app, err := application.New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func performRequest(t *testing.T, srv *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestIntegrationFlow(t *testing.T) {
	srv := newServer(t)

	resp := performRequest(t, srv, http.MethodGet, "/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	caps := packer.Capacity{UnitCap: 10, NormalWeightCapKg: 20, FragileWeightCapKg: 5}
	resp = performRequest(t, srv, http.MethodPut, "/api/capacity", caps)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from capacity update, got %d", resp.StatusCode)
	}

	items := []map[string]any{
		{"orderId": "O1", "sku": "S1", "quantity": 12, "zone": "A", "unitWeightKg": 1, "priority": 1},
		{"orderId": "O2", "sku": "S2", "quantity": 4, "zone": "A", "unitWeightKg": 3, "priority": 2},
		{"orderId": "O3", "sku": "G1", "quantity": 3, "zone": "A", "unitWeightKg": 2, "fragile": true},
	}
	resp = performRequest(t, srv, http.MethodPost, "/api/picklists", map[string]any{"items": items})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from picklists, got %d", resp.StatusCode)
	}

	var result struct {
		Picklists      []packer.Picklist `json:"picklists"`
		TotalPicklists int               `json:"totalPicklists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.TotalPicklists != len(result.Picklists) {
		t.Fatalf("total %d does not match %d picklists", result.TotalPicklists, len(result.Picklists))
	}

	units := 0
	for _, pl := range result.Picklists {
		if pl.TotalUnits > caps.UnitCap {
			t.Fatalf("picklist %s exceeds unit cap: %d", pl.File, pl.TotalUnits)
		}
		if pl.TotalWeightKg > caps.WeightCap(pl.Type)+packer.WeightTolerance {
			t.Fatalf("picklist %s exceeds weight cap: %.2f", pl.File, pl.TotalWeightKg)
		}
		for _, line := range pl.Lines {
			if line.Fragile != (pl.Type == packer.TypeFragile) {
				t.Fatalf("picklist %s mixes fragility", pl.File)
			}
		}
		units += pl.TotalUnits
	}
	if units != 19 {
		t.Fatalf("expected 19 units across picklists, got %d", units)
	}
	// Normal zone A: 10 + 8 units. Fragile zone A splits on the 5 kg cap.
	if len(result.Picklists) != 4 {
		t.Fatalf("expected 4 picklists, got %d", len(result.Picklists))
	}
	last := result.Picklists[len(result.Picklists)-1]
	if last.Type != packer.TypeFragile || last.Number != 2 {
		t.Fatalf("expected the fragile group to be packed last, got %+v", last)
	}

	resp = performRequest(t, srv, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
	metricsBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metricsBody), "picklists_generated_total") {
		t.Fatalf("expected picklist counters in metrics output")
	}
}

func TestIntegrationUnpackableItem(t *testing.T) {
	srv := newServer(t)

	items := []map[string]any{
		{"orderId": "F1", "sku": "VASE", "quantity": 1, "zone": "A", "unitWeightKg": 60, "fragile": true},
		{"orderId": "N1", "sku": "BOX", "quantity": 1, "zone": "A", "unitWeightKg": 1},
	}

	resp := performRequest(t, srv, http.MethodPost, "/api/picklists", map[string]any{"items": items})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	resp = performRequest(t, srv, http.MethodPost, "/api/picklists", map[string]any{"items": items, "rejectUnpackable": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 in reject mode, got %d", resp.StatusCode)
	}
	var result struct {
		Rejected       []packer.Rejection `json:"rejected"`
		TotalPicklists int                `json:"totalPicklists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Item.OrderID != "F1" || result.TotalPicklists != 1 {
		t.Fatalf("unexpected reject-mode result: %+v", result)
	}
}
