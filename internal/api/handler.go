package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/picklists/internal/normalizer"
	"github.com/eugenenazirov/picklists/internal/packer"
	"github.com/eugenenazirov/picklists/internal/report"
	"github.com/eugenenazirov/picklists/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const maxRequestBodyBytes = 16 << 20

// defaultMaxRequestUnits bounds the total quantity a single pack request may ask for.
const defaultMaxRequestUnits = 1_000_000

// Handler wires packer and storage dependencies into HTTP handlers.
type Handler struct {
	storage     storage.Storage
	packerOpts  []packer.Option
	logger      *zap.Logger
	newRunID    func() string
	clock       func() time.Time
	maxUnits    int
	mu          sync.RWMutex
	capsUpdated time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithPackerOptions appends options applied to every packer built by the handler.
func WithPackerOptions(opts ...packer.Option) HandlerOption {
	return func(h *Handler) {
		h.packerOpts = append(h.packerOpts, opts...)
	}
}

// WithHandlerLogger sets the logger used for packing run events.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithRunIDGenerator overrides how run ids are generated.
func WithRunIDGenerator(gen func() string) HandlerOption {
	return func(h *Handler) {
		h.newRunID = gen
	}
}

// WithMaxRequestUnits caps the summed item quantity accepted by one pack request.
func WithMaxRequestUnits(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUnits = n
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage:  store,
		logger:   zap.NewNop(),
		newRunID: uuid.NewString,
		maxUnits: defaultMaxRequestUnits,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.capsUpdated = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetCapacity(w http.ResponseWriter, r *http.Request) {
	_ = r
	caps, err := h.storage.GetCapacity()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, capacityResponse{
		Capacity:  caps,
		UpdatedAt: h.currentCapacityUpdatedAt(),
	})
}

func (h *Handler) handlePutCapacity(w http.ResponseWriter, r *http.Request) {
	var req packer.Capacity
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if err := h.storage.SetCapacity(req); err != nil {
		if errors.Is(err, storage.ErrInvalidCapacity) {
			writeError(w, http.StatusBadRequest, "Invalid capacity", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markCapacityUpdated()

	caps, err := h.storage.GetCapacity()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, capacityResponse{
		Capacity:  caps,
		UpdatedAt: h.currentCapacityUpdatedAt(),
		Message:   "Capacity updated successfully",
	})
}

func (h *Handler) handlePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	caps, err := h.storage.GetCapacity()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	opts := append([]packer.Option{packer.WithClock(h.clock)}, h.packerOpts...)
	if req.RejectUnpackable {
		opts = append(opts, packer.WithRejectUnpackable(true))
	}
	p, err := packer.New(caps, opts...)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	items := make([]packer.ItemLine, len(req.Items))
	units := 0
	for i, it := range req.Items {
		items[i] = it.toItemLine(i)
		if q := items[i].Quantity; q > 0 {
			if q > h.maxUnits-units {
				writeError(w, http.StatusBadRequest, "Invalid request",
					fmt.Sprintf("total item quantity exceeds the limit of %d units per request", h.maxUnits))
				return
			}
			units += q
		}
	}

	runID := h.newRunID()
	logger := h.logger.With(
		zap.String("run_id", runID),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)

	start := time.Now()
	result, packErr := p.Pack(r.Context(), items)
	elapsed := time.Since(start)

	if packErr != nil {
		logger.Warn("packing failed", zap.Int("items", len(items)), zap.Error(packErr))
		switch {
		case errors.Is(packErr, packer.ErrInvalidItem):
			writeError(w, http.StatusBadRequest, "Invalid request", packErr.Error())
		case errors.Is(packErr, packer.ErrUnpackableItem):
			writeError(w, http.StatusUnprocessableEntity, "Unpackable item", packErr.Error(),
				"Raise the weight cap, remove the item, or set rejectUnpackable to set such items aside")
		case errors.Is(packErr, context.Canceled):
			writeError(w, http.StatusServiceUnavailable, "Request cancelled", packErr.Error())
		default:
			writeInternalError(w, packErr)
		}
		return
	}

	logger.Info("packing completed",
		zap.Int("items", len(items)),
		zap.Int("picklists", result.TotalPicklists),
		zap.Int("rejected", len(result.Rejected)),
		zap.Duration("duration", elapsed),
	)

	writeJSON(w, http.StatusOK, packResponse{
		RunID:             runID,
		Capacity:          caps,
		Picklists:         result.Picklists,
		Summary:           result.Summary,
		Rejected:          result.Rejected,
		TotalPicklists:    result.TotalPicklists,
		Report:            report.Evaluate(result.Summary, caps),
		CalculationTimeMs: elapsed.Milliseconds(),
	})
}

func (h *Handler) currentCapacityUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.capsUpdated
}

func (h *Handler) markCapacityUpdated() {
	h.mu.Lock()
	h.capsUpdated = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// itemRequest mirrors packer.ItemLine with optional fields. Missing values get the
// same defaults as CSV input.
type itemRequest struct {
	OrderID      string    `json:"orderId"`
	StoreID      string    `json:"storeId"`
	SKU          string    `json:"sku"`
	Quantity     *int      `json:"quantity"`
	Zone         string    `json:"zone"`
	Bin          string    `json:"bin"`
	BinRank      string    `json:"binRank"`
	Priority     *int      `json:"priority"`
	UnitWeightKg float64   `json:"unitWeightKg"`
	Fragile      bool      `json:"fragile"`
	Cutoff       time.Time `json:"cutoff"`
}

func (it itemRequest) toItemLine(idx int) packer.ItemLine {
	line := packer.ItemLine{
		OrderID:      orDefault(it.OrderID, strconv.Itoa(idx)),
		StoreID:      orDefault(it.StoreID, normalizer.DefaultStore),
		SKU:          orDefault(it.SKU, normalizer.DefaultSKU),
		Quantity:     1,
		Zone:         orDefault(it.Zone, normalizer.DefaultZone),
		Bin:          orDefault(it.Bin, normalizer.DefaultBin),
		BinRank:      it.BinRank,
		Priority:     packer.NoPriority,
		UnitWeightKg: it.UnitWeightKg,
		Fragile:      it.Fragile,
		Cutoff:       it.Cutoff,
	}
	if it.Quantity != nil {
		line.Quantity = *it.Quantity
	}
	if it.Priority != nil {
		line.Priority = *it.Priority
	}
	if line.Cutoff.IsZero() {
		line.Cutoff = normalizer.DefaultCutoff
	}
	return line
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type packRequest struct {
	Items            []itemRequest `json:"items"`
	RejectUnpackable bool          `json:"rejectUnpackable"`
}

type packResponse struct {
	RunID             string              `json:"runId"`
	Capacity          packer.Capacity     `json:"capacity"`
	Picklists         []packer.Picklist   `json:"picklists"`
	Summary           []packer.SummaryRow `json:"summary"`
	Rejected          []packer.Rejection  `json:"rejected,omitempty"`
	TotalPicklists    int                 `json:"totalPicklists"`
	Report            report.Report       `json:"report"`
	CalculationTimeMs int64               `json:"calculationTimeMs"`
}

type capacityResponse struct {
	Capacity  packer.Capacity `json:"capacity"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Message   string          `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
