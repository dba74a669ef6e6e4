package packer

import (
	"context"
	"math"
	"time"
)

// NoPriority is the priority assigned to lines without one; it sorts after every real priority.
const NoPriority = 9999

// MaxQuantity is the largest quantity a single item line may carry.
const MaxQuantity = math.MaxInt32

// PicklistType separates fragile picklists, which carry a stricter weight cap, from normal ones.
type PicklistType string

const (
	TypeNormal  PicklistType = "normal"
	TypeFragile PicklistType = "fragile"
)

// ItemLine is one normalized order line. Lower Priority values are more urgent.
type ItemLine struct {
	OrderID      string    `json:"orderId"`
	StoreID      string    `json:"storeId"`
	SKU          string    `json:"sku"`
	Quantity     int       `json:"quantity"`
	Zone         string    `json:"zone"`
	Bin          string    `json:"bin"`
	BinRank      string    `json:"binRank"`
	Priority     int       `json:"priority"`
	UnitWeightKg float64   `json:"unitWeightKg"`
	Fragile      bool      `json:"fragile"`
	Cutoff       time.Time `json:"cutoff"`
}

// PickLine is the part of an ItemLine placed on one picklist.
type PickLine struct {
	SKU          string  `json:"sku"`
	OrderID      string  `json:"orderId"`
	StoreID      string  `json:"store"`
	Bin          string  `json:"bin"`
	BinRank      string  `json:"binRank"`
	Quantity     int     `json:"qty"`
	UnitWeightKg float64 `json:"unitWeight"`
	Fragile      bool    `json:"fragile"`
}

// Picklist is a sealed, capacity-bounded batch for a single zone and fragility class.
type Picklist struct {
	File           string       `json:"file"`
	Zone           string       `json:"zone"`
	Number         int          `json:"picklistNo"`
	Type           PicklistType `json:"picklistType"`
	Lines          []PickLine   `json:"lines"`
	TotalUnits     int          `json:"totalUnits"`
	TotalWeightKg  float64      `json:"totalWeight"`
	DistinctOrders int          `json:"distinctOrders"`
	DistinctBins   int          `json:"distinctBins"`
}

// Summary returns the aggregate record for the picklist.
func (p Picklist) Summary() SummaryRow {
	return SummaryRow{
		File:           p.File,
		Zone:           p.Zone,
		Number:         p.Number,
		Type:           p.Type,
		TotalUnits:     p.TotalUnits,
		TotalWeightKg:  p.TotalWeightKg,
		DistinctOrders: p.DistinctOrders,
		DistinctBins:   p.DistinctBins,
	}
}

// SummaryRow is the per-picklist record of Summary.csv.
type SummaryRow struct {
	File           string       `json:"picklistFile"`
	Zone           string       `json:"zone"`
	Number         int          `json:"picklistNo"`
	Type           PicklistType `json:"picklistType"`
	TotalUnits     int          `json:"totalUnits"`
	TotalWeightKg  float64      `json:"totalWeight"`
	DistinctOrders int          `json:"distinctOrders"`
	DistinctBins   int          `json:"distinctBins"`
}

// Rejection records an item line set aside because it can never fit a picklist.
type Rejection struct {
	Item   ItemLine `json:"item"`
	Reason string   `json:"reason"`
}

// Result is the output of a packing run. Picklists and Summary share the same order.
type Result struct {
	Picklists      []Picklist   `json:"picklists"`
	Summary        []SummaryRow `json:"summary"`
	Rejected       []Rejection  `json:"rejected,omitempty"`
	TotalPicklists int          `json:"totalPicklists"`
}

// RunStats describes a finished packing run.
type RunStats struct {
	Items     int
	Groups    int
	Picklists int
	Fragile   int
	Rejected  int
	Duration  time.Duration
	Err       error
}

// Observer receives stats after every packing run.
type Observer interface {
	ObservePack(stats RunStats)
}

// Packer describes the behaviour required from a picklist packer.
type Packer interface {
	Pack(ctx context.Context, items []ItemLine) (Result, error)
}
