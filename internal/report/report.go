// Package report evaluates a packing run from its summary rows: utilisation,
// constraint violations, consolidation against a one-order-per-picklist baseline
// and a composite picklist quality score (PQS) in [0, 1].
package report

import (
	"github.com/eugenenazirov/picklists/internal/packer"
)

// gramsThreshold is the mean picklist weight above which weights are assumed to be grams.
const gramsThreshold = 1000.0

// ordersPerPicklistTarget is the consolidation level that earns the full order score.
const ordersPerPicklistTarget = 20.0

// PQS weights.
const (
	unitWeight        = 0.4
	weightWeight      = 0.3
	orderWeight       = 0.2
	correctnessWeight = 0.1
)

// Report aggregates the statistics of one run.
type Report struct {
	TotalPicklists            int                         `json:"totalPicklists"`
	AvgUnits                  float64                     `json:"avgUnits"`
	AvgWeightKg               float64                     `json:"avgWeightKg"`
	WeightsConvertedFromGrams bool                        `json:"weightsConvertedFromGrams"`
	TypeCounts                map[packer.PicklistType]int `json:"typeCounts"`
	ZoneCounts                map[string]int              `json:"zoneCounts"`
	Violations                int                         `json:"violations"`
	ViolationRatePct          float64                     `json:"violationRatePct"`
	UnitDominated             int                         `json:"unitDominatedViolations"`
	WeightDominated           int                         `json:"weightDominatedViolations"`
	AvgUnitUtilPct            float64                     `json:"avgUnitUtilPct"`
	AvgWeightUtilPct          float64                     `json:"avgWeightUtilPct"`
	AvgOrders                 float64                     `json:"avgOrdersPerPicklist"`
	AvgBins                   float64                     `json:"avgBinsPerPicklist"`
	BaselinePicklists         int                         `json:"baselinePicklists"`
	ReductionPct              float64                     `json:"reductionPct"`
	QualityScore              float64                     `json:"pqs"`
}

// Evaluate computes the report for the given summary rows under caps.
// Weight utilisation is measured on min(weight, cap) so a violation never reads above 100%.
func Evaluate(rows []packer.SummaryRow, caps packer.Capacity) Report {
	r := Report{
		TotalPicklists: len(rows),
		TypeCounts:     make(map[packer.PicklistType]int),
		ZoneCounts:     make(map[string]int),
	}
	if len(rows) == 0 {
		r.QualityScore = correctnessWeight
		return r
	}

	weights := make([]float64, len(rows))
	sumWeight := 0.0
	for i, row := range rows {
		weights[i] = row.TotalWeightKg
		sumWeight += row.TotalWeightKg
	}
	if sumWeight/float64(len(rows)) > gramsThreshold {
		r.WeightsConvertedFromGrams = true
		for i := range weights {
			weights[i] /= 1000.0
		}
	}

	n := float64(len(rows))
	var sumUnits, sumW, sumUnitUtil, sumWeightUtil, sumOrders, sumBins float64
	for i, row := range rows {
		weightCap := caps.WeightCap(row.Type)
		w := weights[i]

		unitViolation := row.TotalUnits > caps.UnitCap
		weightViolation := w > weightCap+packer.WeightTolerance
		switch {
		case unitViolation && weightViolation:
			r.Violations++
		case unitViolation:
			r.Violations++
			r.UnitDominated++
		case weightViolation:
			r.Violations++
			r.WeightDominated++
		}

		sumUnits += float64(row.TotalUnits)
		sumW += w
		sumUnitUtil += float64(row.TotalUnits) / float64(caps.UnitCap) * 100
		sumWeightUtil += min(w, weightCap) / weightCap * 100
		sumOrders += float64(row.DistinctOrders)
		sumBins += float64(row.DistinctBins)

		r.TypeCounts[row.Type]++
		r.ZoneCounts[row.Zone]++
		r.BaselinePicklists += row.DistinctOrders
	}

	r.AvgUnits = sumUnits / n
	r.AvgWeightKg = sumW / n
	r.AvgUnitUtilPct = sumUnitUtil / n
	r.AvgWeightUtilPct = sumWeightUtil / n
	r.AvgOrders = sumOrders / n
	r.AvgBins = sumBins / n
	r.ViolationRatePct = float64(r.Violations) / n * 100
	if r.BaselinePicklists > 0 {
		r.ReductionPct = float64(r.BaselinePicklists-r.TotalPicklists) / float64(r.BaselinePicklists) * 100
	}

	r.QualityScore = unitWeight*clip(r.AvgUnitUtilPct/100) +
		weightWeight*clip(r.AvgWeightUtilPct/100) +
		orderWeight*clip(r.AvgOrders/ordersPerPicklistTarget) +
		correctnessWeight*(1-r.ViolationRatePct/100)

	return r
}

func clip(v float64) float64 {
	return min(max(v, 0), 1)
}
