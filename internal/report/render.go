package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/eugenenazirov/picklists/internal/packer"
)

const rule = "======================================================"

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Write renders r in the given format.
func Write(w io.Writer, r Report, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, r)
	}
	return WriteText(w, r)
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the human-readable evaluation block.
func WriteText(w io.Writer, r Report) error {
	var b strings.Builder

	fmt.Fprintln(&b, "================ PICKLIST EVALUATION =================")
	if r.WeightsConvertedFromGrams {
		fmt.Fprintln(&b, "Detected weight values in GRAMS, converted to KG")
	}
	fmt.Fprintf(&b, "Total Picklists Generated: %d\n", r.TotalPicklists)
	fmt.Fprintf(&b, "Average Units per Picklist: %.2f\n", r.AvgUnits)
	fmt.Fprintf(&b, "Average Weight per Picklist: %.2f kg\n", r.AvgWeightKg)
	fmt.Fprintf(&b, "Constraint Violations: %d\n", r.Violations)
	fmt.Fprintf(&b, "Violation Rate: %.2f%%\n", r.ViolationRatePct)
	fmt.Fprintf(&b, "Average Unit Utilization: %.2f%%\n", r.AvgUnitUtilPct)
	fmt.Fprintf(&b, "Average Weight Utilization (effective): %.2f%%\n", r.AvgWeightUtilPct)

	fmt.Fprintln(&b, "\nPicklist Type Distribution:")
	for _, t := range []packer.PicklistType{packer.TypeNormal, packer.TypeFragile} {
		if n, ok := r.TypeCounts[t]; ok {
			fmt.Fprintf(&b, "  %-8s %d\n", t, n)
		}
	}

	fmt.Fprintln(&b, "\nZone-wise Picklists:")
	zones := make([]string, 0, len(r.ZoneCounts))
	for z := range r.ZoneCounts {
		zones = append(zones, z)
	}
	slices.Sort(zones)
	for _, z := range zones {
		fmt.Fprintf(&b, "  %-8s %d\n", z, r.ZoneCounts[z])
	}

	fmt.Fprintf(&b, "\nAverage Orders per Picklist: %.2f\n", r.AvgOrders)
	fmt.Fprintf(&b, "Average Bins per Picklist: %.2f\n", r.AvgBins)

	fmt.Fprintln(&b, "\nBaseline Comparison:")
	fmt.Fprintf(&b, "Naive Baseline Picklists: %d\n", r.BaselinePicklists)
	fmt.Fprintf(&b, "Picklist Reduction vs Baseline: %.2f%%\n", r.ReductionPct)

	fmt.Fprintln(&b, "\nConstraint Dominance:")
	fmt.Fprintf(&b, "Unit-dominated violations: %d\n", r.UnitDominated)
	fmt.Fprintf(&b, "Weight-dominated violations: %d\n", r.WeightDominated)

	fmt.Fprintln(&b, "\nComposite Picklist Quality Score (PQS):")
	fmt.Fprintf(&b, "PQS = %.3f  (range: 0-1)\n", r.QualityScore)
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}
