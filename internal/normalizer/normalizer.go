// Package normalizer maps arbitrary order-line CSV exports onto packer.ItemLine.
//
// Column names are matched case-insensitively against ordered candidate lists and
// missing or unparsable values fall back to fixed defaults, so every returned line
// is fully typed. Weights are read in grams and converted to kilograms.
package normalizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eugenenazirov/picklists/internal/packer"
)

// Field names used in Stats.
const (
	FieldOrderID  = "order_id"
	FieldStoreID  = "store_id"
	FieldSKU      = "sku"
	FieldQuantity = "quantity"
	FieldZone     = "zone"
	FieldBin      = "bin"
	FieldBinRank  = "bin_rank"
	FieldPriority = "priority"
	FieldWeight   = "weight"
	FieldFragile  = "fragile"
	FieldCutoff   = "cutoff"
)

const (
	DefaultZone  = "UNKNOWN"
	DefaultSKU   = "SKU_UNKNOWN"
	DefaultStore = "STORE_UNKNOWN"
	DefaultBin   = "BIN_UNKNOWN"
)

// DefaultCutoff is used for lines without a parsable cutoff; it sorts after any real deadline.
var DefaultCutoff = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

var candidates = []struct {
	field string
	names []string
}{
	{FieldOrderID, []string{"order_id", "order"}},
	{FieldStoreID, []string{"store_id", "store", "pod"}},
	{FieldSKU, []string{"sku", "product"}},
	{FieldQuantity, []string{"order_qty", "qty", "quantity"}},
	{FieldZone, []string{"zone"}},
	{FieldBin, []string{"bin", "location"}},
	{FieldBinRank, []string{"bin_rank", "rank"}},
	{FieldPriority, []string{"priority", "pod_priority"}},
	{FieldWeight, []string{"weight", "weight_in_grams"}},
	{FieldFragile, []string{"fragile", "is_fragile"}},
	{FieldCutoff, []string{"cutoff", "order_date"}},
}

var cutoffLayouts = []string{
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
	"02-01-2006",
	"01/02/2006",
}

var fragileTruthy = map[string]struct{}{
	"1": {}, "true": {}, "yes": {}, "y": {}, "t": {},
}

// ErrMalformedCSV wraps CSV syntax errors from the input.
var ErrMalformedCSV = errors.New("malformed CSV input")

// Stats describes what a Normalize call resolved and defaulted.
type Stats struct {
	Rows int
	// Columns maps each resolved field to the header that supplied it.
	Columns map[string]string
	// Missing lists fields with no matching column.
	Missing []string
	// Defaulted counts present-but-unusable values per field.
	Defaulted map[string]int
}

// Normalizer converts CSV rows into item lines.
type Normalizer struct {
	maxRows int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxRows stops reading after n data rows. Zero or less reads everything.
func WithMaxRows(n int) Option {
	return func(nz *Normalizer) {
		nz.maxRows = n
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	nz := &Normalizer{}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// Normalize reads a header row followed by data rows. Empty input yields no lines.
func (nz *Normalizer) Normalize(r io.Reader) ([]packer.ItemLine, Stats, error) {
	stats := Stats{
		Columns:   make(map[string]string),
		Defaulted: make(map[string]int),
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []packer.ItemLine{}, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: read header: %v", ErrMalformedCSV, err)
	}

	index := resolveColumns(header, &stats)

	items := []packer.ItemLine{}
	for row := 0; nz.maxRows <= 0 || row < nz.maxRows; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: row %d: %v", ErrMalformedCSV, row+1, err)
		}
		items = append(items, normalizeRow(row, record, index, &stats))
		stats.Rows++
	}

	return items, stats, nil
}

// resolveColumns returns the record index of every resolved field.
func resolveColumns(header []string, stats *Stats) map[string]int {
	lower := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		lower[strings.ToLower(strings.TrimSpace(name))] = i
	}

	index := make(map[string]int, len(candidates))
	for _, c := range candidates {
		found := false
		for _, name := range c.names {
			if i, ok := lower[name]; ok {
				index[c.field] = i
				stats.Columns[c.field] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
				found = true
				break
			}
		}
		if !found {
			stats.Missing = append(stats.Missing, c.field)
		}
	}
	return index
}

func normalizeRow(row int, record []string, index map[string]int, stats *Stats) packer.ItemLine {
	value := func(field string) (string, bool) {
		i, ok := index[field]
		if !ok {
			return "", false
		}
		if i >= len(record) {
			return "", true
		}
		return strings.TrimSpace(record[i]), true
	}
	text := func(field, fallback string) string {
		v, ok := value(field)
		if !ok {
			return fallback
		}
		if v == "" {
			stats.Defaulted[field]++
			return fallback
		}
		return v
	}

	item := packer.ItemLine{
		OrderID:      text(FieldOrderID, strconv.Itoa(row)),
		StoreID:      text(FieldStoreID, DefaultStore),
		SKU:          text(FieldSKU, DefaultSKU),
		Quantity:     1,
		Zone:         text(FieldZone, DefaultZone),
		Bin:          text(FieldBin, DefaultBin),
		Priority:     packer.NoPriority,
		UnitWeightKg: 0,
		Cutoff:       DefaultCutoff,
	}
	if v, ok := value(FieldBinRank); ok {
		item.BinRank = v
	}

	if v, ok := value(FieldQuantity); ok {
		if n, ok := parseInt(v); ok {
			item.Quantity = max(n, 0)
		} else {
			stats.Defaulted[FieldQuantity]++
		}
	}

	if v, ok := value(FieldWeight); ok {
		if grams, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(grams) && !math.IsInf(grams, 0) {
			item.UnitWeightKg = max(grams, 0) / 1000.0
		} else {
			stats.Defaulted[FieldWeight]++
		}
	}

	if v, ok := value(FieldPriority); ok {
		if n, ok := parseInt(v); ok {
			item.Priority = n
		} else {
			stats.Defaulted[FieldPriority]++
		}
	}

	if v, ok := value(FieldFragile); ok {
		_, item.Fragile = fragileTruthy[strings.ToLower(v)]
	}

	if v, ok := value(FieldCutoff); ok {
		if ts, ok := parseCutoff(v); ok {
			item.Cutoff = ts
		} else {
			stats.Defaulted[FieldCutoff]++
		}
	}

	return item
}

// parseInt accepts integers and decimal numbers, truncating the latter.
// Values outside ±packer.MaxQuantity are rejected.
func parseInt(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		if n > packer.MaxQuantity || n < -packer.MaxQuantity {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > packer.MaxQuantity {
		return 0, false
	}
	return int(f), true
}

func parseCutoff(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range cutoffLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
