// Package export persists packing results as flat CSV files: one file per picklist
// and a Summary.csv with one row per picklist.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/eugenenazirov/picklists/internal/packer"
)

// PicklistHeader is the column layout of a picklist file.
var PicklistHeader = []string{"sku", "order_id", "store", "bin", "bin_rank", "qty", "unit_weight", "fragile"}

// SummaryHeader is the column layout of Summary.csv.
var SummaryHeader = []string{
	"picklist_file", "zone", "picklist_no", "picklist_type",
	"total_units", "total_weight", "distinct_orders", "distinct_bins",
}

// ErrInvalidSummary is returned when a summary file cannot be parsed.
var ErrInvalidSummary = errors.New("invalid summary file")

// Writer writes picklist files into Dir and the summary to SummaryPath.
type Writer struct {
	Dir         string
	SummaryPath string
}

// NewWriter creates a Writer.
func NewWriter(dir, summaryPath string) *Writer {
	return &Writer{Dir: dir, SummaryPath: summaryPath}
}

// Write persists every picklist and then the summary.
func (w *Writer) Write(res packer.Result) error {
	if err := w.WritePicklists(res.Picklists); err != nil {
		return err
	}
	return w.WriteSummary(res.Summary)
}

// WritePicklists writes one CSV per picklist named after Picklist.File.
func (w *Writer) WritePicklists(picklists []packer.Picklist) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, pl := range picklists {
		path := filepath.Join(w.Dir, pl.File)
		if err := writeFile(path, func(out io.Writer) error {
			return EncodePicklist(out, pl)
		}); err != nil {
			return fmt.Errorf("write picklist %s: %w", pl.File, err)
		}
	}
	return nil
}

// WriteSummary writes the summary rows to SummaryPath.
func (w *Writer) WriteSummary(rows []packer.SummaryRow) error {
	if dir := filepath.Dir(w.SummaryPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary dir: %w", err)
		}
	}
	if err := writeFile(w.SummaryPath, func(out io.Writer) error {
		return EncodeSummary(out, rows)
	}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// EncodePicklist writes the lines of a picklist as CSV.
func EncodePicklist(out io.Writer, pl packer.Picklist) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(PicklistHeader); err != nil {
		return err
	}
	for _, l := range pl.Lines {
		if err := cw.Write([]string{
			l.SKU,
			l.OrderID,
			l.StoreID,
			l.Bin,
			l.BinRank,
			strconv.Itoa(l.Quantity),
			formatFloat(l.UnitWeightKg),
			strconv.FormatBool(l.Fragile),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeSummary writes summary rows as CSV.
func EncodeSummary(out io.Writer, rows []packer.SummaryRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.File,
			r.Zone,
			strconv.Itoa(r.Number),
			string(r.Type),
			strconv.Itoa(r.TotalUnits),
			formatFloat(r.TotalWeightKg),
			strconv.Itoa(r.DistinctOrders),
			strconv.Itoa(r.DistinctBins),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSummaryFile parses a Summary.csv from disk.
func ReadSummaryFile(path string) ([]packer.SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()
	return ReadSummary(f)
}

// ReadSummary parses summary rows. Columns are located by header name.
func ReadSummary(r io.Reader) ([]packer.SummaryRow, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	if len(records) == 0 {
		return []packer.SummaryRow{}, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[name] = i
	}
	for _, name := range SummaryHeader {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidSummary, name)
		}
	}

	rows := make([]packer.SummaryRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		row, err := parseSummaryRecord(rec, index)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSummary, n+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseSummaryRecord(rec []string, index map[string]int) (packer.SummaryRow, error) {
	var (
		row  packer.SummaryRow
		errs []error
	)
	atoi := func(col string) int {
		v, err := strconv.Atoi(rec[index[col]])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
		}
		return v
	}

	row.File = rec[index["picklist_file"]]
	row.Zone = rec[index["zone"]]
	row.Type = packer.PicklistType(rec[index["picklist_type"]])
	row.Number = atoi("picklist_no")
	row.TotalUnits = atoi("total_units")
	row.DistinctOrders = atoi("distinct_orders")
	row.DistinctBins = atoi("distinct_bins")
	w, err := strconv.ParseFloat(rec[index["total_weight"]], 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("total_weight: %w", err))
	}
	row.TotalWeightKg = w

	return row, errors.Join(errs...)
}

func writeFile(path string, encode func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return encode(f)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
