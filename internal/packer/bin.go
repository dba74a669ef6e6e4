package packer

import (
	"fmt"
	"strings"
)

type binState int

const (
	binOpen binState = iota
	binSealed
)

// bin is the picklist currently being filled for one group.
type bin struct {
	state  binState
	lines  []PickLine
	units  int
	weight float64
	orders map[string]struct{}
	bins   map[string]struct{}
}

func newBin() *bin {
	return &bin{
		state:  binOpen,
		orders: make(map[string]struct{}),
		bins:   make(map[string]struct{}),
	}
}

func (b *bin) empty() bool {
	return len(b.lines) == 0
}

// add places take units of item on the bin. Callers check capacity first.
func (b *bin) add(item ItemLine, take int) {
	if b.state != binOpen {
		panic("packer: add on sealed bin")
	}
	b.lines = append(b.lines, PickLine{
		SKU:          item.SKU,
		OrderID:      item.OrderID,
		StoreID:      item.StoreID,
		Bin:          item.Bin,
		BinRank:      item.BinRank,
		Quantity:     take,
		UnitWeightKg: item.UnitWeightKg,
		Fragile:      item.Fragile,
	})
	b.units += take
	b.weight += float64(take) * item.UnitWeightKg
	b.orders[item.OrderID] = struct{}{}
	b.bins[item.Bin] = struct{}{}
}

// seal closes the bin and returns it as a numbered picklist.
func (b *bin) seal(key groupKey, number int, file string) Picklist {
	b.state = binSealed
	return Picklist{
		File:           file,
		Zone:           key.zone,
		Number:         number,
		Type:           key.typ,
		Lines:          b.lines,
		TotalUnits:     b.units,
		TotalWeightKg:  b.weight,
		DistinctOrders: len(b.orders),
		DistinctBins:   len(b.bins),
	}
}

// FileName returns the picklist CSV name for a zone, type and number on the given date.
// Distinct zones always yield distinct names.
func FileName(date string, zone string, t PicklistType, number int) string {
	zone = escapeZone(zone)
	if t == TypeFragile {
		return fmt.Sprintf("%s_ZONE_%s_FRAGILE_PL%d.csv", date, zone, number)
	}
	return fmt.Sprintf("%s_ZONE_%s_PL%d.csv", date, zone, number)
}

// escapeZone keeps ASCII letters, digits, '-' and '.' and writes every other byte
// as '_' followed by two hex digits, so "A B", "A/B" and "A_B" stay distinct.
func escapeZone(zone string) string {
	var b strings.Builder
	for i := 0; i < len(zone); i++ {
		c := zone[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}
