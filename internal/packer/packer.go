package packer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// cancelCheckInterval is how many item lines are packed between context checks.
const cancelCheckInterval = 256

type greedyPacker struct {
	caps             Capacity
	workers          int
	clock            func() time.Time
	rejectUnpackable bool
	observer         Observer
}

// Option configures a Packer.
type Option func(*greedyPacker)

// WithWorkers packs up to n zone groups concurrently. Values below 1 mean sequential.
func WithWorkers(n int) Option {
	return func(p *greedyPacker) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}

// WithClock overrides the time source used for picklist file dates.
func WithClock(clock func() time.Time) Option {
	return func(p *greedyPacker) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithRejectUnpackable sets over-cap item lines aside in Result.Rejected instead of failing the run.
func WithRejectUnpackable(enabled bool) Option {
	return func(p *greedyPacker) {
		p.rejectUnpackable = enabled
	}
}

// WithObserver registers an observer notified after every run.
func WithObserver(o Observer) Option {
	return func(p *greedyPacker) {
		p.observer = o
	}
}

// New creates a Packer that greedily fills picklists under the given capacity.
func New(caps Capacity, opts ...Option) (Packer, error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	p := &greedyPacker{
		caps:    caps,
		workers: 1,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type groupKey struct {
	zone string
	typ  PicklistType
}

type group struct {
	key   groupKey
	items []ItemLine
}

type groupResult struct {
	picklists []Picklist
	rejected  []Rejection
}

// Pack sorts items by urgency, splits them into zone and fragility groups and fills
// each group's picklists in order. Groups never share a picklist.
func (p *greedyPacker) Pack(ctx context.Context, items []ItemLine) (res Result, err error) {
	start := time.Now()
	var groups []group
	defer func() {
		if p.observer == nil {
			return
		}
		stats := RunStats{
			Items:     len(items),
			Groups:    len(groups),
			Picklists: res.TotalPicklists,
			Rejected:  len(res.Rejected),
			Duration:  time.Since(start),
			Err:       err,
		}
		for _, pl := range res.Picklists {
			if pl.Type == TypeFragile {
				stats.Fragile++
			}
		}
		p.observer.ObservePack(stats)
	}()

	for i := range items {
		if err := validateItem(items[i]); err != nil {
			return Result{}, err
		}
	}

	groups = partition(sortItems(items))
	date := p.clock().Format(time.DateOnly)

	results := make([]groupResult, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)
	for i, g := range groups {
		eg.Go(func() error {
			r, err := p.packGroup(egCtx, g, date)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	res = Result{
		Picklists: []Picklist{},
		Summary:   []SummaryRow{},
	}
	for _, r := range results {
		for _, pl := range r.picklists {
			res.Picklists = append(res.Picklists, pl)
			res.Summary = append(res.Summary, pl.Summary())
		}
		res.Rejected = append(res.Rejected, r.rejected...)
	}
	res.TotalPicklists = len(res.Picklists)
	return res, nil
}

// packGroup runs the greedy fill for one zone and fragility group. Numbering is local to the group.
func (p *greedyPacker) packGroup(ctx context.Context, g group, date string) (groupResult, error) {
	capUnits := p.caps.UnitCap
	capWeight := p.caps.WeightCap(g.key.typ)

	var out groupResult
	number := 0
	cur := newBin()
	flush := func() error {
		if cur.empty() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		number++
		out.picklists = append(out.picklists, cur.seal(g.key, number, FileName(date, g.key.zone, g.key.typ, number)))
		cur = newBin()
		return nil
	}

	for i, item := range g.items {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return groupResult{}, err
			}
		}

		if item.Quantity == 0 {
			continue
		}

		if item.UnitWeightKg > capWeight {
			uerr := unpackable(item, g.key, capWeight)
			if p.rejectUnpackable {
				out.rejected = append(out.rejected, Rejection{Item: item, Reason: uerr.Error()})
				continue
			}
			return groupResult{}, uerr
		}

		remaining := item.Quantity
		for remaining > 0 {
			availUnits := capUnits - cur.units
			availWeight := capWeight - cur.weight
			if availUnits <= 0 || availWeight <= 0 {
				if err := flush(); err != nil {
					return groupResult{}, err
				}
				continue
			}

			take := min(remaining, availUnits)
			if item.UnitWeightKg > 0 {
				if byWeight := math.Floor(availWeight / item.UnitWeightKg); byWeight < float64(take) {
					take = int(byWeight)
				}
			}

			if take <= 0 {
				if cur.empty() {
					return groupResult{}, unpackable(item, g.key, capWeight)
				}
				if err := flush(); err != nil {
					return groupResult{}, err
				}
				continue
			}

			cur.add(item, take)
			if cur.weight > capWeight+WeightTolerance {
				return groupResult{}, fmt.Errorf("%w: zone %q %s picklist at %.6f kg, cap %.3f kg",
					ErrCapacityExceeded, g.key.zone, g.key.typ, cur.weight, capWeight)
			}
			remaining -= take
		}
	}
	if err := flush(); err != nil {
		return groupResult{}, err
	}

	return out, nil
}

func unpackable(item ItemLine, key groupKey, capWeight float64) *UnpackableItemError {
	return &UnpackableItemError{
		OrderID:      item.OrderID,
		SKU:          item.SKU,
		Zone:         key.zone,
		Type:         key.typ,
		UnitWeightKg: item.UnitWeightKg,
		WeightCapKg:  capWeight,
	}
}

func validateItem(item ItemLine) error {
	if item.Quantity < 0 || item.Quantity > MaxQuantity {
		return fmt.Errorf("%w: order %q sku %q has quantity %d", ErrInvalidItem, item.OrderID, item.SKU, item.Quantity)
	}
	w := item.UnitWeightKg
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: order %q sku %q has unit weight %v", ErrInvalidItem, item.OrderID, item.SKU, w)
	}
	return nil
}

// sortItems returns a copy ordered by cutoff, then priority, then order id.
// Equal keys keep their input order.
func sortItems(items []ItemLine) []ItemLine {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b ItemLine) int {
		if c := a.Cutoff.Compare(b.Cutoff); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.OrderID, b.OrderID)
	})
	return sorted
}

// partition splits sorted items into groups: normal zones first, then fragile zones,
// each in ascending zone order. Items keep their sorted order within a group.
func partition(items []ItemLine) []group {
	index := make(map[groupKey]int)
	var groups []group
	for _, item := range items {
		key := groupKey{zone: item.Zone, typ: TypeNormal}
		if item.Fragile {
			key.typ = TypeFragile
		}
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, group{key: key})
		}
		groups[idx].items = append(groups[idx].items, item)
	}

	slices.SortFunc(groups, func(a, b group) int {
		if a.key.typ != b.key.typ {
			if a.key.typ == TypeNormal {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.key.zone, b.key.zone)
	})
	return groups
}
