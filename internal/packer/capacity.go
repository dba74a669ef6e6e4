package packer

import (
	"fmt"
	"math"
)

const (
	// DefaultUnitCap is the maximum number of units on one picklist.
	DefaultUnitCap = 2000
	// DefaultNormalWeightCapKg is the weight cap of a normal picklist.
	DefaultNormalWeightCapKg = 200.0
	// DefaultFragileWeightCapKg is the weight cap of a fragile picklist.
	DefaultFragileWeightCapKg = 50.0

	// WeightTolerance absorbs floating point drift from repeated weight additions.
	WeightTolerance = 1e-6
)

// Capacity holds the per-picklist limits. Every picklist is bounded by UnitCap and
// by the weight cap matching its type.
type Capacity struct {
	UnitCap            int     `json:"unitCap" yaml:"unit_cap"`
	NormalWeightCapKg  float64 `json:"normalWeightCapKg" yaml:"normal_weight_cap_kg"`
	FragileWeightCapKg float64 `json:"fragileWeightCapKg" yaml:"fragile_weight_cap_kg"`
}

// DefaultCapacity returns the standard warehouse limits.
func DefaultCapacity() Capacity {
	return Capacity{
		UnitCap:            DefaultUnitCap,
		NormalWeightCapKg:  DefaultNormalWeightCapKg,
		FragileWeightCapKg: DefaultFragileWeightCapKg,
	}
}

// WeightCap returns the weight limit for the given picklist type.
func (c Capacity) WeightCap(t PicklistType) float64 {
	if t == TypeFragile {
		return c.FragileWeightCapKg
	}
	return c.NormalWeightCapKg
}

// Validate reports ErrInvalidCapacity when any limit is non-positive or not finite.
func (c Capacity) Validate() error {
	if c.UnitCap <= 0 {
		return fmt.Errorf("%w: unit cap %d", ErrInvalidCapacity, c.UnitCap)
	}
	for _, w := range []float64{c.NormalWeightCapKg, c.FragileWeightCapKg} {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight cap %v", ErrInvalidCapacity, w)
		}
	}
	return nil
}
