package packer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnpackableItem is returned when a single unit of an item line cannot fit an empty picklist.
	ErrUnpackableItem = errors.New("item exceeds capacity")
	// ErrInvalidItem is returned for item lines with a negative quantity or a negative or non-finite weight.
	ErrInvalidItem = errors.New("invalid item line")
	// ErrInvalidCapacity is returned when capacity limits are missing or non-positive.
	ErrInvalidCapacity = errors.New("capacity limits must be positive finite numbers")
	// ErrCapacityExceeded reports a broken capacity invariant on an open picklist.
	ErrCapacityExceeded = errors.New("picklist capacity exceeded")
)

// UnpackableItemError identifies the item line whose unit weight alone is above the
// weight cap of its zone and fragility group.
type UnpackableItemError struct {
	OrderID      string
	SKU          string
	Zone         string
	Type         PicklistType
	UnitWeightKg float64
	WeightCapKg  float64
}

func (e *UnpackableItemError) Error() string {
	return fmt.Sprintf("%s: order %q sku %q in zone %q weighs %.3f kg per unit, %s picklist cap is %.3f kg",
		ErrUnpackableItem, e.OrderID, e.SKU, e.Zone, e.UnitWeightKg, e.Type, e.WeightCapKg)
}

func (e *UnpackableItemError) Unwrap() error {
	return ErrUnpackableItem
}
