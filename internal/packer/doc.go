// Package packer batches order lines into picklists a single picker can carry.
//
// Lines are ordered by cutoff, priority and order id, split by zone and fragility,
// and each group is filled greedily: a picklist takes as many units of the next line
// as its unit and weight caps allow, a line that does not fit is split across
// consecutive picklists, and a full picklist is sealed before a new one is opened.
// Picklists never mix zones or fragility classes. The result is not minimal in
// picklist count.
package packer
