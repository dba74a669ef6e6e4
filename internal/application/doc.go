// Package application wires the picklist generator together.
// It builds the batch pipeline used by the generate and evaluate commands
// and the HTTP service (storage, handlers, router, metrics and server)
// used by serve, keeping the main package focused on CLI parsing and
// orchestration.
package application
