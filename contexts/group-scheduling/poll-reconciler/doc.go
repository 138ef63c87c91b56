// Package pollreconciler implements the poll reconciler inside the
// group-scheduling context.
//
// The module turns WhatsApp group-poll notifications into durable
// reconciled attendance state: it registers polls on first sighting,
// resolves each voter's latest selection under the unavailability override,
// keeps a per-delivery audit history, projects the outcome onto the roster
// grid, and expires polls past their retention window. Business rules live
// in the application/domain layers with infrastructure behind ports and
// adapters.
package pollreconciler
