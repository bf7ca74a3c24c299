// Package schema validates JSON-like payloads.
//
// A Schema maps field names to types. Edges declare the input they need and
// the engine denies requests whose payload does not conform, before the
// edge's own guard runs:
//
//	m.Edge("reject", LeavePending, LeaveRejected).
//	    Input(schema.Schema{"reason": schema.NonBlank()})
//
// Guards use the same schemas for entity payloads, e.g. a purchase order
// needs a NonEmptySlice of line item Objects before it can be submitted.
//
// Values are checked the way encoding/json produces them, so Float accepts
// any number. Schemas marshal to a map of field names to type names for
// introspection.
package schema
