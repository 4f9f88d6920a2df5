// Package events defines the planner events emitted on the event bus.
//
// Available event types:
//   - PlanRequested: a request passed validation and is about to be solved
//   - LegsExcluded: structurally infeasible legs were dropped from a request
//   - PlanCompleted: ranked solutions were produced
//   - PlanFailed: the request ended without any solution
package events
