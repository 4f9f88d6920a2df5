// Package planner is the entry point for scheduling requests. A Planner
// validates the legs, tails and lever policy of a request, builds the
// compatibility index, enumerates up to K ranked solutions within the
// request budget and reports the outcome to the configured metrics sink,
// event bus and run log.
//
// Structurally infeasible mandatory legs fail the request with a
// *compat.StructuralInfeasibilityError unless the request (or the planner
// configuration) asks for them to be excluded, in which case they are listed
// in Result.Excluded and the rest of the schedule is still planned.
//
// Result.Explain derives, from the index and a chosen solution, which hard
// constraint forced each lever.
package planner
