// Package task is the job queue core. It owns the registry of user-visible
// tasks and their items, a fixed pool of workers pulling jobs from a dispatch
// queue, cooperative cancellation, and status aggregation.
//
// All registry state is guarded by a single mutex owned by Queue. Callers only
// ever receive deep copies, so a snapshot is consistent at the instant it was
// taken.
package task
