// Package viewsync keeps a paginated, searchable view of a remote track
// collection in step with user input, and tracks the remote update job.
//
// A Controller owns one ViewQuery, one Orchestrator and one JobMonitor.
// The Orchestrator tags every page request with a sequence number and only
// renders the result of the most recently issued request; older responses
// are dropped no matter when they arrive. The JobMonitor runs two
// PollingLoops: an ambient loop that reports job status for the whole
// session, and a post-trigger loop that polls quickly after an update was
// started and stops itself once the job reports it is no longer running.
//
// Rendering goes through the Surface interface. Every render call is made
// while the owning component holds its lock and has checked that it was not
// torn down, so a Surface never sees a call after Controller.Teardown returns.
package viewsync
