// Package task contains the background processing machinery: the job
// processor that drives a queued job through the upstream provider to a
// terminal state, the worker-pool runner that executes processors, and the
// triggers (NSQ or in-process) that tell the runner which job to pick up.
package task
