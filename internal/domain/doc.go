// Package domain contains the core entity of the system: the durable Job
// record and its lifecycle invariants. It has no dependencies on storage,
// transport, or the upstream provider.
package domain
