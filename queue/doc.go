// Package queue delivers durable ingestion jobs to a bounded worker pool.
//
// Jobs live in the storage layer, keyed deterministically so resubmitting
// work that is already waiting, active or delayed is a no-op. The service
// polls for eligible jobs, claims each under a lease, and hands it to a
// fixed-size pool; a worker that dies without completing its job simply
// lets the lease lapse, after which the job becomes eligible again.
//
// The service is a plain constructed value with no package-level state.
// Hosts that want a worker pool build one, start it, and stop it on
// shutdown.
package queue
