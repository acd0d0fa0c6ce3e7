// Package recovery keeps the ingestion system healthy over time.
//
// The StuckDetector sweeps for assets stranded in PROCESSING past a
// staleness threshold, marks them STUCK, and either re-queues them or
// fails them terminally once their attempts are spent.
//
// The GarbageCollector reclaims blob content that has been unreferenced
// longer than a grace window, double-checking against live asset
// references before deleting anything.
package recovery
