package dispatch

import "time"

// ObserverStats is a point-in-time snapshot of one observer's counters.
//
// All counters are updated only by the owning observer's drain loop (never by
// another observer or by the producer), so a snapshot is always internally
// consistent. Latency figures are in milliseconds and cover successful
// callback invocations only.
//
// The batch and block sections are populated only for the corresponding
// observer variants and stay zero otherwise.
type ObserverStats struct {
	Name            string    // Observer name as passed at construction
	QueueDepth      int       // Items currently waiting in the queue
	TotalProcessed  uint64    // Successfully processed items
	TotalErrors     uint64    // Items whose callback returned an error
	TotalDropped    uint64    // Items discarded by queue-overflow clears
	MinLatencyMs    float64   // Fastest successful callback, 0 until first success
	AvgLatencyMs    float64   // Mean successful callback latency
	MaxLatencyMs    float64   // Slowest successful callback
	LastProcessedAt time.Time // Time of the most recent success, zero until first success
	LastErrorAt     time.Time // Time of the most recent error, zero until first error
	ErrorRate       float64   // TotalErrors / TotalProcessed, 0 when nothing processed

	// Batch observer extras.
	BatchesProcessed uint64  // Dequeued batch groups
	AvgBatchSize     float64 // Mean flattened transaction count per batch group
	MaxBatchSize     int     // Largest flattened transaction count seen

	// Block observer extras.
	BlocksProcessed uint64  // Dequeued blocks
	AvgBlockTxCount float64 // Mean transactions per block
	MaxBlockTxCount int     // Most transactions seen in a single block
}

// AggregateStats is a derived, cross-observer rollup computed fresh on every
// call to Registry.AggregateStats. It feeds monitoring dashboards and is never
// cached.
type AggregateStats struct {
	ObserverCount       int     // Registered observers of all variants
	TotalProcessed      uint64  // Sum of TotalProcessed across observers
	TotalErrors         uint64  // Sum of TotalErrors across observers
	TotalDropped        uint64  // Sum of TotalDropped across observers
	TotalQueueDepth     int     // Sum of current queue depths
	AvgLatencyMs        float64 // Mean latency weighted by each observer's processed count
	HighestErrorRate    float64 // Worst individual observer error rate
	ObserversWithErrors int     // Observers reporting at least one error
}

// aggregate folds a list of per-observer snapshots into an AggregateStats.
func aggregate(all []ObserverStats) AggregateStats {
	agg := AggregateStats{ObserverCount: len(all)}

	var weightedLatency float64
	for _, st := range all {
		agg.TotalProcessed += st.TotalProcessed
		agg.TotalErrors += st.TotalErrors
		agg.TotalDropped += st.TotalDropped
		agg.TotalQueueDepth += st.QueueDepth

		weightedLatency += st.AvgLatencyMs * float64(st.TotalProcessed)

		if st.TotalErrors > 0 {
			agg.ObserversWithErrors++
		}
		if st.ErrorRate > agg.HighestErrorRate {
			agg.HighestErrorRate = st.ErrorRate
		}
	}

	if agg.TotalProcessed > 0 {
		agg.AvgLatencyMs = weightedLatency / float64(agg.TotalProcessed)
	}
	return agg
}
