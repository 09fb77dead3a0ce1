// Package stats holds the relaxed, process-wide counters the real-time
// paths are allowed to touch: plain atomic increments, no allocation, no
// locking. Modeled on the teacher's PlaybackMetrics/ExtendedPlaybackStatus
// (pkg/types/types.go, pkg/audioplayer/player.go), generalized from
// file-playback metrics to the bridge's own runtime-recoverable counters
// (spec.md §7).
package stats

import "sync/atomic"

// Counters are the runtime-recoverable error/condition counts the control
// plane may log periodically but which never stop the pipeline.
type Counters struct {
	InputOverruns     atomic.Uint64 // capture frames dropped because C1 had no room
	ParseErrors       atomic.Uint64 // capture buffer failed an alignment/bounds check
	UnsupportedLayout atomic.Uint64 // capture saw a datas count outside {1,2,6,8}
	OutputUnderruns   atomic.Uint64 // sink emitted silence because C2 was empty
}

// Snapshot is a point-in-time copy safe to log or compare in tests.
type Snapshot struct {
	InputOverruns     uint64
	ParseErrors       uint64
	UnsupportedLayout uint64
	OutputUnderruns   uint64
}

// Snapshot reads all counters. Safe to call from any thread; never blocks.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		InputOverruns:     c.InputOverruns.Load(),
		ParseErrors:       c.ParseErrors.Load(),
		UnsupportedLayout: c.UnsupportedLayout.Load(),
		OutputUnderruns:   c.OutputUnderruns.Load(),
	}
}
