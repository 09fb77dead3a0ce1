// Package profiler implements the optional per-stage latency profiler
// (spec.md §4.5, C6): a lock-free ring of arrival timestamps per stage plus
// a background reporter that computes avg/p50/p95/max once a second.
//
// Sample sites (Mark) are the only profiler code allowed on an RT path: a
// single monotonic clock read and a single atomic append into a
// pre-allocated ring, mirroring the teacher's jitter/latency instrumentation
// in pkg/audioplayer/player.go (updateConsumerMetrics, updateJitterMetrics),
// generalized from wall-clock durations around file I/O to fixed sample
// sites around the live pipeline's four stages.
package profiler

import (
	"log/slog"
	"sort"
	"time"

	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/shutdown"
)

// Stage identifies one of the four arrival-time sample sites.
type Stage int

const (
	StageCaptureEnqueue Stage = iota
	StageFeederWrite
	StageReaderRead
	StageSinkDrain
	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageCaptureEnqueue:
		return "capture_enqueue"
	case StageFeederWrite:
		return "feeder_write"
	case StageReaderRead:
		return "reader_read"
	case StageSinkDrain:
		return "sink_drain"
	default:
		return "unknown"
	}
}

// Profiler owns one fixed-capacity timestamp ring per stage.
type Profiler struct {
	rings [stageCount]*ring.Ring[int64]
	start time.Time
}

// New creates a Profiler whose per-stage rings hold capacity samples each.
func New(capacity uint64) *Profiler {
	p := &Profiler{start: time.Now()}
	for i := range p.rings {
		p.rings[i] = ring.New[int64](capacity)
	}
	return p
}

// Mark records one arrival at stage now. RT-safe: one clock read (by the
// caller, passed in as now to keep this function itself allocation-free)
// and one ring write. A nil receiver is a no-op, so every call site can
// hold an always-valid *Profiler regardless of whether --profile-latency
// is enabled.
func (p *Profiler) Mark(stage Stage, now time.Time) {
	if p == nil {
		return
	}
	us := now.Sub(p.start).Microseconds()
	p.rings[stage].Write([]int64{us})
}

// Stats is one stage's computed latency distribution, in microseconds
// between consecutive arrivals.
type Stats struct {
	Stage   Stage
	Samples int
	Avg     float64
	P50     float64
	P95     float64
	Max     float64
}

// Snapshot drains whatever is currently buffered per stage (non-destructive
// for other readers isn't required — the profiler has exactly one consumer,
// the reporter goroutine) and returns inter-arrival statistics.
func (p *Profiler) Snapshot() []Stats {
	out := make([]Stats, 0, stageCount)
	for s := Stage(0); s < stageCount; s++ {
		r := p.rings[s]
		n := int(r.AvailableRead())
		if n == 0 {
			continue
		}
		buf := make([]int64, n)
		r.Read(buf)
		out = append(out, computeStats(s, buf))
	}
	return out
}

func computeStats(stage Stage, arrivals []int64) Stats {
	if len(arrivals) < 2 {
		return Stats{Stage: stage, Samples: len(arrivals)}
	}
	intervals := make([]float64, 0, len(arrivals)-1)
	for i := 1; i < len(arrivals); i++ {
		intervals = append(intervals, float64(arrivals[i]-arrivals[i-1]))
	}
	sort.Float64s(intervals)

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	pick := func(p float64) float64 {
		idx := int(p * float64(len(intervals)-1))
		return intervals[idx]
	}

	return Stats{
		Stage:   stage,
		Samples: len(intervals),
		Avg:     sum / float64(len(intervals)),
		P50:     pick(0.50),
		P95:     pick(0.95),
		Max:     intervals[len(intervals)-1],
	}
}

// Reporter runs until the shutdown token is requested, logging one line per
// stage per second. Ordinary OS thread, not RT — sleeping and logging here
// are both fine (spec.md §4.5).
func Reporter(p *Profiler, token *shutdown.Token) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-token.Done():
			return
		case <-ticker.C:
			for _, st := range p.Snapshot() {
				if st.Samples == 0 {
					continue
				}
				slog.Info("latency",
					"stage", st.Stage.String(),
					"samples", st.Samples,
					"avg_us", st.Avg,
					"p50_us", st.P50,
					"p95_us", st.P95,
					"max_us", st.Max)
			}
		}
	}
}
