package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotEmptyWhenNoMarks(t *testing.T) {
	p := New(16)
	assert.Empty(t, p.Snapshot())
}

func TestSnapshotComputesIntervalStats(t *testing.T) {
	p := New(16)
	base := time.Now()
	for i := 0; i < 5; i++ {
		p.Mark(StageCaptureEnqueue, base.Add(time.Duration(i)*10*time.Millisecond))
	}

	stats := p.Snapshot()
	assert.Len(t, stats, 1)
	assert.Equal(t, StageCaptureEnqueue, stats[0].Stage)
	assert.Equal(t, 4, stats[0].Samples)
	assert.InDelta(t, 10000, stats[0].Avg, 1)
	assert.InDelta(t, 10000, stats[0].Max, 1)
}

func TestSnapshotOnlyReportsStagesWithSamples(t *testing.T) {
	p := New(16)
	base := time.Now()
	p.Mark(StageSinkDrain, base)
	p.Mark(StageSinkDrain, base.Add(5*time.Millisecond))

	stats := p.Snapshot()
	assert.Len(t, stats, 1)
	assert.Equal(t, StageSinkDrain, stats[0].Stage)
}

func TestStageStringNames(t *testing.T) {
	assert.Equal(t, "capture_enqueue", StageCaptureEnqueue.String())
	assert.Equal(t, "feeder_write", StageFeederWrite.String())
	assert.Equal(t, "reader_read", StageReaderRead.String())
	assert.Equal(t, "sink_drain", StageSinkDrain.String())
}
