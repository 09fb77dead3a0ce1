// Package capture implements the real-time capture callback (spec.md
// §4.2, C3): the zero-allocation parser that turns one audio-graph quantum
// of interleaved or planar 6-channel float samples into frames pushed onto
// the input ring.
//
// Process is the only exported entry point and is written to the real-time
// contract in spec.md I1: no allocation, no locking, no syscalls, no panics.
// It is modeled on the teacher's audioCallback
// (internal/fileplayer/fileplayer.go), which is the one place in the
// teacher repo that runs on a foreign real-time thread and must not block.
package capture

import (
	"time"
	"unsafe"

	"github.com/drgolem/ac3bridge/internal/profiler"
	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/stats"
)

const (
	// Channels is the fixed channel count and order: FL, FR, FC, LFE, SL, SR.
	Channels = 6
	// bytesPerSample is sizeof(float32).
	bytesPerSample = 4
	// frameBytes is one 6-channel interleaved frame.
	frameBytes = Channels * bytesPerSample
)

// Buffer describes one raw audio-graph buffer the way the host graph hands
// it to the callback: a base pointer plus the (offset, size, stride)
// triple from spec.md §4.2. Stride is only meaningful for an interleaved
// buffer; planar buffers are assumed densely packed (stride == 4).
type Buffer struct {
	Ptr    unsafe.Pointer
	Offset int
	Size   int // valid byte extent of this buffer, from Ptr
	Stride int // bytes between consecutive frames; interleaved only
}

// Quantum is the set of buffers describing one real-time callback
// invocation. len(Buffers) == 1 means interleaved; any other count is a
// planar layout with one buffer per channel.
type Quantum struct {
	Buffers []Buffer
}

// Capture is the RT-safe parser. One Capture instance serves exactly one
// capture callback registration; it is not safe for concurrent Process
// calls (the host graph never makes concurrent calls to the same
// callback — spec.md §5).
type Capture struct {
	ring  *ring.Ring[float32]
	stats *stats.Counters
	prof  *profiler.Profiler
}

// New builds a Capture writing into r and counting conditions into s. prof
// may be nil (--profile-latency off); Profiler.Mark tolerates a nil
// receiver, so callers here never need to branch on it.
func New(r *ring.Ring[float32], s *stats.Counters, prof *profiler.Profiler) *Capture {
	return &Capture{ring: r, stats: s, prof: prof}
}

// Process parses one quantum and pushes as many valid frames as fit into
// the input ring. It never allocates, never blocks, never panics, and
// never logs — exactly the contract spec.md I1 demands of an RT callback.
func (c *Capture) Process(q Quantum) {
	switch len(q.Buffers) {
	case 1:
		c.processInterleaved(q.Buffers[0])
	case 2:
		c.processPlanar(q.Buffers, 2)
	case 6:
		c.processPlanar(q.Buffers, 6)
	case 8:
		c.processPlanar(q.Buffers, 8)
	default:
		c.stats.UnsupportedLayout.Add(1)
	}
}

// processInterleaved implements spec.md §4.2 step 2.
func (c *Capture) processInterleaved(buf Buffer) {
	// A stride shorter than one frame would make consecutive frames overlap
	// in the source buffer, which is never a legitimate buffer descriptor
	// (spec.md §4.2 describes stride as "larger than 6 × sizeof(float)",
	// i.e. frameBytes is the floor) and would otherwise let frames_pushed
	// exceed valid_bytes_in_buffer (spec.md §8 P7).
	if buf.Stride < frameBytes {
		c.stats.ParseErrors.Add(1)
		return
	}

	availFrames := int(c.ring.AvailableWrite()) / Channels
	framesBySize := 0
	if buf.Stride > 0 && buf.Size > buf.Offset {
		framesBySize = (buf.Size - buf.Offset) / buf.Stride
	}
	f := min(availFrames, framesBySize)
	if framesBySize > availFrames {
		c.stats.InputOverruns.Add(uint64(framesBySize - availFrames))
	}
	if f <= 0 {
		return
	}

	first, second, _ := c.ring.Reserve(uint64(f) * Channels)
	written := 0
	for i := 0; i < f; i++ {
		byteOffset := buf.Offset + i*buf.Stride
		if byteOffset+frameBytes > buf.Size {
			c.stats.ParseErrors.Add(1)
			break
		}
		addr := uintptr(buf.Ptr) + uintptr(byteOffset)
		if addr%bytesPerSample != 0 {
			c.stats.ParseErrors.Add(1)
			break
		}
		for ch := 0; ch < Channels; ch++ {
			v := readFloat32(buf.Ptr, byteOffset+ch*bytesPerSample)
			setAt(first, second, written*Channels+ch, v)
		}
		written++
	}
	// The aborted tail of the reservation, if any, is simply never
	// committed — nothing further to release back to the ring.
	c.ring.Commit(uint64(written) * Channels)
	if written > 0 {
		c.prof.Mark(profiler.StageCaptureEnqueue, time.Now())
	}
}

// processPlanar implements spec.md §4.2 steps 3-5: gather N per-channel
// buffers into interleaved 6-channel frames, zero-padding or dropping
// channels as required by N.
func (c *Capture) processPlanar(buffers []Buffer, n int) {
	availFrames := int(c.ring.AvailableWrite()) / Channels
	framesBySize := -1
	limit := n
	if n == 8 {
		limit = 6 // drop the two surplus channels (spec.md §4.2 step 5)
	}
	for i := 0; i < limit; i++ {
		perBuf := (buffers[i].Size - buffers[i].Offset) / bytesPerSample
		if framesBySize < 0 || perBuf < framesBySize {
			framesBySize = perBuf
		}
	}
	if framesBySize < 0 {
		framesBySize = 0
	}

	f := min(availFrames, framesBySize)
	shortfall := 0
	if framesBySize > availFrames {
		shortfall = framesBySize - availFrames
	}
	if f <= 0 {
		if shortfall > 0 {
			c.stats.InputOverruns.Add(uint64(shortfall))
		}
		return
	}

	first, second, _ := c.ring.Reserve(uint64(f) * Channels)
	for i := 0; i < f; i++ {
		switch n {
		case 6:
			for ch := 0; ch < Channels; ch++ {
				v := readFloat32(buffers[ch].Ptr, buffers[ch].Offset+i*bytesPerSample)
				setAt(first, second, i*Channels+ch, v)
			}
		case 2:
			fl := readFloat32(buffers[0].Ptr, buffers[0].Offset+i*bytesPerSample)
			fr := readFloat32(buffers[1].Ptr, buffers[1].Offset+i*bytesPerSample)
			setAt(first, second, i*Channels+0, fl)
			setAt(first, second, i*Channels+1, fr)
			for ch := 2; ch < Channels; ch++ {
				setAt(first, second, i*Channels+ch, 0)
			}
		case 8:
			for ch := 0; ch < Channels; ch++ {
				v := readFloat32(buffers[ch].Ptr, buffers[ch].Offset+i*bytesPerSample)
				setAt(first, second, i*Channels+ch, v)
			}
		}
	}
	c.ring.Commit(uint64(f) * Channels)
	c.prof.Mark(profiler.StageCaptureEnqueue, time.Now())

	if shortfall > 0 {
		c.stats.InputOverruns.Add(uint64(shortfall))
	}
}

func readFloat32(base unsafe.Pointer, byteOffset int) float32 {
	return *(*float32)(unsafe.Add(base, byteOffset))
}

// setAt writes logical index idx (frames*Channels + channel) into the
// split two-slice view returned by Ring.Reserve, which may straddle the
// boundary between first and second.
func setAt(first, second []float32, idx int, v float32) {
	if idx < len(first) {
		first[idx] = v
		return
	}
	second[idx-len(first)] = v
}
