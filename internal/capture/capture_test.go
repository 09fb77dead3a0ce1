package capture

import (
	"testing"
	"unsafe"

	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/stats"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func floatBuffer(samples []float32) Buffer {
	return Buffer{
		Ptr:    unsafe.Pointer(unsafe.SliceData(samples)),
		Offset: 0,
		Size:   len(samples) * bytesPerSample,
		Stride: frameBytes,
	}
}

func planarBuffer(samples []float32) Buffer {
	return Buffer{
		Ptr:    unsafe.Pointer(unsafe.SliceData(samples)),
		Offset: 0,
		Size:   len(samples) * bytesPerSample,
	}
}

func TestInterleavedHappyPath(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	frames := 4
	samples := make([]float32, frames*Channels)
	for i := range samples {
		samples[i] = float32(i)
	}

	c.Process(Quantum{Buffers: []Buffer{floatBuffer(samples)}})

	assert.EqualValues(t, frames*Channels, r.AvailableRead())
	assert.Zero(t, s.ParseErrors.Load())

	out := make([]float32, frames*Channels)
	n := r.Read(out)
	assert.Equal(t, frames*Channels, n)
	assert.Equal(t, samples, out)
}

func TestInterleavedCustomStride(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	const stride = frameBytes + 8 // inter-frame padding
	frames := 3
	raw := make([]byte, frames*stride)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < Channels; ch++ {
			v := float32(i*10 + ch)
			off := i*stride + ch*bytesPerSample
			*(*float32)(unsafe.Pointer(&raw[off])) = v
		}
	}

	buf := Buffer{
		Ptr:    unsafe.Pointer(unsafe.SliceData(raw)),
		Offset: 0,
		Size:   len(raw),
		Stride: stride,
	}
	c.Process(Quantum{Buffers: []Buffer{buf}})

	assert.Zero(t, s.ParseErrors.Load())
	assert.EqualValues(t, frames*Channels, r.AvailableRead())
}

func TestInterleavedZeroStrideIsParseError(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	samples := make([]float32, Channels)
	buf := floatBuffer(samples)
	buf.Stride = 0

	c.Process(Quantum{Buffers: []Buffer{buf}})

	assert.EqualValues(t, 1, s.ParseErrors.Load())
	assert.Zero(t, r.AvailableRead())
}

func TestPlanarSixChannel(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	frames := 5
	bufs := make([]Buffer, 6)
	channelData := make([][]float32, 6)
	for ch := range channelData {
		channelData[ch] = make([]float32, frames)
		for i := range channelData[ch] {
			channelData[ch][i] = float32(ch*100 + i)
		}
		bufs[ch] = planarBuffer(channelData[ch])
	}

	c.Process(Quantum{Buffers: bufs})

	assert.EqualValues(t, frames*Channels, r.AvailableRead())
	out := make([]float32, frames*Channels)
	r.Read(out)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < Channels; ch++ {
			assert.Equal(t, channelData[ch][i], out[i*Channels+ch])
		}
	}
}

func TestPlanarStereoZeroPadsSurroundChannels(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	fl := []float32{1, 2, 3}
	fr := []float32{4, 5, 6}
	c.Process(Quantum{Buffers: []Buffer{planarBuffer(fl), planarBuffer(fr)}})

	out := make([]float32, 3*Channels)
	r.Read(out)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fl[i], out[i*Channels+0])
		assert.Equal(t, fr[i], out[i*Channels+1])
		for ch := 2; ch < Channels; ch++ {
			assert.Zero(t, out[i*Channels+ch])
		}
	}
}

func TestPlanarEightChannelDropsSurplus(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	bufs := make([]Buffer, 8)
	for ch := range bufs {
		data := []float32{float32(ch)}
		bufs[ch] = planarBuffer(data)
	}

	c.Process(Quantum{Buffers: bufs})

	out := make([]float32, Channels)
	r.Read(out)
	for ch := 0; ch < Channels; ch++ {
		assert.Equal(t, float32(ch), out[ch])
	}
}

func TestUnsupportedLayoutCounted(t *testing.T) {
	r := ring.New[float32](64)
	s := &stats.Counters{}
	c := New(r, s, nil)

	bufs := make([]Buffer, 3) // not in {1,2,6,8}
	for i := range bufs {
		bufs[i] = planarBuffer([]float32{1})
	}
	c.Process(Quantum{Buffers: bufs})

	assert.EqualValues(t, 1, s.UnsupportedLayout.Load())
	assert.Zero(t, r.AvailableRead())
}

func TestInputOverrunOnRingFull(t *testing.T) {
	r := ring.New[float32](Channels * 2) // room for 2 frames
	s := &stats.Counters{}
	c := New(r, s, nil)

	samples := make([]float32, Channels*5) // quantum carries 5 frames
	c.Process(Quantum{Buffers: []Buffer{floatBuffer(samples)}})

	assert.EqualValues(t, Channels*2, r.AvailableRead())
	assert.EqualValues(t, 3, s.InputOverruns.Load())
}

// TestFuzzNeverReadsOutOfRange is the P7 property test: randomized
// (offset, size, stride) interleaved descriptors must never cause an
// out-of-range read, and frames accepted must always respect
// frames*6*4 <= valid bytes in the buffer.
func TestFuzzNeverReadsOutOfRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		backing := rapid.SliceOfN(rapid.Float32(), 8, 256).Draw(t, "backing")
		sizeBytes := rapid.IntRange(0, len(backing)*bytesPerSample).Draw(t, "size")
		offset := rapid.IntRange(0, len(backing)*bytesPerSample).Draw(t, "offset")
		stride := rapid.IntRange(-8, 64).Draw(t, "stride")

		r := ring.New[float32](256)
		s := &stats.Counters{}
		c := New(r, s, nil)

		buf := Buffer{
			Ptr:    unsafe.Pointer(unsafe.SliceData(backing)),
			Offset: offset,
			Size:   sizeBytes,
			Stride: stride,
		}

		// The assertion under test is simply that this does not panic and
		// that whatever landed in the ring respects the byte-size contract;
		// a real out-of-range read would corrupt memory or panic, not
		// silently misbehave, so "did not crash" plus the count check is
		// the correct property here.
		before := r.AvailableRead()
		c.Process(Quantum{Buffers: []Buffer{buf}})
		framesPushed := (r.AvailableRead() - before) / Channels
		maxValidFrames := uint64(0)
		if sizeBytes > 0 {
			maxValidFrames = uint64(sizeBytes / bytesPerSample / Channels)
		}
		_ = maxValidFrames // frame math differs for interleaved vs this bound; the check below uses the byte size directly.

		if framesPushed*Channels*bytesPerSample > uint64(sizeBytes) {
			t.Fatalf("pushed more bytes (%d) than were valid in the source buffer (%d)",
				framesPushed*Channels*bytesPerSample, sizeBytes)
		}
	})
}

// TestFuzzPlanarNeverReadsOutOfRange is the planar counterpart of
// TestFuzzNeverReadsOutOfRange: spec.md §8's P7 fuzz tuple covers datas in
// {1, 2, 6, 8}, and processPlanar (datas 2/6/8) needs the same randomized
// (offset, size) coverage per channel buffer as processInterleaved gets for
// datas 1, including zero-size buffers and per-channel offset/size
// mismatches.
func TestFuzzPlanarNeverReadsOutOfRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.SampledFrom([]int{2, 6, 8}).Draw(t, "datas")

		backings := make([][]float32, n)
		buffers := make([]Buffer, n)
		for ch := 0; ch < n; ch++ {
			backing := rapid.SliceOfN(rapid.Float32(), 0, 64).Draw(t, "backing")
			backings[ch] = backing

			maxBytes := len(backing) * bytesPerSample
			sizeBytes := rapid.IntRange(0, maxBytes).Draw(t, "size")
			offset := rapid.IntRange(0, maxBytes).Draw(t, "offset")

			var ptr unsafe.Pointer
			if len(backing) > 0 {
				ptr = unsafe.Pointer(unsafe.SliceData(backing))
			}
			buffers[ch] = Buffer{Ptr: ptr, Offset: offset, Size: sizeBytes}
		}

		r := ring.New[float32](256)
		s := &stats.Counters{}
		c := New(r, s, nil)

		before := r.AvailableRead()
		c.Process(Quantum{Buffers: buffers})
		framesPushed := (r.AvailableRead() - before) / Channels

		// processPlanar's per-channel frame ceiling is governed by the
		// shortest channel (or, for datas==8, the shortest of the first 6 —
		// spec.md §4.2 step 5 drops the two surplus channels), the same
		// bound the implementation itself uses to cap frames.
		limit := n
		if n == 8 {
			limit = 6
		}
		maxValidFrames := -1
		for ch := 0; ch < limit; ch++ {
			perBuf := (buffers[ch].Size - buffers[ch].Offset) / bytesPerSample
			if perBuf < 0 {
				perBuf = 0
			}
			if maxValidFrames < 0 || perBuf < maxValidFrames {
				maxValidFrames = perBuf
			}
		}
		if maxValidFrames < 0 {
			maxValidFrames = 0
		}

		if int64(framesPushed) > int64(maxValidFrames) {
			t.Fatalf("pushed more frames (%d) than any channel buffer could validly supply (%d)",
				framesPushed, maxValidFrames)
		}
	})
}
