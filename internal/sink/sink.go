// Package sink implements the three sink-adapter variants of spec.md §4.4,
// C5: in-graph RT playback (variant A), a direct-hardware blocking writer
// (variant B), and a stdout writer (variant C). All three drain the output
// ring in frame-aligned (4-byte stereo sample) chunks and honor bounded
// blocking so shutdown is never stalled.
//
// Variant A is modeled on the teacher's RT audio callback in
// internal/fileplayer/fileplayer.go (audioCallback): read-or-silence,
// never allocate, never lock. Variants B and C are modeled on the teacher's
// non-RT playback loop in pkg/audioplayer/player.go (the Write-to-stream
// loop in its player goroutine), generalized from "PortAudio blocking
// write" to "blocking write to anything" via the HardwareStream interface
// so a stdout io.Writer and a PortAudio stream share one worker shape.
package sink

import (
	"io"
	"log/slog"
	"time"

	"github.com/drgolem/ac3bridge/internal/profiler"
	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/shutdown"
	"github.com/drgolem/ac3bridge/internal/stats"
)

const stereoFrameBytes = 4

// Playback is variant A: the in-graph RT playback callback. One instance
// serves one registered callback; Process is RT-safe per spec.md I1.
type Playback struct {
	ring  *ring.Ring[byte]
	stats *stats.Counters
	prof  *profiler.Profiler
}

// NewPlayback builds a variant-A sink reading from r. prof may be nil
// (--profile-latency off); Profiler.Mark tolerates a nil receiver.
func NewPlayback(r *ring.Ring[byte], s *stats.Counters, prof *profiler.Profiler) *Playback {
	return &Playback{ring: r, stats: s, prof: prof}
}

// Process fills output with up to n stereo S16 samples (n*4 bytes) from the
// ring, zero-padding any shortfall and counting it as an underrun (spec.md
// §4.4 variant A). Never allocates, never locks.
func (p *Playback) Process(output []byte, n int) {
	need := n * stereoFrameBytes
	if need > len(output) {
		need = len(output)
	}
	got := p.ring.Read(output[:need])
	if got > 0 {
		p.prof.Mark(profiler.StageSinkDrain, time.Now())
	}
	if got < need {
		clear(output[got:need])
		shortSamples := (need - got) / stereoFrameBytes
		p.stats.OutputUnderruns.Add(uint64(shortSamples))
	}
	if need < len(output) {
		clear(output[need:])
	}
}

// HardwareStream is the device-facing write contract variant B needs: a
// blocking write of whole frames, matching the teacher's
// *portaudio.PaStream.Write(frames, buffer) signature so the concrete
// PortAudio stream in internal/portaudiograph satisfies it directly.
type HardwareStream interface {
	Write(frames int, buffer []byte) error
}

// DeviceSignaling is the small external "device state" contract of spec.md
// §4.4 variant B: forcing the downstream device into compressed-bitstream
// signaling mode before opening, and restoring it on shutdown. This is an
// external effect, not part of the algorithmic core, so it is expressed as
// an interface with a no-op default rather than implemented here.
type DeviceSignaling interface {
	EnableBitstreamMode() error
	RestorePriorMode() error
}

// NoopSignaling is the default DeviceSignaling: the concrete downstream
// device's mode-switch ioctl/protocol is outside this specification's
// algorithmic core (spec.md §4.4).
type NoopSignaling struct{}

func (NoopSignaling) EnableBitstreamMode() error { return nil }
func (NoopSignaling) RestorePriorMode() error    { return nil }

// HardwareWriter is variant B: a dedicated worker thread that reads bytes
// from the output ring and writes period-sized chunks to a hardware stream,
// monitoring ShutdownToken between writes (spec.md §4.4 variant B).
type HardwareWriter struct {
	ring        *ring.Ring[byte]
	stream      HardwareStream
	signaling   DeviceSignaling
	token       *shutdown.Token
	stats       *stats.Counters
	prof        *profiler.Profiler
	periodBytes int
}

// NewHardwareWriter builds a variant-B sink writing periodFrames-sized
// chunks (periodFrames * 4 bytes) to stream. prof may be nil
// (--profile-latency off); Profiler.Mark tolerates a nil receiver.
func NewHardwareWriter(r *ring.Ring[byte], stream HardwareStream, signaling DeviceSignaling, token *shutdown.Token, s *stats.Counters, periodFrames int, prof *profiler.Profiler) *HardwareWriter {
	if signaling == nil {
		signaling = NoopSignaling{}
	}
	return &HardwareWriter{
		ring:        r,
		stream:      stream,
		signaling:   signaling,
		token:       token,
		stats:       s,
		prof:        prof,
		periodBytes: periodFrames * stereoFrameBytes,
	}
}

// Run drives the worker loop until ShutdownToken is requested. Call from a
// dedicated goroutine; blocking writes here are acceptable because this is
// not an RT callback (spec.md §5).
func (w *HardwareWriter) Run() error {
	if err := w.signaling.EnableBitstreamMode(); err != nil {
		return err
	}
	defer func() {
		if err := w.signaling.RestorePriorMode(); err != nil {
			slog.Warn("failed to restore device signaling mode", "error", err)
		}
	}()

	buf := make([]byte, w.periodBytes)
	for {
		if w.token.Requested() {
			return nil
		}

		n := w.ring.Read(buf)
		if n == 0 {
			select {
			case <-w.token.Done():
				return nil
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		w.prof.Mark(profiler.StageSinkDrain, time.Now())

		frames := n / stereoFrameBytes
		if rem := n % stereoFrameBytes; rem != 0 {
			// A misaligned tail is dropped (I3); it is not counted.
			n -= rem
		}
		if err := w.stream.Write(frames, buf[:n]); err != nil {
			return err
		}
	}
}

// StdoutWriter is variant C: a worker thread that drains the output ring to
// an io.Writer (ordinarily os.Stdout). On shutdown it drains whatever
// remains currently buffered and exits (spec.md §4.4 variant C).
type StdoutWriter struct {
	ring  *ring.Ring[byte]
	w     io.Writer
	token *shutdown.Token
	prof  *profiler.Profiler
}

// NewStdoutWriter builds a variant-C sink. prof may be nil
// (--profile-latency off); Profiler.Mark tolerates a nil receiver.
func NewStdoutWriter(r *ring.Ring[byte], w io.Writer, token *shutdown.Token, prof *profiler.Profiler) *StdoutWriter {
	return &StdoutWriter{ring: r, w: w, token: token, prof: prof}
}

// Run drives the worker loop until ShutdownToken is requested, then makes
// one final drain pass before returning.
func (s *StdoutWriter) Run() error {
	buf := make([]byte, 4096)
	for {
		if s.token.Requested() {
			return s.drain(buf)
		}

		n := s.ring.Read(buf)
		if n == 0 {
			select {
			case <-s.token.Done():
				return s.drain(buf)
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		s.prof.Mark(profiler.StageSinkDrain, time.Now())
		if _, err := s.w.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func (s *StdoutWriter) drain(buf []byte) error {
	for {
		n := s.ring.Read(buf)
		if n == 0 {
			return nil
		}
		s.prof.Mark(profiler.StageSinkDrain, time.Now())
		if _, err := s.w.Write(buf[:n]); err != nil {
			return err
		}
	}
}
