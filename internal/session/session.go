// Package session is the control plane (spec.md §4.6, C7): it ties C1-C6
// together in the exact construction and shutdown orders the spec
// mandates, owns the ShutdownToken, and converts termination signals into
// a shutdown request without doing any work in the signal handler itself.
//
// Grounded on the teacher's FilePlayer/Player lifecycle methods
// (PlayFile/Stop in internal/fileplayer/fileplayer.go and
// pkg/audioplayer/player.go): a single owning struct whose constructor
// wires dependent pieces in a fixed order and whose Stop/shutdown method
// unwinds them in reverse, generalized from "one file, one stream" to the
// full multi-stage capture→encoder→sink pipeline this spec requires.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/ac3bridge/internal/capture"
	"github.com/drgolem/ac3bridge/internal/config"
	"github.com/drgolem/ac3bridge/internal/encoder"
	"github.com/drgolem/ac3bridge/internal/profiler"
	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/shutdown"
	"github.com/drgolem/ac3bridge/internal/sink"
	"github.com/drgolem/ac3bridge/internal/stats"
)

const (
	encoderGrace     = 1500 * time.Millisecond
	encoderKillGrace = 300 * time.Millisecond
)

// SinkWorker is the Run-until-shutdown contract shared by sink variants B
// and C (internal/sink.HardwareWriter and internal/sink.StdoutWriter).
type SinkWorker interface {
	Run() error
}

// SinkWorkerFactory builds the sink worker for variants B and C. It
// receives the session's Profiler (possibly nil, when --profile-latency is
// off) so the constructed worker can record StageSinkDrain arrivals.
type SinkWorkerFactory func(*ring.Ring[byte], *shutdown.Token, *stats.Counters, *profiler.Profiler) (SinkWorker, error)

// CaptureRegistrar is the external audio-graph binding's node-registration
// contract (spec.md §6, "out of scope... audio-graph node registration and
// routing"). Session calls Register during construction and Unregister
// first during shutdown; a real binding (e.g. internal/portaudiograph)
// implements it against a concrete graph API.
type CaptureRegistrar interface {
	Register(*capture.Capture) error
	Unregister() error
}

// Session owns every long-lived object in the pipeline and the order in
// which they are built and torn down.
type Session struct {
	cfg   config.Config
	Token *shutdown.Token
	Stats *stats.Counters

	InputRing  *ring.Ring[float32]
	OutputRing *ring.Ring[byte]

	Capture *capture.Capture
	Encoder *encoder.Driver

	registrar  CaptureRegistrar
	sinkWorker SinkWorker
	sinkDone   chan error

	Profiler *profiler.Profiler
	profDone chan struct{}
}

// New builds a Session following spec.md §4.6's construction order:
// validate parameters → create rings → create profiler → spawn encoder →
// spawn feeder/reader → create sink adapter → register capture callback →
// (optional) start profiler reporter. sinkWorker is nil for variant A,
// whose consumer is driven by the host graph itself rather than by a
// dedicated goroutine. The Profiler object itself is allocated ahead of
// encoder/capture/sink construction (even though its reporter goroutine
// only starts at the end) so its pointer, possibly nil when
// --profile-latency is off, can be threaded into every stage that needs to
// call Mark.
func New(cfg config.Config, registrar CaptureRegistrar, newSinkWorker SinkWorkerFactory) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		Token:    shutdown.New(),
		Stats:    &stats.Counters{},
		sinkDone: make(chan error, 1),
	}

	s.InputRing = ring.New[float32](cfg.InputRingFloats())
	s.OutputRing = ring.New[byte](cfg.OutputRingBytes())

	if cfg.ProfileLatency {
		s.Profiler = profiler.New(4096)
	}

	s.Encoder = encoder.New(encoder.Params{
		Path:            cfg.EncoderPath,
		Args:            cfg.EncoderArgs,
		ChunkFrames:     cfg.FFmpegChunkFrames,
		ThreadQueueSize: cfg.FFmpegThreadQueueSize,
	}, s.InputRing, s.OutputRing, s.Token, s.Stats, s.Profiler)

	if err := s.Encoder.Start(); err != nil {
		return nil, fmt.Errorf("session: encoder spawn: %w", err)
	}

	if newSinkWorker != nil {
		worker, err := newSinkWorker(s.OutputRing, s.Token, s.Stats, s.Profiler)
		if err != nil {
			_ = s.Encoder.Shutdown(encoderGrace, encoderKillGrace)
			return nil, fmt.Errorf("session: sink adapter: %w", err)
		}
		s.sinkWorker = worker
		go func() { s.sinkDone <- worker.Run() }()
	}

	s.Capture = capture.New(s.InputRing, s.Stats, s.Profiler)
	if registrar != nil {
		if err := registrar.Register(s.Capture); err != nil {
			_ = s.Encoder.Shutdown(encoderGrace, encoderKillGrace)
			return nil, fmt.Errorf("session: capture registration: %w", err)
		}
		s.registrar = registrar
	}

	if s.Profiler != nil {
		s.profDone = make(chan struct{})
		go func() {
			defer close(s.profDone)
			profiler.Reporter(s.Profiler, s.Token)
		}()
	}

	return s, nil
}

// Playback builds the variant-A in-graph sink reading this session's
// output ring. Callers that selected variant A use this instead of a
// SinkWorker, since variant A has no dedicated goroutine of its own.
func (s *Session) Playback() *sink.Playback {
	return sink.NewPlayback(s.OutputRing, s.Stats, s.Profiler)
}

// RunUntilSignal blocks until SIGINT/SIGTERM or an internal fatal
// condition requests shutdown, then runs Shutdown and returns an exit
// code per spec.md §6 (0 on signal-initiated shutdown, non-zero on a
// fatal pipeline condition the signal never covered).
func (s *Session) RunUntilSignal() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	signalInitiated := false
	select {
	case <-sigCh:
		signalInitiated = true
		s.Token.Request()
	case <-s.Token.Done():
	}

	if err := s.Shutdown(); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	if !signalInitiated {
		// Token was set internally (encoder died, broken pipe, EOF) rather
		// than by a termination signal: spec.md §7 requires a non-zero exit
		// in this case even though teardown itself completed cleanly.
		slog.Error("pipeline shut down due to an internal fatal condition")
		return 1
	}
	return 0
}

// Shutdown implements spec.md §4.6's reverse shutdown order: request
// shutdown → unregister capture callback → signal sink adapter → close
// encoder stdin → wait for encoder exit (or kill) → join feeder → join
// reader → stop profiler → destroy rings.
func (s *Session) Shutdown() error {
	s.Token.Request()

	if s.registrar != nil {
		if err := s.registrar.Unregister(); err != nil {
			slog.Warn("capture unregister error", "error", err)
		}
	}

	var firstErr error
	if s.sinkWorker != nil {
		select {
		case err := <-s.sinkDone:
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("sink worker: %w", err)
			}
		case <-time.After(2 * time.Second):
			slog.Warn("sink worker did not exit within grace period")
		}
	}

	if err := s.Encoder.Shutdown(encoderGrace, encoderKillGrace); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("encoder shutdown: %w", err)
	}

	if s.Profiler != nil {
		<-s.profDone
	}

	s.InputRing.Reset()
	s.OutputRing.Reset()

	return firstErr
}
