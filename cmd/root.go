// Package cmd is the CLI surface of spec.md §6: a single daemon command
// wiring internal/config, internal/session, internal/sink, and
// internal/portaudiograph together the way the teacher's cobra root
// command wires pkg/audioplayer (cmd/root.go, cmd/player.go).
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/drgolem/ac3bridge/internal/capture"
	"github.com/drgolem/ac3bridge/internal/config"
	"github.com/drgolem/ac3bridge/internal/portaudiograph"
	"github.com/drgolem/ac3bridge/internal/profiler"
	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/session"
	"github.com/drgolem/ac3bridge/internal/shutdown"
	"github.com/drgolem/ac3bridge/internal/sink"
	"github.com/drgolem/ac3bridge/internal/stats"
	"github.com/spf13/cobra"
)

var cfg = config.Default()

var (
	captureDeviceIndex int
	outputDeviceIndex  int
	encoderPath        string
	verbose            bool
)

var rootCmd = &cobra.Command{
	Use:   "ac3bridge",
	Short: "Bridge a 5.1 PCM capture into an AC-3/IEC61937 bitstream sink",
	Long: `ac3bridge captures planar or interleaved 6-channel float audio from the
local audio graph, continuously encodes it to AC-3 at 640kb/s through an
external encoder subprocess, wraps the encoded frames in IEC 61937 framing,
and delivers the bitstream to a sink: a virtual in-graph output node, a
direct hardware device, or stdout.

The pipeline runs until SIGINT or SIGTERM, at which point it shuts down in
bounded time even if the encoder or a downstream consumer has stalled.`,
	RunE: run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Target, "target", "", "target sink node name or numeric object id")
	flags.BoolVar(&cfg.Stdout, "stdout", false, "emit raw bitstream bytes to stdout (sink variant C)")
	flags.BoolVar(&cfg.AlsaDirect, "alsa-direct", false, "enable direct hardware output (sink variant B); requires --target")
	flags.IntVar(&cfg.BufferSizeFrames, "buffer-size", cfg.BufferSizeFrames, "input ring capacity in frames")
	flags.IntVar(&cfg.OutputBufferSizeFrames, "output-buffer-size", 0, "output ring capacity in stereo S16 frames (default = input)")
	flags.IntVar(&cfg.LatencyNum, "latency-num", cfg.LatencyNum, "requested quantum numerator")
	flags.IntVar(&cfg.LatencyDenom, "latency-denom", cfg.LatencyDenom, "requested quantum denominator")
	flags.IntVar(&cfg.FFmpegThreadQueueSize, "ffmpeg-thread-queue-size", cfg.FFmpegThreadQueueSize, "encoder input queue depth")
	flags.IntVar(&cfg.FFmpegChunkFrames, "ffmpeg-chunk-frames", cfg.FFmpegChunkFrames, "feeder batch size in frames")
	flags.BoolVar(&cfg.ProfileLatency, "profile-latency", false, "enable the per-stage latency profiler")

	flags.IntVar(&captureDeviceIndex, "capture-device", 0, "fallback PortAudio device index for the virtual input node, used when --target is not a numeric object id")
	flags.IntVar(&outputDeviceIndex, "output-device", 1, "fallback PortAudio device index for the virtual output node or --alsa-direct, used when --target is not a numeric object id")
	flags.StringVar(&encoderPath, "encoder-path", "ac3enc", "path to the external AC-3/IEC61937 encoder binary")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose (debug) logging")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevelFromEnv()})))

	cfg.EncoderPath = encoderPath
	cfg.EncoderArgs = encoderArgs(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := portaudiograph.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer portaudiograph.Terminate()

	registrar, newSinkWorker, err := buildAdapters(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sess, err := session.New(cfg, registrar, newSinkWorker)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if !cfg.Stdout && !cfg.AlsaDirect {
		node, err := portaudiograph.OpenPlaybackNode(portaudiograph.ParseTarget(cfg.Target), outputDeviceIndex, cfg.LatencyNum, 48000, sess.Playback())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer node.Close()
	}

	os.Exit(sess.RunUntilSignal())
	return nil
}

// logLevelFromEnv resolves the logger's level: AC3BRIDGE_LOG (this daemon's
// RUST_LOG-equivalent, spec.md §6 - a verbosity filter with no effect on
// behavior) takes precedence over --verbose, which in turn defaults to Info.
func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("AC3BRIDGE_LOG")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	}
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// encoderArgs builds the external encoder's argument list from the
// subprocess contract of spec.md §4.3: 6-channel float32 LE input at
// 48kHz, AC-3 640kb/s IEC61937 output, configurable thread-queue depth and
// input batch size. The concrete flag names are the encoder's own CLI
// surface, which is out of scope for this specification (§1); these are
// the values it needs regardless of flag spelling.
func encoderArgs(c config.Config) []string {
	return []string{
		"--in-format", "f32le",
		"--in-channels", "6",
		"--in-rate", "48000",
		"--out-bitrate", "640k",
		"--out-format", "iec61937",
		"--thread-queue-size", fmt.Sprint(c.FFmpegThreadQueueSize),
		"--chunk-frames", fmt.Sprint(c.FFmpegChunkFrames),
	}
}

// graphRegistrar adapts internal/portaudiograph's CaptureSource to
// session.CaptureRegistrar.
type graphRegistrar struct {
	target          portaudiograph.Target
	fallbackDevice  int
	framesPerBuffer int
	source          *portaudiograph.CaptureSource
}

func (g *graphRegistrar) Register(cap *capture.Capture) error {
	source, err := portaudiograph.OpenCaptureSource(g.target, g.fallbackDevice, g.framesPerBuffer, 48000, cap)
	if err != nil {
		return err
	}
	g.source = source
	return nil
}

func (g *graphRegistrar) Unregister() error {
	if g.source == nil {
		return nil
	}
	return g.source.Close()
}

// buildAdapters selects the capture registrar and sink-worker factory for
// the requested CLI variant (spec.md §6): --stdout selects variant C,
// --alsa-direct selects variant B, and the default selects variant A (no
// dedicated sink worker; the host graph drives Playback directly). --target
// is parsed once here and threaded into every adapter that opens a stream,
// per spec.md §6: a numeric --target is the target-object id property, a
// non-numeric --target is still passed down as a connect hint.
func buildAdapters(c config.Config) (session.CaptureRegistrar, session.SinkWorkerFactory, error) {
	quantum := c.LatencyNum
	target := portaudiograph.ParseTarget(c.Target)

	registrar := &graphRegistrar{target: target, fallbackDevice: captureDeviceIndex, framesPerBuffer: quantum}

	switch {
	case c.Stdout:
		return registrar, func(r *ring.Ring[byte], token *shutdown.Token, s *stats.Counters, p *profiler.Profiler) (session.SinkWorker, error) {
			return sink.NewStdoutWriter(r, os.Stdout, token, p), nil
		}, nil

	case c.AlsaDirect:
		return registrar, func(r *ring.Ring[byte], token *shutdown.Token, s *stats.Counters, p *profiler.Profiler) (session.SinkWorker, error) {
			stream, err := portaudiograph.OpenOutputStream(target, outputDeviceIndex, quantum, 48000)
			if err != nil {
				return nil, err
			}
			return sink.NewHardwareWriter(r, stream, sink.NoopSignaling{}, token, s, quantum, p), nil
		}, nil

	default:
		// Variant A: no dedicated worker. The caller wires sess.Playback()
		// into the virtual output node's own callback instead.
		return registrar, nil, nil
	}
}
