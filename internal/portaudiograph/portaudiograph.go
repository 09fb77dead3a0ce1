// Package portaudiograph is the external-collaborator adapter standing in
// for the audio-graph node registration described in spec.md §6 (virtual
// input node pw-ac3-live-input, virtual output node pw-ac3-live-output).
// No PipeWire Go binding exists in this module's dependency pack, so the
// adapter is backed by github.com/drgolem/go-portaudio instead, exposing
// the same two contracts the graph binding would: a callback-driven 6ch
// float32 input (the capture source) and a callback-driven or blocking
// 2ch S16 output (the sink).
//
// Grounded on the teacher's two PortAudio usage shapes: the callback
// registration in internal/fileplayer/fileplayer.go (OpenCallback,
// StartStream, CloseCallback) and the blocking-write stream in
// pkg/audioplayer/player.go (NewStream, Open, stream.Write). The input
// side is the output side's mirror image: PaStreamParameters documents
// both an InputParameters and OutputParameters field on PaStream, so
// opening an input callback stream follows the identical shape with the
// parameters struct pointed at InputParameters instead.
package portaudiograph

import (
	"fmt"
	"log/slog"

	"github.com/drgolem/ac3bridge/internal/capture"
	"github.com/drgolem/ac3bridge/internal/sink"
	"github.com/drgolem/go-portaudio/portaudio"
)

// Init wraps portaudio.Initialize, logging the library version the way
// cmd/player.go does on startup.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudiograph: initialize: %w", err)
	}
	slog.Info("portaudio initialized", "version", portaudio.GetVersion())
	return nil
}

// Terminate wraps portaudio.Terminate.
func Terminate() {
	portaudio.Terminate()
}

// CaptureSource stands in for the virtual input node pw-ac3-live-input: a
// 6-channel F32 48kHz callback-driven stream whose frames are handed to an
// internal/capture.Capture parser exactly as the real graph would deliver
// them.
type CaptureSource struct {
	stream *portaudio.PaStream
	cap    *capture.Capture
}

// OpenCaptureSource opens a 6-channel float32 input stream on the device
// target resolves to (falling back to fallbackDevice when target has no
// numeric object id) and wires its callback into cap.
func OpenCaptureSource(target Target, fallbackDevice, framesPerBuffer int, sampleRate float64, cap *capture.Capture) (*CaptureSource, error) {
	deviceIndex := target.DeviceIndex(fallbackDevice)
	slog.Info("opening capture source", "target_hint", target.Hint, "device_index", deviceIndex)

	s := &CaptureSource{cap: cap}
	s.stream = &portaudio.PaStream{
		InputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  deviceIndex,
			ChannelCount: capture.Channels,
			SampleFormat: portaudio.SampleFmtFloat32,
		},
		SampleRate: sampleRate,
	}

	if err := s.stream.OpenCallback(framesPerBuffer, s.onInput); err != nil {
		return nil, fmt.Errorf("portaudiograph: open capture stream: %w", err)
	}
	if err := s.stream.StartStream(); err != nil {
		return nil, fmt.Errorf("portaudiograph: start capture stream: %w", err)
	}
	return s, nil
}

func (s *CaptureSource) onInput(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	buf := capture.Buffer{
		Ptr:    bytesPtr(input),
		Offset: 0,
		Size:   len(input),
		Stride: capture.Channels * 4,
	}
	s.cap.Process(capture.Quantum{Buffers: []capture.Buffer{buf}})
	return portaudio.Continue
}

// Close stops and closes the capture stream.
func (s *CaptureSource) Close() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.StopStream(); err != nil {
		slog.Warn("failed to stop capture stream", "error", err)
	}
	return s.stream.CloseCallback()
}

// PlaybackNode stands in for the virtual output node pw-ac3-live-output
// (spec.md §6): a 2-channel S16 48kHz callback-driven stream whose
// callback is internal/sink.Playback.Process directly, so the RT contract
// of variant A (spec.md §4.4) is preserved end to end.
type PlaybackNode struct {
	stream   *portaudio.PaStream
	playback *sink.Playback
}

// OpenPlaybackNode opens a 2-channel S16 output callback stream on the
// device target resolves to (falling back to fallbackDevice when target has
// no numeric object id) and drives it from playback.
func OpenPlaybackNode(target Target, fallbackDevice, framesPerBuffer int, sampleRate float64, playback *sink.Playback) (*PlaybackNode, error) {
	deviceIndex := target.DeviceIndex(fallbackDevice)
	slog.Info("opening playback node", "target_hint", target.Hint, "device_index", deviceIndex)

	n := &PlaybackNode{playback: playback}
	n.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  deviceIndex,
			ChannelCount: 2,
			SampleFormat: portaudio.SampleFmtInt16,
		},
		SampleRate: sampleRate,
	}

	if err := n.stream.OpenCallback(framesPerBuffer, n.onOutput); err != nil {
		return nil, fmt.Errorf("portaudiograph: open playback node: %w", err)
	}
	if err := n.stream.StartStream(); err != nil {
		return nil, fmt.Errorf("portaudiograph: start playback node: %w", err)
	}
	return n, nil
}

func (n *PlaybackNode) onOutput(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	n.playback.Process(output, int(frameCount))
	return portaudio.Continue
}

// Close stops and closes the playback node stream.
func (n *PlaybackNode) Close() error {
	if n.stream == nil {
		return nil
	}
	if err := n.stream.StopStream(); err != nil {
		slog.Warn("failed to stop playback node", "error", err)
	}
	return n.stream.CloseCallback()
}

// OutputStream wraps a blocking PortAudio output stream; it satisfies
// internal/sink.HardwareStream directly via its Write method, backing
// variant B (spec.md §4.4) when the target is a real local device rather
// than the in-graph virtual node.
type OutputStream struct {
	stream *portaudio.PaStream
}

// OpenOutputStream opens a 2-channel S16 output stream on the device target
// resolves to (falling back to fallbackDevice when target has no numeric
// object id) for variant-B direct hardware playback.
func OpenOutputStream(target Target, fallbackDevice, framesPerBuffer int, sampleRate float64) (*OutputStream, error) {
	deviceIndex := target.DeviceIndex(fallbackDevice)
	slog.Info("opening output stream", "target_hint", target.Hint, "device_index", deviceIndex)

	stream, err := portaudio.NewStream(portaudio.PaStreamParameters{
		DeviceIndex:  deviceIndex,
		ChannelCount: 2,
		SampleFormat: portaudio.SampleFmtInt16,
	}, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("portaudiograph: new output stream: %w", err)
	}
	if err := stream.Open(framesPerBuffer); err != nil {
		return nil, fmt.Errorf("portaudiograph: open output stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return nil, fmt.Errorf("portaudiograph: start output stream: %w", err)
	}
	return &OutputStream{stream: stream}, nil
}

// Write blocks until frames worth of buffer have been written to the
// device (matches internal/sink.HardwareStream).
func (o *OutputStream) Write(frames int, buffer []byte) error {
	return o.stream.Write(frames, buffer)
}

// Close stops and closes the output stream.
func (o *OutputStream) Close() error {
	if err := o.stream.StopStream(); err != nil {
		slog.Warn("failed to stop output stream", "error", err)
	}
	return o.stream.Close()
}
