// Package encoder drives the external AC-3/IEC61937 encoder subprocess
// (spec.md §4.3, C4): it owns the child process, a feeder goroutine that
// drains the input ring onto the encoder's stdin, a reader goroutine that
// drains the encoder's stdout into the output ring, and the bounded
// shutdown sequence that tears both down without wedging on a stuck child.
//
// Grounded on the subprocess-driving shape of
// other_examples/627025c7_thewind121212-natashi__internal-encoder-ffmpeg.go.go
// (StdoutPipe/StdinPipe, a reader goroutine copying into a channel, Stop
// cancelling a context) and the graceful-then-forced shutdown sequencing of
// other_examples/7ec3c2e0_tomtom215-lyrebirdaudio-go__internal-stream-manager.go.go
// (signal, bounded timer, force-kill on timeout), adapted from those
// channel-output / RTSP-restart designs to the spec's single-shot
// SPSC-ring-in/SPSC-ring-out pipeline with no restart-on-failure.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/drgolem/ac3bridge/internal/profiler"
	"github.com/drgolem/ac3bridge/internal/ring"
	"github.com/drgolem/ac3bridge/internal/shutdown"
	"github.com/drgolem/ac3bridge/internal/stats"
	"golang.org/x/sys/unix"
)

const (
	bytesPerSample   = 4
	channels         = 6
	frameBytes       = channels * bytesPerSample
	feederIdleSleep  = 2 * time.Millisecond
	readerChunk      = 4096
	readerBackoffCap = 10 * time.Millisecond
)

// Params configures the subprocess and its worker pacing. All fields
// correspond directly to spec.md §4.3 and §6.
type Params struct {
	// Path is the encoder binary to exec. Args are appended after Path;
	// Driver does not itself construct an argument list because the
	// concrete encoder's CLI surface is outside this specification (§1,
	// "out of scope... bitstream muxer and AC-3 encoder").
	Path string
	Args []string

	ChunkFrames     int // feeder batch size, in frames (default 128)
	ThreadQueueSize int // advisory; forwarded to the encoder via Args by the caller
}

// Driver owns one encoder subprocess and its two worker goroutines.
type Driver struct {
	params Params
	input  *ring.Ring[float32]
	output *ring.Ring[byte]
	token  *shutdown.Token
	stats  *stats.Counters
	prof   *profiler.Profiler

	cmd   *exec.Cmd
	stdin io.WriteCloser

	feederDone chan struct{}
	readerDone chan struct{}
}

// New constructs a Driver. It does not start the subprocess; call Start.
// prof may be nil (--profile-latency off); Profiler.Mark tolerates a nil
// receiver.
func New(p Params, input *ring.Ring[float32], output *ring.Ring[byte], token *shutdown.Token, s *stats.Counters, prof *profiler.Profiler) *Driver {
	if p.ChunkFrames <= 0 {
		p.ChunkFrames = 128
	}
	return &Driver{
		params:     p,
		input:      input,
		output:     output,
		token:      token,
		stats:      s,
		prof:       prof,
		feederDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Start spawns the encoder subprocess in its own process group and launches
// the feeder and reader goroutines. Stderr is inherited (spec.md §4.3).
func (d *Driver) Start() error {
	d.cmd = exec.Command(d.params.Path, d.params.Args...)
	d.cmd.Stderr = os.Stderr

	// Own process group so a bounded SIGTERM/SIGKILL at shutdown reaches any
	// children the encoder itself spawns, not just the encoder binary.
	d.cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder: stdout pipe: %w", err)
	}
	d.stdin = stdin

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("encoder: start: %w", err)
	}

	go d.feed()
	go d.read(stdout)

	return nil
}

// feed implements spec.md §4.3's feeder loop.
func (d *Driver) feed() {
	defer close(d.feederDone)

	chunkFloats := d.params.ChunkFrames * channels
	buf := make([]float32, chunkFloats)

	for {
		if d.token.Requested() {
			_ = d.stdin.Close()
			return
		}

		avail := d.input.AvailableRead()
		want := uint64(chunkFloats)
		if avail < want {
			want = avail
		}
		if want == 0 {
			time.Sleep(feederIdleSleep)
			continue
		}

		n := d.input.Read(buf[:want])
		if n == 0 {
			time.Sleep(feederIdleSleep)
			continue
		}

		if err := d.writeAll(floatsToBytes(buf[:n])); err != nil {
			d.token.Request()
			_ = d.stdin.Close()
			return
		}
		d.prof.Mark(profiler.StageFeederWrite, time.Now())
	}
}

// writeAll retries partial writes until the batch is fully written or
// writing fails (spec.md §4.3 feeder step 3), including EPIPE.
func (d *Driver) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := d.stdin.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// read implements spec.md §4.3's reader loop.
func (d *Driver) read(stdout io.ReadCloser) {
	defer close(d.readerDone)
	defer stdout.Close()

	buf := make([]byte, readerChunk)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			d.pushWithBackoff(buf[:n])
			d.prof.Mark(profiler.StageReaderRead, time.Now())
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("encoder stdout read error", "error", err)
			}
			d.token.Request()
			return
		}
	}
}

// pushWithBackoff implements the reader's bounded-retry backpressure policy
// (spec.md §4.3 reader step 3, P4): never spin forever on a full output
// ring, retry with capped exponential sleep, re-check shutdown between
// attempts, and drop remaining bytes once shutdown is requested.
func (d *Driver) pushWithBackoff(b []byte) {
	backoff := time.Millisecond
	for len(b) > 0 {
		n := d.output.Write(b)
		b = b[n:]
		if len(b) == 0 {
			return
		}
		if d.token.Requested() {
			// Shutdown requested while the output ring is still full: drop
			// the remainder rather than spin (spec.md §4.3 reader step 3, P4).
			return
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > readerBackoffCap {
			backoff = readerBackoffCap
		}
	}
}

// Shutdown implements spec.md §4.3's shutdown ordering: request, close
// stdin, bounded wait, SIGTERM, further bounded wait, SIGKILL, then join.
func (d *Driver) Shutdown(grace, killGrace time.Duration) error {
	d.token.Request()
	_ = d.stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- d.cmd.Wait() }()

	select {
	case err := <-exited:
		d.joinWorkers()
		return waitErrOrNil(err)
	case <-time.After(grace):
	}

	if d.cmd.Process != nil {
		_ = unix.Kill(-d.cmd.Process.Pid, unix.SIGTERM)
	}
	select {
	case err := <-exited:
		d.joinWorkers()
		return waitErrOrNil(err)
	case <-time.After(killGrace):
	}

	if d.cmd.Process != nil {
		_ = unix.Kill(-d.cmd.Process.Pid, unix.SIGKILL)
	}
	err := <-exited
	d.joinWorkers()
	return waitErrOrNil(err)
}

func (d *Driver) joinWorkers() {
	<-d.feederDone
	<-d.readerDone
}

func waitErrOrNil(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A killed subprocess exits non-zero by design during shutdown; that
		// is not itself a driver error.
		return nil
	}
	return err
}

func floatsToBytes(f []float32) []byte {
	// Reinterpret the float32 slice as raw little-endian bytes without
	// copying element-by-element; matches the subprocess contract of
	// raw float32 little-endian input (spec.md §4.3).
	return unsafeFloatsToBytes(f)
}
