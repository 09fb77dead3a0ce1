// Package iec61937 names the wire-level constants of the IEC 61937 burst
// framing the encoder subprocess emits (spec.md §3, §8 P2/P3) and provides
// a scanning helper for checking them.
package iec61937

// Preamble is the four-byte Pa/Pb burst-preamble, little-endian, that opens
// every IEC 61937 burst (spec.md §3, GLOSSARY).
var Preamble = [4]byte{0x72, 0xF8, 0x1F, 0x4E}

// BurstSpacing is the fixed byte distance between consecutive AC-3 burst
// preambles in a steady-state 48 kHz stream (spec.md §3, §8 P3).
const BurstSpacing = 6144

// StereoFrameBytes is the size of one 16-bit stereo sample pair, the
// indivisible alignment unit for every buffer this system produces or
// consumes (spec.md §3 invariant, §8 P1).
const StereoFrameBytes = 4

// ScanPreambles returns the byte offsets of every occurrence of Preamble in
// data. Used by tests (P2/P3); never on an RT path.
func ScanPreambles(data []byte) []int {
	var offsets []int
	if len(data) < len(Preamble) {
		return offsets
	}
	for i := 0; i <= len(data)-len(Preamble); i++ {
		if data[i] == Preamble[0] && data[i+1] == Preamble[1] &&
			data[i+2] == Preamble[2] && data[i+3] == Preamble[3] {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// UniformSpacing reports whether every consecutive pair of offsets differs
// by exactly BurstSpacing. An empty or single-element slice is trivially
// uniform.
func UniformSpacing(offsets []int) bool {
	for i := 1; i < len(offsets); i++ {
		if offsets[i]-offsets[i-1] != BurstSpacing {
			return false
		}
	}
	return true
}
