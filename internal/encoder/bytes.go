package encoder

import "unsafe"

// unsafeFloatsToBytes reinterprets f as its little-endian byte
// representation without per-element copying. Valid on the little-endian
// architectures this daemon targets (amd64, arm64), matching the
// subprocess's raw float32 little-endian input contract (spec.md §4.3).
func unsafeFloatsToBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*bytesPerSample)
}
