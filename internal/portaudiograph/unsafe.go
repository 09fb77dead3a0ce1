package portaudiograph

import "unsafe"

// bytesPtr returns the base address of b's backing array, or nil for an
// empty slice, for handing to internal/capture.Buffer's raw pointer field.
func bytesPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}
