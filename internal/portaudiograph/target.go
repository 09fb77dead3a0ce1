package portaudiograph

import "strconv"

// Target is the resolved form of spec.md §6's --target flag: a sink/source
// node selector that may name a graph node by string or by numeric object
// id. No device-enumeration call exists anywhere in this adapter's
// dependency (github.com/drgolem/go-portaudio exposes no
// GetDevice/ListDevices/DeviceInfo), so a Target can only ever resolve to a
// concrete portaudio.PaStreamParameters.DeviceIndex when it is itself
// numeric; a non-numeric Hint is still passed down to the connection site
// so it is at least logged against the stream that was actually opened.
type Target struct {
	// Hint is the raw --target string, used as the connect hint regardless
	// of whether it parses as numeric.
	Hint string
	// ObjectID is Hint parsed as an integer target-object id; HasObjectID
	// reports whether that parse succeeded.
	ObjectID    int
	HasObjectID bool
}

// ParseTarget parses the --target flag value into a Target.
func ParseTarget(s string) Target {
	t := Target{Hint: s}
	if id, err := strconv.Atoi(s); err == nil {
		t.ObjectID = id
		t.HasObjectID = true
	}
	return t
}

// DeviceIndex resolves the Target to a concrete PortAudio device index: the
// numeric object id if --target was numeric, otherwise fallback (a
// dedicated --capture-device/--output-device flag), since a named target
// cannot be resolved to a device index without an enumeration API this
// binding does not have.
func (t Target) DeviceIndex(fallback int) int {
	if t.HasObjectID {
		return t.ObjectID
	}
	return fallback
}
