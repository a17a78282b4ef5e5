package debuglog

import "testing"

func TestPrintf(t *testing.T) {
	// Must be callable in every build; output only appears with -tags debug.
	Printf("test", "enabled=%v n=%d", Enabled, 3)
}
