package tracking

// Test-mode query toggle values. Any other value means no explicit toggle.
const (
	ToggleOn  = "1"
	ToggleOff = "0"
)

// ResolveTestCode decides which test-event code, if any, accompanies the
// envelope. Precedence, highest first:
//
//  1. explicit query toggle "0": never attach a code
//  2. explicit query toggle "1": attach the body code, else the env code
//  3. body-supplied code
//  4. environment default, only when test events are globally enabled
//
// An empty return means the event goes to live reporting.
func ResolveTestCode(queryToggle, bodyCode, envCode string, envEnabled bool) string {
	switch queryToggle {
	case ToggleOff:
		return ""
	case ToggleOn:
		if bodyCode != "" {
			return bodyCode
		}
		return envCode
	}

	if bodyCode != "" {
		return bodyCode
	}
	if envEnabled {
		return envCode
	}
	return ""
}
