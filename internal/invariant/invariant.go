// Package invariant provides assertions for internal state-machine
// invariants.
//
// Checks are compiled in only when building with -tags tilestreamdebug.
// In release builds Check is a no-op and the condition is the only cost.
package invariant

import "fmt"

// Violation is the panic value raised by a failed check.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string {
	return "invariant violated: " + v.Msg
}

// Enabled reports whether checks are compiled in.
func Enabled() bool {
	return enabled
}

// Check panics with a *Violation when cond is false and checks are enabled.
func Check(cond bool, format string, args ...any) {
	if !enabled || cond {
		return
	}
	panic(&Violation{Msg: fmt.Sprintf(format, args...)})
}
