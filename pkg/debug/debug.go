// Package debug provides global debug flags for the cloak pipeline
package debug

import "fmt"

// Enabled controls whether per-frame debug output is printed
var Enabled bool

// Mask controls whether the refined mask is shown in its own window
// Use --show-mask to enable it
var Mask bool

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// Sampled prints only on every nth frame so per-frame logs stay readable
func Sampled(frame, every int, format string, args ...interface{}) {
	if !Enabled || every <= 0 || frame%every != 0 {
		return
	}
	fmt.Printf(format, args...)
}
