// dotphrase - system-wide dot-phrase text expansion
//
// Type a '.' followed by a short trigger, then a space, and dotphrase erases
// what you typed and types the saved expansion in its place:
//
//	dotphrase add .hi "Hello, world!"
//	dotphrase start        Listen until Esc or Ctrl-C
//	dotphrase              Interactive menu
//
// Keyboard input is read from /dev/input and replayed through a uinput
// virtual keyboard, so the user needs read access to the keyboard devices
// and write access to /dev/uinput (usually membership in the input group).
package main

import (
	"fmt"
	"os"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	a := newApp()
	err := newRootCmd(a).Execute()
	// PersistentPostRun is skipped when a command fails
	a.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
