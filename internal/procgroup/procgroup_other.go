//go:build !unix

// Package procgroup starts helper processes outside the terminal's
// foreground process group where the platform supports it.
package procgroup

import "os/exec"

// Detach is a no-op on this platform
func Detach(cmd *exec.Cmd) {}
