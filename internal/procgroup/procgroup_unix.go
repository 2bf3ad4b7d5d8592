//go:build unix

// Package procgroup starts helper processes outside the terminal's
// foreground process group, so a Ctrl-C reaches memorec only and memorec
// decides when capture and encoder processes stop.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Detach places cmd in a new process group. Call before Start.
func Detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
