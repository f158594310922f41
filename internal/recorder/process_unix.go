//go:build !windows

package recorder

import (
	"os/exec"
	"syscall"
)

// setProcGroup detaches the encoder from the terminal's process group so a
// Ctrl+C reaches only screenrec, which then stops the encoder itself.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
