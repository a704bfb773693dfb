//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

func hideConsole(_ *exec.Cmd) {}

func newProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
