//go:build !unix && !windows

package process

import "os/exec"

func hideConsole(_ *exec.Cmd) {}

func newProcessGroup(_ *exec.Cmd) {}
