//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"os/exec"
	"syscall"
)

// setProcessGroup isolates the child into its own process group so that
// [Transport.Terminate] and [Transport.Kill] reach any grandchildren it
// spawns (e.g., a language server launched through a shell wrapper).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate sends SIGTERM to the process group, requesting a graceful exit.
func (t *Transport) Terminate() error {
	return syscall.Kill(-t.Pid(), syscall.SIGTERM)
}

// Kill sends SIGKILL to the process group, forcing immediate termination.
func (t *Transport) Kill() error {
	return syscall.Kill(-t.Pid(), syscall.SIGKILL)
}
