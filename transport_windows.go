//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "os/exec"

// setProcessGroup is a no-op on Windows: [os.Process.Kill] already reaches
// the whole process tree via TerminateProcess when paired with a job
// object, which Go's exec.Cmd does not expose without extra syscalls; the
// bridge relies on [Transport.Kill] alone on this platform.
func setProcessGroup(cmd *exec.Cmd) {
	// nothing
}

// Terminate is a best-effort graceful exit request. Windows has no SIGTERM
// equivalent reachable from [os/exec], so this forcibly kills the process;
// callers should expect [Transport.Terminate] and [Transport.Kill] to
// behave identically on this platform.
func (t *Transport) Terminate() error {
	return t.cmd.Process.Kill()
}

// Kill forcibly terminates the process.
func (t *Transport) Kill() error {
	return t.cmd.Process.Kill()
}
