// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

// DocumentLifecycleState tracks, per downstream connection and per virtual
// document URI, whether that connection has seen a didOpen for the
// document. It gates outbound notifications only (never requests): a
// didChange/didSave/didClose for a document the downstream hasn't been
// told is open would violate didOpen precedence (I4/P3 in SPEC_FULL.md).
type DocumentLifecycleState int

const (
	DocClosed DocumentLifecycleState = iota
	DocOpened
)

func (s DocumentLifecycleState) String() string {
	if s == DocOpened {
		return "opened"
	}
	return "closed"
}
