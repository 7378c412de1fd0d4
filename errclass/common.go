//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass classifies errors observed on a downstream server's
// stdio pipes into short, platform-independent labels suitable for
// structured logging.
package errclass

import (
	"errors"
	"io"
	"os"
)

// Classification labels. These are deliberately short and stable so that
// logs can be grepped/aggregated across platforms.
const (
	ECONNRESET   = "ECONNRESET"
	ECONNABORTED = "ECONNABORTED"
	ECONNREFUSED = "ECONNREFUSED"
	ETIMEDOUT    = "ETIMEDOUT"
	EINTR        = "EINTR"
	ENOTCONN     = "ENOTCONN"
	EPIPE        = "EPIPE"
	ECLOSED      = "ECLOSED"
	EEOF         = "EEOF"
	EGENERIC     = "EGENERIC"
)

// Classify maps err to one of the labels above. It returns the empty
// string for a nil error.
//
// Classification is platform-aware: the unix and windows variants of this
// file contribute the underlying errno/winerror values, this file only
// decides precedence and the stdlib-level cases (closed pipe, EOF,
// deadline exceeded) that are the same on every platform.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ETIMEDOUT
	case errors.Is(err, os.ErrClosed):
		return ECLOSED
	case errors.Is(err, io.EOF):
		return EEOF
	case errors.Is(err, errEPIPE):
		return EPIPE
	case errors.Is(err, errECONNRESET):
		return ECONNRESET
	case errors.Is(err, errECONNABORTED):
		return ECONNABORTED
	case errors.Is(err, errECONNREFUSED):
		return ECONNREFUSED
	case errors.Is(err, errETIMEDOUT):
		return ETIMEDOUT
	case errors.Is(err, errEINTR):
		return EINTR
	case errors.Is(err, errENOTCONN):
		return ENOTCONN
	default:
		return EGENERIC
	}
}
