/*
 * MailSeek - Copyright (C) 2026 the MailSeek authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package retry

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Error texts that indicate a dead transport when the error type alone
// doesn't say so. Servers and intermediate layers are sloppy about
// wrapping, so a substring match is the pragmatic heuristic.
var deadConnectionTexts = []string{
	"timed out",
	"i/o timeout",
	"broken pipe",
	"connection reset",
	"eof occurred",
	"unexpected eof",
	"use of closed network connection",
	"connection closed",
	"connection lost",
}

// IsDeadConnection reports whether an error means the underlying IMAP
// transport can no longer complete requests. Dead connections are worth
// a discard+reconnect; anything else is a protocol-level failure and
// must not be retried.
func IsDeadConnection(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, text := range deadConnectionTexts {
		if strings.Contains(msg, text) {
			return true
		}
	}

	return false
}
