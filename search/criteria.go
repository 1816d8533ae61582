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

package search

import (
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

const (
	// MaxLookbackDays caps the caller-requested window; anything wider
	// makes server-side SEARCH too slow on big mailboxes.
	MaxLookbackDays = 3

	// MaxMessages is how many of the newest matches get inspected.
	MaxMessages = 10
)

func clampWindow(days int) int {
	if days <= 0 {
		return 1
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}

// sinceDate computes the SINCE cutoff at day precision, which is all
// the IMAP SEARCH date grammar supports.
func sinceDate(now time.Time, days int) time.Time {
	t := now.AddDate(0, 0, -clampWindow(days))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// buildCriteria produces one (FROM sender, TO address, SINCE date)
// clause per expected sender, OR-joined. With no senders the criterion
// is TO+SINCE only; an address without @ can't be matched against TO
// and is dropped from the clauses.
func buildCriteria(senders []string, address string, since time.Time) *imap.SearchCriteria {
	hasAt := strings.Contains(address, "@")

	clause := func(from string) *imap.SearchCriteria {
		hdr := textproto.MIMEHeader{}
		if from != "" {
			hdr.Add("From", from)
		}
		if hasAt {
			hdr.Add("To", address)
		}
		return &imap.SearchCriteria{Since: since, Header: hdr}
	}

	if len(senders) == 0 {
		return clause("")
	}

	combined := clause(senders[0])
	for _, from := range senders[1:] {
		combined = &imap.SearchCriteria{
			Or: [][2]*imap.SearchCriteria{{combined, clause(from)}},
		}
	}
	return combined
}
