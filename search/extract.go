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
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

func matchesSender(fromHeader string, senders []string) bool {
	if len(senders) == 0 {
		return true
	}

	from := strings.ToLower(fromHeader)
	for _, s := range senders {
		if s == "" {
			return true
		}
		if strings.Contains(from, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// recipientMatches checks whether the To header covers the requested
// address, tolerating sub-addressing on either side: user@d matches
// user+tag@d and vice versa, on the base local-part + domain.
func recipientMatches(address, toHeader string) bool {
	addr := strings.ToLower(strings.TrimSpace(address))
	to := strings.ToLower(toHeader)

	if strings.Contains(to, addr) {
		return true
	}

	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return false
	}

	local, domain := addr[:at], addr[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	pat := regexp.MustCompile(regexp.QuoteMeta(local) + `(\+[^@\s>]*)?@` + regexp.QuoteMeta(domain))
	return pat.MatchString(to)
}

type bodyParts struct {
	html []string
	text []string
}

// collectParts flattens a (possibly nested) multipart message into its
// text/html and text/plain leaves. Transfer encodings are already
// undone by go-message.
func collectParts(e *message.Entity, parts *bodyParts) {
	if mr := e.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			collectParts(p, parts)
		}
		return
	}

	mediaType, _, err := e.Header.ContentType()
	if err != nil {
		return
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return
	}

	switch mediaType {
	case "text/html":
		parts.html = append(parts.html, string(body))
	case "text/plain", "":
		parts.text = append(parts.text, string(body))
	}
}

func matchPattern(re *regexp.Regexp, body string) (string, bool) {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}

	value := m[0]
	if re.NumSubexp() > 0 {
		value = m[1]
	}

	// Quoted-printable HTML tends to leave amp; artifacts inside
	// extracted URLs.
	return strings.ReplaceAll(value, "amp;", ""), true
}

// Contents returns every textual body of a message, HTML parts first.
func Contents(e *message.Entity) []string {
	parts := &bodyParts{}
	collectParts(e, parts)
	return append(parts.html, parts.text...)
}

// extractValue searches the HTML parts first, where codes and links
// almost always live, then falls back to the plain-text parts.
func extractValue(e *message.Entity, re *regexp.Regexp) (string, bool) {
	parts := &bodyParts{}
	collectParts(e, parts)

	for _, body := range parts.html {
		if value, ok := matchPattern(re, body); ok {
			return value, true
		}
	}

	for _, body := range parts.text {
		if value, ok := matchPattern(re, body); ok {
			return value, true
		}
	}

	return "", false
}
