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
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/stretchr/testify/assert"
)

func TestClampWindow(t *testing.T) {
	assert.Equal(t, 1, clampWindow(0))
	assert.Equal(t, 1, clampWindow(-5))
	assert.Equal(t, 1, clampWindow(1))
	assert.Equal(t, 2, clampWindow(2))
	assert.Equal(t, 3, clampWindow(3))
	assert.Equal(t, 3, clampWindow(10))
	assert.Equal(t, 3, clampWindow(365))
}

func TestSinceDate(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), sinceDate(now, 1))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), sinceDate(now, 3))
	// Over-wide windows clamp rather than growing the search.
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), sinceDate(now, 30))
}

func TestBuildCriteriaMultipleSenders(t *testing.T) {
	since := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	c := buildCriteria([]string{"a@x.com", "b@x.com", "c@x.com"}, "user@example.com", since)

	// Three clauses fold into two nested ORs.
	assert.Len(t, c.Or, 1)
	left, right := c.Or[0][0], c.Or[0][1]
	assert.Len(t, left.Or, 1)
	assert.Equal(t, []string{"c@x.com"}, right.Header["From"])
	assert.Equal(t, []string{"user@example.com"}, right.Header["To"])
	assert.Equal(t, since, right.Since)

	assert.Equal(t, []string{"a@x.com"}, left.Or[0][0].Header["From"])
	assert.Equal(t, []string{"b@x.com"}, left.Or[0][1].Header["From"])
}

func TestBuildCriteriaSingleSender(t *testing.T) {
	since := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	c := buildCriteria([]string{"a@x.com"}, "user@example.com", since)

	assert.Empty(t, c.Or)
	assert.Equal(t, []string{"a@x.com"}, c.Header["From"])
	assert.Equal(t, []string{"user@example.com"}, c.Header["To"])
	assert.Equal(t, since, c.Since)
}

func TestBuildCriteriaNoSenders(t *testing.T) {
	since := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	c := buildCriteria(nil, "user@example.com", since)

	assert.Empty(t, c.Or)
	assert.Empty(t, c.Header["From"])
	assert.Equal(t, []string{"user@example.com"}, c.Header["To"])
}

func TestBuildCriteriaAddressWithoutAt(t *testing.T) {
	since := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	c := buildCriteria([]string{"a@x.com"}, "corp.com", since)

	// A bare key can't be matched against TO, so only FROM remains.
	assert.Equal(t, []string{"a@x.com"}, c.Header["From"])
	assert.Empty(t, c.Header["To"])
}

func readEntity(t *testing.T, raw string) *message.Entity {
	e, err := message.Read(strings.NewReader(raw))
	assert.NoError(t, err)
	return e
}

func htmlTextMessage(html, text string) string {
	var b strings.Builder
	b.WriteString("From: sender@example.com\r\n")
	b.WriteString("To: user@example.com\r\n")
	b.WriteString("Subject: test\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=\"bnd\"\r\n\r\n")
	b.WriteString("--bnd\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(text)
	b.WriteString("\r\n--bnd\r\nContent-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n--bnd--\r\n")
	return b.String()
}

func TestExtractValueCodeFromHTMLCell(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("netflix", "login_code")
	assert.NoError(t, err)

	e := readEntity(t, htmlTextMessage(
		`<table><tr><td style="font-size:32px"> 123456 </td></tr></table>`,
		"Your code is inside the HTML part.",
	))

	value, ok := extractValue(e, re)
	assert.True(t, ok)
	assert.Equal(t, "123456", value)
	assert.False(t, strings.HasPrefix(value, "http"))
}

func TestExtractValueLinkFromPlainTextOnly(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("netflix", "reset")
	assert.NoError(t, err)

	// The HTML part has no link; only the plain-text part carries it.
	e := readEntity(t, htmlTextMessage(
		`<p>Use the button in our app to reset your password.</p>`,
		"Or follow https://www.netflix.com/password?g=abc123XYZ to reset it.",
	))

	value, ok := extractValue(e, re)
	assert.True(t, ok)
	assert.Equal(t, "https://www.netflix.com/password?g=abc123XYZ", value)
	assert.True(t, strings.HasPrefix(value, "http"))
}

func TestExtractValuePrefersHTMLOverText(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("prime", "")
	assert.NoError(t, err)

	e := readEntity(t, htmlTextMessage(
		`<div class="otp">111222</div>`,
		`"otp"> 999888`,
	))

	value, ok := extractValue(e, re)
	assert.True(t, ok)
	assert.Equal(t, "111222", value)
}

func TestExtractValueSinglePartMessage(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("disney", "")
	assert.NoError(t, err)

	raw := "From: a@b.c\r\nTo: d@e.f\r\nSubject: code\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		`<td align="center">987654</td>`

	value, ok := extractValue(readEntity(t, raw), re)
	assert.True(t, ok)
	assert.Equal(t, "987654", value)
}

func TestExtractValueNoMatch(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("disney", "")
	assert.NoError(t, err)

	e := readEntity(t, htmlTextMessage("<p>nothing here</p>", "nothing here either"))

	_, ok := extractValue(e, re)
	assert.False(t, ok)
}

func TestMatchPatternStripsAmpArtifacts(t *testing.T) {
	cat := DefaultCatalogue()
	re, err := cat.Pattern("crunchyroll", "")
	assert.NoError(t, err)

	body := `Please <a class="btn" href="https://links.mail.crunchyroll.com/ls/click?u=abcamp;v=defamp;w=ghi">click</a>`
	value, ok := matchPattern(re, body)
	assert.True(t, ok)
	assert.Equal(t, "https://links.mail.crunchyroll.com/ls/click?u=abcv=defw=ghi", value)
}

func TestMatchesSender(t *testing.T) {
	senders := []string{"info@account.netflix.com"}

	assert.True(t, matchesSender("Netflix <info@account.netflix.com>", senders))
	assert.True(t, matchesSender("INFO@ACCOUNT.NETFLIX.COM", senders))
	assert.False(t, matchesSender("phisher@example.com", senders))

	// No expected senders means anything goes.
	assert.True(t, matchesSender("anyone@anywhere.com", nil))
	assert.True(t, matchesSender("anyone@anywhere.com", []string{}))
}

func TestRecipientMatches(t *testing.T) {
	assert.True(t, recipientMatches("user@example.com", "User <user@example.com>"))
	assert.True(t, recipientMatches("user@example.com", "USER@EXAMPLE.COM"))

	// Sub-addressing on either side still matches the base mailbox.
	assert.True(t, recipientMatches("user@example.com", "user+netflix@example.com"))
	assert.True(t, recipientMatches("user+promo@example.com", "user+promo@example.com"))

	assert.False(t, recipientMatches("user@example.com", "other@example.com"))
	assert.False(t, recipientMatches("user@example.com", "user@another.org"))
	assert.False(t, recipientMatches("nodomain", "user@example.com"))
}

func TestCatalogueUnknownService(t *testing.T) {
	cat := DefaultCatalogue()

	_, err := cat.Senders("myspace", "")
	assert.Error(t, err)

	_, err = cat.Pattern("myspace", "")
	assert.Error(t, err)
}

func TestCatalogueVariantSenders(t *testing.T) {
	cat := DefaultCatalogue()

	// Variant-specific list wins over the service-wide one; an empty
	// list means any sender.
	senders, err := cat.Senders("disney", "mydisney")
	assert.NoError(t, err)
	assert.Empty(t, senders)

	senders, err = cat.Senders("disney", "household")
	assert.NoError(t, err)
	assert.Equal(t, []string{"disneyplus@trx.mail2.disneyplus.com"}, senders)

	senders, err = cat.Senders("netflix", "reset")
	assert.NoError(t, err)
	assert.Equal(t, []string{"info@account.netflix.com"}, senders)
}
