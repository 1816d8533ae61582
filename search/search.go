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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/resolver"
	"github.com/mailseek/mailseek/retry"
)

// DefaultFolder is searched when the request names no folder.
const DefaultFolder = "INBOX"

var (
	headerSection = imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	rfc822Section, _ = imap.ParseBodySectionName(imap.FetchRFC822)
)

// Request describes one search for a verification code or action link.
type Request struct {
	// Address is the recipient mailbox, possibly sub-addressed
	// (user+tag@domain).
	Address string
	// Service names the external sender, e.g. "netflix".
	Service string
	// Variant selects a message flavour within the service, e.g.
	// "login_code". Empty means the service's default pattern.
	Variant string
	// Folder to search. Defaults to DefaultFolder.
	Folder string
	// DayWindow is how many days back to search. Clamped to
	// [1, MaxLookbackDays].
	DayWindow int
	// BotID scopes credential resolution.
	BotID string
	// CallerID identifies the requesting user; carried through for
	// follow-up checks, unused by the search itself.
	CallerID string
}

// Result is an extracted value with enough message context to present
// it.
type Result struct {
	Value   string
	IsLink  bool
	Subject string
	Date    string
	From    string
}

// Error wraps any failure of a search run together with its
// correlation id, so logs and the returned error can be matched up.
type Error struct {
	CID string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search %s: %v", e.CID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Searcher runs the search procedure against pooled IMAP sessions.
type Searcher struct {
	Resolver  *resolver.Resolver
	Pool      *pool.Pool
	Runner    *retry.Runner
	Catalogue *Catalogue

	// Clock is overridable for tests.
	Clock func() time.Time
}

func NewSearcher(res *resolver.Resolver, p *pool.Pool, r *retry.Runner) *Searcher {
	return &Searcher{
		Resolver:  res,
		Pool:      p,
		Runner:    r,
		Catalogue: DefaultCatalogue(),
		Clock:     time.Now,
	}
}

// Search looks for the newest message matching the request and extracts
// the service's code or link from it. A nil result with a nil error
// means no matching message was found. Failures come back as *Error.
func (s *Searcher) Search(req Request) (*Result, error) {
	cid := uuid.NewString()[:8]
	start := time.Now()

	logger := log.WithFields(log.Fields{
		"cid":     cid,
		"address": req.Address,
		"service": req.Service,
		"variant": req.Variant,
	})
	logger.Info("search_started")

	senders, err := s.Catalogue.Senders(req.Service, req.Variant)
	if err != nil {
		return nil, &Error{CID: cid, Err: err}
	}

	re, err := s.Catalogue.Pattern(req.Service, req.Variant)
	if err != nil {
		return nil, &Error{CID: cid, Err: err}
	}

	resolution, err := s.Resolver.Resolve(req.Address, req.BotID)
	if err != nil {
		return nil, &Error{CID: cid, Err: err}
	}
	if resolution.Match.Degraded() {
		logger.WithField("match", resolution.Match.String()).
			Warn("search_degraded_credentials")
	}

	creds := resolution.Credentials

	sess, err := s.Pool.Acquire(creds)
	if err != nil {
		return nil, &Error{CID: cid, Err: fmt.Errorf("establishing session: %w", err)}
	}

	folder := req.Folder
	if folder == "" {
		folder = DefaultFolder
	}

	sess, err = s.selectFolder(sess, creds, folder, logger)
	if err != nil {
		return nil, &Error{CID: cid, Err: err}
	}

	since := sinceDate(s.Clock(), req.DayWindow)
	criteria := buildCriteria(senders, req.Address, since)

	ids, live, err := s.Runner.Search(sess, &creds, folder, criteria, cid)
	if err != nil {
		logger.WithError(err).Warn("search_criteria_failed")

		// Some servers choke on the OR-joined header criteria. Retry
		// once with a bare SINCE search on a fresh session; the header
		// filtering below still applies.
		ids, live, err = s.fallbackSearch(creds, folder, since, cid, err)
		if err != nil {
			return nil, &Error{CID: cid, Err: err}
		}
	}
	sess = live

	if len(ids) == 0 {
		logger.Info("search_no_messages")
		return nil, nil
	}

	if len(ids) > MaxMessages {
		ids = ids[len(ids)-MaxMessages:]
	}

	logger.WithField("candidates", len(ids)).Debug("search_inspecting_messages")

	for i := len(ids) - 1; i >= 0; i-- {
		result, next, matched := s.inspect(sess, creds, folder, ids[i], senders, req.Address, re, cid, logger)
		sess = next
		if sess == nil {
			sess, err = s.Pool.Acquire(creds)
			if err != nil {
				return nil, &Error{CID: cid, Err: fmt.Errorf("reacquiring session: %w", err)}
			}
			if _, err := sess.Client().Select(folder, true); err != nil {
				s.Pool.Discard(sess)
				return nil, &Error{CID: cid, Err: fmt.Errorf("reselecting folder %s: %w", folder, err)}
			}
		}
		if matched {
			logger.WithFields(log.Fields{
				"is_link": result.IsLink,
				"elapsed": time.Since(start).String(),
			}).Info("search_completed")
			return result, nil
		}
	}

	logger.WithField("elapsed", time.Since(start).String()).Info("search_no_match")
	return nil, nil
}

// selectFolder opens the folder read-only, retrying once on a fresh
// session when the cached one turns out to be dead.
func (s *Searcher) selectFolder(sess *pool.Session, creds resolver.CredentialSet, folder string, logger *log.Entry) (*pool.Session, error) {
	if _, err := sess.Client().Select(folder, true); err != nil {
		logger.WithError(err).Warn("search_select_failed")
		if !retry.IsDeadConnection(err) {
			return nil, fmt.Errorf("selecting folder %s: %w", folder, err)
		}

		s.Pool.Discard(sess)

		fresh, err := s.Pool.Acquire(creds)
		if err != nil {
			return nil, fmt.Errorf("reconnecting for select: %w", err)
		}
		if _, err := fresh.Client().Select(folder, true); err != nil {
			s.Pool.Discard(fresh)
			return nil, fmt.Errorf("selecting folder %s: %w", folder, err)
		}
		return fresh, nil
	}
	return sess, nil
}

func (s *Searcher) fallbackSearch(creds resolver.CredentialSet, folder string, since time.Time, cid string, original error) ([]uint32, *pool.Session, error) {
	fresh, err := s.Pool.Acquire(creds)
	if err != nil {
		return nil, nil, fmt.Errorf("reconnecting for fallback search: %w", err)
	}

	if _, err := fresh.Client().Select(folder, true); err != nil {
		s.Pool.Discard(fresh)
		return nil, nil, fmt.Errorf("selecting folder for fallback search: %w", err)
	}

	ids, live, err := s.Runner.Search(fresh, &creds, folder, &imap.SearchCriteria{Since: since}, cid)
	if err != nil {
		// Surface the original failure; the fallback failing too adds
		// nothing actionable.
		return nil, nil, original
	}

	return ids, live, nil
}

// inspect decides whether one message satisfies the request. It fetches
// headers first and only pulls the full body once sender and recipient
// line up. Returns the session to keep using (nil when it was lost) and
// whether a value was extracted.
func (s *Searcher) inspect(sess *pool.Session, creds resolver.CredentialSet, folder string, id uint32, senders []string, address string, re *regexp.Regexp, cid string, logger *log.Entry) (*Result, *pool.Session, bool) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	headerItems := []imap.FetchItem{headerSection.FetchItem()}
	msgs, live, err := s.Runner.Fetch(sess, &creds, folder, seqset, headerItems, cid)
	if err != nil {
		logger.WithError(err).WithField("seq", id).Warn("search_header_fetch_failed")
		return nil, nil, false
	}
	sess = live

	if len(msgs) == 0 {
		return nil, sess, false
	}

	body := msgs[0].GetBody(&headerSection)
	if body == nil {
		return nil, sess, false
	}

	hdr, err := message.Read(body)
	if err != nil && !message.IsUnknownCharset(err) {
		logger.WithError(err).WithField("seq", id).Debug("search_header_unparseable")
		return nil, sess, false
	}

	from := hdr.Header.Get("From")
	if !matchesSender(from, senders) {
		return nil, sess, false
	}
	if strings.Contains(address, "@") && !recipientMatches(address, hdr.Header.Get("To")) {
		return nil, sess, false
	}

	msgs, live, err = s.Runner.Fetch(sess, &creds, folder, seqset, []imap.FetchItem{imap.FetchRFC822}, cid)
	if err != nil {
		logger.WithError(err).WithField("seq", id).Warn("search_body_fetch_failed")
		return nil, nil, false
	}
	sess = live

	if len(msgs) == 0 {
		return nil, sess, false
	}

	full := msgs[0].GetBody(rfc822Section)
	if full == nil {
		return nil, sess, false
	}

	entity, err := message.Read(full)
	if err != nil && !message.IsUnknownCharset(err) {
		logger.WithError(err).WithField("seq", id).Debug("search_body_unparseable")
		return nil, sess, false
	}

	value, ok := extractValue(entity, re)
	if !ok {
		return nil, sess, false
	}

	subject, _ := entity.Header.Text("Subject")

	result := &Result{
		Value:   value,
		IsLink:  strings.HasPrefix(value, "http"),
		Subject: subject,
		Date:    entity.Header.Get("Date"),
		From:    entity.Header.Get("From"),
	}
	return result, sess, true
}
