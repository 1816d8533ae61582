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

// Package verifier watches a mailbox for account-tampering notices a
// short while after a code was handed out, and deactivates the user
// who requested it when one shows up.
package verifier

import (
	"fmt"
	"net/textproto"
	"regexp"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/resolver"
	"github.com/mailseek/mailseek/retry"
	"github.com/mailseek/mailseek/search"
)

const (
	// DefaultDelay is how long after the triggering search the check
	// runs; the tampering notice needs time to arrive.
	DefaultDelay = 6 * time.Minute

	folder      = "INBOX"
	maxMessages = 5
)

// Notices about a changed account email, in the shapes the provider
// has been seen to send them, raw quoted-printable included.
var tamperPatternSources = []string{
	`Se cambi(?:=C3=B3|ó) el correo electr(?:=C3=B3|ó)nico(?:=)?`,
	`Correo electr(?:=C3=B3|ó)nico de MyDisney actua(?:=)?`,
	`\* ;">\s*MyDisney unique email address updated\s*</td>`,
	`MyDisney email address has been updated`,
	`email address.*updated.*MyDisney`,
	`Disney account email.*changed`,
	`Account email.*has been.*updated`,
}

var tamperSenders = []string{
	"disneyplus@trx.mail2.disneyplus.com",
	"member.services@disneyaccount.com",
}

// Status is the user-flag surface the verifier needs from the store.
type Status interface {
	IsDeactivated(botID, userID string) (bool, error)
	Deactivate(botID, userID, reason string) error
}

// Event is emitted when tampering is detected.
type Event struct {
	Address  string
	BotID    string
	CallerID string
	Detected time.Time
}

// Verifier runs delayed tampering checks on its own pool, so slow
// verification traffic never competes with interactive searches.
type Verifier struct {
	Pool     *pool.Pool
	Runner   *retry.Runner
	Resolver *resolver.Resolver
	Status   Status

	// Delay before a scheduled check runs. Defaults to DefaultDelay.
	Delay time.Duration

	// Notify, when set, is called for every detection after the user
	// has been deactivated.
	Notify func(Event)

	// Clock and Sleep are overridable for tests.
	Clock func() time.Time
	Sleep func(time.Duration)

	patterns []*regexp.Regexp
	wg       sync.WaitGroup
}

func New(p *pool.Pool, r *retry.Runner, res *resolver.Resolver, status Status) *Verifier {
	patterns := make([]*regexp.Regexp, 0, len(tamperPatternSources))
	for _, src := range tamperPatternSources {
		patterns = append(patterns, regexp.MustCompile("(?is)"+src))
	}

	return &Verifier{
		Pool:     p,
		Runner:   r,
		Resolver: res,
		Status:   status,
		Delay:    DefaultDelay,
		Clock:    time.Now,
		Sleep:    time.Sleep,
		patterns: patterns,
	}
}

// Schedule queues a check for address on behalf of callerID, to run
// after the configured delay.
func (v *Verifier) Schedule(address, botID, callerID string) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		v.Sleep(v.Delay)

		if _, err := v.Check(address, botID, callerID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"address":   address,
				"caller_id": callerID,
			}).Error("verifier_check_failed")
		}
	}()
}

// Wait blocks until every scheduled check has finished.
func (v *Verifier) Wait() {
	v.wg.Wait()
}

// Check synchronously inspects the mailbox for tampering notices sent
// since the check was scheduled. On detection it deactivates the
// caller, fires Notify, and reports true.
func (v *Verifier) Check(address, botID, callerID string) (bool, error) {
	cid := uuid.NewString()[:8]
	logger := log.WithFields(log.Fields{
		"cid":       cid,
		"address":   address,
		"caller_id": callerID,
	})
	logger.Info("verifier_check_started")

	// A user who is already out of the picture needs no mailbox trawl.
	deactivated, err := v.Status.IsDeactivated(botID, callerID)
	if err != nil {
		logger.WithError(err).Warn("verifier_status_unavailable")
	} else if deactivated {
		logger.Info("verifier_user_inactive")
		return false, nil
	}

	resolution, err := v.Resolver.Resolve(address, botID)
	if err != nil {
		return false, fmt.Errorf("resolving credentials: %w", err)
	}
	creds := resolution.Credentials

	sess, err := v.Pool.Acquire(creds)
	if err != nil {
		return false, fmt.Errorf("establishing session: %w", err)
	}

	now := v.Clock()
	since := searchWindowStart(now)

	for _, sender := range tamperSenders {
		if sess == nil {
			if sess, err = v.Pool.Acquire(creds); err != nil {
				return false, fmt.Errorf("reacquiring session: %w", err)
			}
		}

		if _, err := sess.Client().Select(folder, true); err != nil {
			logger.WithError(err).WithField("sender", sender).Warn("verifier_select_failed")
			if retry.IsDeadConnection(err) {
				v.Pool.Discard(sess)
				sess = nil
			}
			continue
		}

		hdr := textproto.MIMEHeader{}
		hdr.Add("From", sender)
		hdr.Add("To", address)
		criteria := &imap.SearchCriteria{Since: since, Header: hdr}

		ids, live, err := v.Runner.Search(sess, &creds, folder, criteria, cid)
		if err != nil {
			logger.WithError(err).WithField("sender", sender).Warn("verifier_search_failed")
			sess = nil
			continue
		}
		sess = live

		if len(ids) > maxMessages {
			ids = ids[len(ids)-maxMessages:]
		}

		for _, id := range ids {
			if sess == nil {
				if sess, err = v.Pool.Acquire(creds); err != nil {
					return false, fmt.Errorf("reacquiring session: %w", err)
				}
				if _, err := sess.Client().Select(folder, true); err != nil {
					v.Pool.Discard(sess)
					return false, fmt.Errorf("reselecting %s: %w", folder, err)
				}
			}

			detected, live, err := v.inspect(sess, creds, id, cid)
			if err != nil {
				logger.WithError(err).WithField("seq", id).Warn("verifier_fetch_failed")
			}
			sess = live
			if !detected {
				continue
			}

			logger.Warn("verifier_tampering_detected")

			reason := fmt.Sprintf(
				"account email change detected for %s at %s",
				address, now.Format("2006-01-02 15:04:05"),
			)
			if err := v.Status.Deactivate(botID, callerID, reason); err != nil {
				logger.WithError(err).Error("verifier_deactivate_failed")
			}

			if v.Notify != nil {
				v.Notify(Event{
					Address:  address,
					BotID:    botID,
					CallerID: callerID,
					Detected: now,
				})
			}
			return true, nil
		}
	}

	logger.Info("verifier_no_tampering")
	return false, nil
}

// searchWindowStart returns the SINCE cutoff for a check running at
// now. IMAP SINCE compares whole dates and servers differ on whether
// the boundary day itself is included, so the window starts at
// yesterday's midnight to keep today's mail in scope everywhere.
func searchWindowStart(now time.Time) time.Time {
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, y.Location())
}

var rfc822Section, _ = imap.ParseBodySectionName(imap.FetchRFC822)

func (v *Verifier) inspect(sess *pool.Session, creds resolver.CredentialSet, id uint32, cid string) (bool, *pool.Session, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	msgs, live, err := v.Runner.Fetch(sess, &creds, folder, seqset, []imap.FetchItem{imap.FetchRFC822}, cid)
	if err != nil {
		return false, nil, err
	}

	if len(msgs) == 0 {
		return false, live, nil
	}

	body := msgs[0].GetBody(rfc822Section)
	if body == nil {
		return false, live, nil
	}

	entity, err := message.Read(body)
	if err != nil && !message.IsUnknownCharset(err) {
		return false, live, nil
	}

	subject, _ := entity.Header.Text("Subject")

	for _, content := range append(search.Contents(entity), subject) {
		for _, re := range v.patterns {
			if re.MatchString(content) {
				return true, live, nil
			}
		}
	}
	return false, live, nil
}
