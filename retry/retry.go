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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mailseek/mailseek/imap"
	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/resolver"
)

const (
	DefaultMaxRetries = 2

	backoffStep = 500 * time.Millisecond
)

// ErrNoCredentials means a dead connection was hit but the caller gave
// no credentials, so there is nothing to reconnect with.
var ErrNoCredentials = errors.New("dead connection and no credentials to reconnect with")

// ExhaustedError is returned once every reconnect-retry failed. Err is
// the last underlying error, Key the discarded pool key.
type ExhaustedError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("imap operation failed after %d attempt(s), discarded key %q: %v", e.Attempts, e.Key, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Runner wraps single IMAP calls with dead-connection detection and a
// bounded discard+reconnect+retry cycle. Every method returns the live
// session alongside the result; a retry may have silently replaced the
// one passed in, and callers must use the returned session for any
// follow-up call.
type Runner struct {
	Pool       *pool.Pool
	MaxRetries int

	// Sleep is overridable so retry tests don't wait out the backoff.
	Sleep func(time.Duration)
}

func NewRunner(p *pool.Pool) *Runner {
	return &Runner{
		Pool:       p,
		MaxRetries: DefaultMaxRetries,
		Sleep:      time.Sleep,
	}
}

// Search runs an IMAP SEARCH, reconnecting on a dead session. folder is
// re-selected read-only on any replacement session, since a fresh login
// has no mailbox open.
func (r *Runner) Search(sess *pool.Session, creds *resolver.CredentialSet, folder string, criteria *imap.SearchCriteria, cid string) ([]uint32, *pool.Session, error) {
	var ids []uint32
	live, err := r.run(sess, creds, "search", folder, cid, func(c imap.Client) error {
		var serr error
		ids, serr = c.Search(criteria)
		return serr
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, live, nil
}

// Fetch runs an IMAP FETCH for a sequence set and collects the
// resulting messages, reconnecting on a dead session.
func (r *Runner) Fetch(sess *pool.Session, creds *resolver.CredentialSet, folder string, seqset *imap.SeqSet, items []imap.FetchItem, cid string) ([]*imap.Message, *pool.Session, error) {
	var msgs []*imap.Message
	live, err := r.run(sess, creds, "fetch", folder, cid, func(c imap.Client) error {
		ch := make(chan *imap.Message, 16)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seqset, items, ch)
		}()

		var got []*imap.Message
		for m := range ch {
			got = append(got, m)
		}
		if ferr := <-done; ferr != nil {
			return ferr
		}
		msgs = got
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return msgs, live, nil
}

func (r *Runner) run(sess *pool.Session, creds *resolver.CredentialSet, op, folder, cid string, fn func(imap.Client) error) (*pool.Session, error) {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	current := sess
	for attempt := 0; ; attempt++ {
		err := fn(current.Client())
		if err == nil {
			return current, nil
		}

		if !IsDeadConnection(err) {
			return nil, fmt.Errorf("imap %s failed after %d attempt(s): %w", op, attempt+1, err)
		}

		if creds == nil {
			return nil, fmt.Errorf("%w (op=%s, key=%s)", ErrNoCredentials, op, current.Key())
		}

		key := r.Pool.Discard(current)
		if key == "" {
			key = current.Key()
		}

		if attempt >= maxRetries {
			return nil, &ExhaustedError{Key: key, Attempts: attempt + 1, Err: err}
		}

		log.WithError(err).WithFields(log.Fields{
			"cid":     cid,
			"op":      op,
			"key":     key,
			"attempt": attempt + 1,
		}).Warn("retry_dead_connection")

		sleep(backoffStep * time.Duration(attempt+1))

		replacement, aerr := r.Pool.Acquire(*creds)
		if aerr != nil {
			return nil, fmt.Errorf("reacquiring session for %s: %w", op, aerr)
		}

		if folder != "" {
			if _, serr := replacement.Client().Select(folder, true); serr != nil {
				r.Pool.Discard(replacement)
				return nil, fmt.Errorf("reselecting %s after reconnect: %w", folder, serr)
			}
		}

		log.WithFields(log.Fields{"cid": cid, "op": op, "key": key}).Info("retry_reconnected")
		current = replacement
	}
}
