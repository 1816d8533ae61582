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

package pool

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mailseek/mailseek/imap"
	"github.com/mailseek/mailseek/resolver"
)

func New(cfg Config) *Pool {
	ourCfg := cfg
	if ourCfg.IdleExpiry == 0 {
		ourCfg.IdleExpiry = DefaultIdleExpiry
	}
	if ourCfg.Clock == nil {
		ourCfg.Clock = time.Now
	}

	log.WithField("idle_expiry", ourCfg.IdleExpiry).Debug("pool_created")
	return &Pool{
		cfg:      ourCfg,
		sessions: map[string]*Session{},
	}
}

// Acquire returns a live session for the credential set, reusing a
// pooled one when possible. Network I/O (NOOP probe, connect, logout of
// evicted entries) never happens while the pool lock is held, so a slow
// server can't stall acquires for other keys.
//
// The flow is fast-path/slow-path/commit: claim under lock, connect
// without the lock, then commit under lock again. If another goroutine
// connected the same key first, the redundant connection is logged out
// and the existing one returned, so at most one live session exists per
// key.
func (p *Pool) Acquire(creds resolver.CredentialSet) (*Session, error) {
	key := creds.Key()
	now := p.cfg.Clock()

	var stale []*Session
	p.mu.Lock()
	for k, s := range p.sessions {
		if now.Sub(s.lastUsed) > p.cfg.IdleExpiry {
			delete(p.sessions, k)
			stale = append(stale, s)
		}
	}

	claimed := p.sessions[key]
	if claimed != nil {
		claimed.lastUsed = now
	}
	p.mu.Unlock()

	for _, s := range stale {
		_ = s.client.Logout()
		log.WithField("key", s.key).Debug("pool_expired_session_evicted")
	}

	if claimed != nil {
		err := claimed.client.Noop()
		if err == nil {
			log.WithField("key", key).Trace("pool_session_reused")
			return claimed, nil
		}
		log.WithError(err).WithField("key", key).Warn("pool_probe_failed")
		p.Discard(claimed)
	}

	log.WithFields(log.Fields{"key": key, "addr": creds.Addr()}).Info("pool_connecting")
	cli, err := p.connect(creds)
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", creds.Addr(), err)
	}

	fresh := &Session{key: key, client: cli, lastUsed: p.cfg.Clock()}

	p.mu.Lock()
	if existing := p.sessions[key]; existing != nil {
		existing.lastUsed = p.cfg.Clock()
		p.mu.Unlock()
		// Lost the race; another goroutine registered this key while
		// we were connecting.
		_ = cli.Logout()
		log.WithField("key", key).Debug("pool_duplicate_session_discarded")
		return existing, nil
	}
	p.sessions[key] = fresh
	p.mu.Unlock()

	log.WithField("key", key).Info("pool_session_registered")
	return fresh, nil
}

// Discard removes a session from the pool and logs it out. It returns
// the evicted key, or "" if the session was no longer pooled (already
// discarded, expired, or superseded) in which case nothing happens.
func (p *Pool) Discard(s *Session) string {
	if s == nil {
		return ""
	}

	removed := false
	p.mu.Lock()
	if cur, ok := p.sessions[s.key]; ok && cur == s {
		delete(p.sessions, s.key)
		removed = true
	}
	p.mu.Unlock()

	if !removed {
		return ""
	}

	_ = s.client.Logout()
	log.WithField("key", s.key).Warn("pool_session_discarded")
	return s.key
}

// CloseAll drains the pool and logs every session out. Teardown I/O
// happens after the map is cleared so concurrent Acquire/Discard calls
// aren't blocked on it.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	drained := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		drained = append(drained, s)
	}
	p.sessions = map[string]*Session{}
	p.mu.Unlock()

	for _, s := range drained {
		_ = s.client.Logout()
		log.WithField("key", s.key).Debug("pool_session_closed")
	}
}

// Size reports the number of pooled sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pool) connect(creds resolver.CredentialSet) (imap.Client, error) {
	return p.cfg.Factory.NewClient(&imap.ClientConfig{
		HostPort:  creds.Addr(),
		Auth:      imap.NewNormalAuthenticator(creds.Account, creds.Secret),
		TLS:       p.cfg.TLS,
		TLSConfig: p.cfg.TLSConfig,
		Timeout:   p.cfg.Timeout,
		Debug:     p.cfg.Debug,
	})
}
