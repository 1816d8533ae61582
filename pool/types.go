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
	"crypto/tls"
	"sync"
	"time"

	"github.com/mailseek/mailseek/imap"
)

const (
	// DefaultIdleExpiry matches the primary search pool; the verifier
	// pool is created with a longer window.
	DefaultIdleExpiry = 40 * time.Second
)

// Session is one live, authenticated IMAP connection owned by the pool.
// It is handed out by Acquire and replaced (not mutated) on reconnect;
// Discard matches on pointer identity, which is what makes double
// discards harmless.
type Session struct {
	key      string
	client   imap.Client
	lastUsed time.Time // guarded by the pool mutex
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) Client() imap.Client {
	return s.client
}

type Config struct {
	Factory    imap.ClientFactory
	IdleExpiry time.Duration
	Timeout    time.Duration
	TLS        bool
	TLSConfig  *tls.Config
	Debug      bool

	// Clock is overridable for expiry tests; defaults to time.Now.
	Clock func() time.Time
}

type Pool struct {
	cfg      Config
	mu       sync.Mutex
	sessions map[string]*Session
}
