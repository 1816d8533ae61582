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

package resolver

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultFallbackDomain is the consumer-mail domain used as a last
// resort when an address has no specific mailbox configured.
const DefaultFallbackDomain = "gmail.com"

const DefaultPort = 993

var ErrNotConfigured = errors.New("no mailbox credentials configured")

// CredentialSet is everything needed to authenticate one IMAP session.
// Immutable once resolved; never stored by the pool.
type CredentialSet struct {
	Server  string
	Account string
	Secret  string
	Port    int
}

// Key identifies the pooled session a credential set maps to.
func (c CredentialSet) Key() string {
	return fmt.Sprintf("%s_%s", c.Server, c.Account)
}

func (c CredentialSet) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Server, port)
}

// Row is one stored credential mapping. Key is either a sub-addressing
// prefix ("promo" matches promo+anything@...) or a full domain.
type Row struct {
	Key     string `db:"mailbox_key"`
	Account string `db:"account"`
	Secret  string `db:"secret"`
	Server  string `db:"server"`
	Port    int    `db:"port"`
}

func (r Row) credentials() CredentialSet {
	port := r.Port
	if port == 0 {
		port = DefaultPort
	}
	return CredentialSet{Server: r.Server, Account: r.Account, Secret: r.Secret, Port: port}
}

// Source provides the credential rows for one bot identity, in stored
// order. Implemented by the sqlite store; tests use a slice.
type Source interface {
	CredentialRows(botID string) ([]Row, error)
}

type Match int

const (
	MatchPrefix Match = iota
	MatchDomain
	MatchDegradedFallback
	MatchDegradedFirst
)

func (m Match) String() string {
	switch m {
	case MatchPrefix:
		return "prefix"
	case MatchDomain:
		return "domain"
	case MatchDegradedFallback:
		return "degraded_fallback"
	case MatchDegradedFirst:
		return "degraded_first"
	default:
		return "unknown"
	}
}

// Degraded reports whether the resolution fell through every specific
// rule and only matched by last resort.
func (m Match) Degraded() bool {
	return m == MatchDegradedFallback || m == MatchDegradedFirst
}

type Resolution struct {
	Credentials CredentialSet
	Match       Match
}

type Resolver struct {
	Source         Source
	FallbackDomain string
}

func New(source Source) *Resolver {
	return &Resolver{Source: source, FallbackDomain: DefaultFallbackDomain}
}

func (r *Resolver) fallbackDomain() string {
	if r.FallbackDomain == "" {
		return DefaultFallbackDomain
	}
	return r.FallbackDomain
}

// Resolve picks the credential set for an address. Priority order:
// sub-addressing prefix, exact domain, the fallback domain when the
// address itself lives there, then degraded last resorts. A +tag in the
// local part is taken as intentional routing and wins over any
// domain-based rule.
func (r *Resolver) Resolve(address, botID string) (Resolution, error) {
	rows, err := r.Source.CredentialRows(botID)
	if err != nil {
		return Resolution{}, fmt.Errorf("loading credential rows: %w", err)
	}

	if len(rows) == 0 {
		return Resolution{}, fmt.Errorf("%w for address %q", ErrNotConfigured, address)
	}

	local := address
	domain := ""
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
		domain = address[at+1:]
	}

	hasTag := strings.Contains(local, "+")
	if hasTag {
		prefix := local[:strings.IndexByte(local, '+')]
		for _, row := range rows {
			if row.Key == prefix {
				log.WithFields(log.Fields{"address": address, "prefix": prefix}).Debug("resolver_prefix_match")
				return Resolution{Credentials: row.credentials(), Match: MatchPrefix}, nil
			}
		}
	}

	// An address with no @ is matched against stored keys verbatim.
	if domain == "" {
		for _, row := range rows {
			if row.Key == local {
				return Resolution{Credentials: row.credentials(), Match: MatchDomain}, nil
			}
		}
	}

	for _, row := range rows {
		if row.Key == domain {
			log.WithFields(log.Fields{"address": address, "domain": domain}).Debug("resolver_domain_match")
			return Resolution{Credentials: row.credentials(), Match: MatchDomain}, nil
		}
	}

	// Addresses on the fallback domain were already caught by the exact
	// domain rule above; what's left is mail we have no specific mailbox
	// for, which the fallback inbox may still receive.
	fallback := r.fallbackDomain()
	for _, row := range rows {
		if row.Key == fallback {
			log.WithFields(log.Fields{"address": address, "fallback": fallback}).Warn("resolver_degraded_fallback")
			return Resolution{Credentials: row.credentials(), Match: MatchDegradedFallback}, nil
		}
	}

	log.WithField("address", address).Warn("resolver_degraded_first_available")
	return Resolution{Credentials: rows[0].credentials(), Match: MatchDegradedFirst}, nil
}
