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

// Package service wires the resolver, pools, searcher and verifier into
// one façade.
package service

import (
	"crypto/tls"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mailseek/mailseek/imap"
	"github.com/mailseek/mailseek/imap/client"
	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/resolver"
	"github.com/mailseek/mailseek/retry"
	"github.com/mailseek/mailseek/search"
	"github.com/mailseek/mailseek/verifier"
)

// VerifierIdleExpiry keeps verifier sessions around longer than search
// ones; checks are sparse and reconnecting for each would be wasteful.
const VerifierIdleExpiry = 5 * time.Minute

// ErrCallerDeactivated rejects searches from users already flagged by a
// previous tampering detection.
var ErrCallerDeactivated = errors.New("caller is deactivated")

// monitoredServices get a delayed tampering check after every
// successful search.
var monitoredServices = map[string]bool{
	"disney": true,
}

type Config struct {
	// Factory creates IMAP clients. Defaults to the TLS dialler.
	Factory imap.ClientFactory

	// Source provides credential rows; usually the sqlite store.
	Source resolver.Source

	// Status reads and writes user deactivation flags; usually the
	// sqlite store. Optional — without it no caller gating or
	// tampering verification happens.
	Status verifier.Status

	TLS        bool
	TLSConfig  *tls.Config
	Timeout    time.Duration
	Debug      bool
	IdleExpiry time.Duration

	// VerifyDelay overrides how long after a search the tampering
	// check runs.
	VerifyDelay time.Duration

	// Notify receives tampering events.
	Notify func(verifier.Event)
}

type Service struct {
	status verifier.Status

	resolver   *resolver.Resolver
	searchPool *pool.Pool
	verifyPool *pool.Pool
	searcher   *search.Searcher
	verifier   *verifier.Verifier
}

func New(cfg Config) *Service {
	if cfg.Factory == nil {
		cfg.Factory = &client.Factory{}
	}

	res := resolver.New(cfg.Source)

	searchPool := pool.New(pool.Config{
		Factory:    cfg.Factory,
		IdleExpiry: cfg.IdleExpiry,
		Timeout:    cfg.Timeout,
		TLS:        cfg.TLS,
		TLSConfig:  cfg.TLSConfig,
		Debug:      cfg.Debug,
	})

	s := &Service{
		status:     cfg.Status,
		resolver:   res,
		searchPool: searchPool,
		searcher:   search.NewSearcher(res, searchPool, retry.NewRunner(searchPool)),
	}

	if cfg.Status != nil {
		verifyPool := pool.New(pool.Config{
			Factory:    cfg.Factory,
			IdleExpiry: VerifierIdleExpiry,
			Timeout:    cfg.Timeout,
			TLS:        cfg.TLS,
			TLSConfig:  cfg.TLSConfig,
			Debug:      cfg.Debug,
		})

		v := verifier.New(verifyPool, retry.NewRunner(verifyPool), res, cfg.Status)
		if cfg.VerifyDelay > 0 {
			v.Delay = cfg.VerifyDelay
		}
		v.Notify = cfg.Notify

		s.verifyPool = verifyPool
		s.verifier = v
	}

	return s
}

// Search runs one search request. Deactivated callers are refused
// before any mailbox traffic. A successful hit on a monitored service
// schedules a delayed tampering check for the same address and caller.
func (s *Service) Search(req search.Request) (*search.Result, error) {
	if s.status != nil && req.CallerID != "" {
		deactivated, err := s.status.IsDeactivated(req.BotID, req.CallerID)
		if err != nil {
			log.WithError(err).WithField("caller_id", req.CallerID).
				Warn("service_status_unavailable")
		} else if deactivated {
			return nil, ErrCallerDeactivated
		}
	}

	result, err := s.searcher.Search(req)
	if err != nil {
		return nil, err
	}

	if result != nil && s.verifier != nil && req.CallerID != "" && monitoredServices[req.Service] {
		s.verifier.Schedule(req.Address, req.BotID, req.CallerID)
	}

	return result, nil
}

// Verifier exposes the tampering verifier, mainly so callers can wait
// out scheduled checks during shutdown.
func (s *Service) Verifier() *verifier.Verifier {
	return s.verifier
}

// Close logs out every pooled session. Scheduled verifier checks that
// haven't run yet are abandoned.
func (s *Service) Close() {
	s.searchPool.CloseAll()
	if s.verifyPool != nil {
		s.verifyPool.CloseAll()
	}
}
