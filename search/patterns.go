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
	"sync"
)

// Catalogue maps (service, variant) to the extraction pattern and the
// sender addresses whose mail may carry it. Patterns are compiled
// case-insensitively with . matching newlines, since codes and links
// are buried in reflowed HTML.
type Catalogue struct {
	patterns map[string]string
	senders  map[string][]string

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

var defaultPatterns = map[string]string{
	"disney":           `<td[^>]*>\s*(\d+)\s*</td>`,
	"disney_household": `15 min[\s\S]*?updated Household[\s\S]*?<td[^>]*>\s*(\d{6})\s*</td>`,
	"disney_mydisney":  `id=(?:3D)?"otp_code"[^>]*>\s*(\d+)\s*<`,

	"netflix_reset":       `https://www\.netflix\.com/password\?g=[^"\s<>]+`,
	"netflix_update_home": `https://www\.netflix\.com/account/update-primary-location\?nftoken=[a-zA-Z0-9%+=&/]+`,
	"netflix_home_code":   `https://www\.netflix\.com/account/travel/verify\?nftoken=[a-zA-Z0-9%+=/]+`,
	"netflix_login_code":  `<td\b[^>]*>\s*([0-9]{6})\s*</td>`,
	"netflix_country":     `_(\w{2})_EVO`,
	"netflix_activation":  `https://www\.netflix\.com/ilum\?code=[a-zA-Z0-9%+=&/]+`,

	"crunchyroll":        `Please\s*<a[^>]+href="(https://links\.mail\.crunchyroll\.com/ls/click\?[^"]+)"`,
	"crunchyroll_device": `click here\s*\(\s*(https?://[^)\s]+(?:\s*\r?\n\s*[^)\s]+)*)\s*\)`,

	"prime": `"otp">\s*(\d{6})`,

	"max":      `https://auth\.hbomax\.com/set-new-password\?passwordResetToken=[a-zA-Z0-9_\-=]+`,
	"max_code": `\s*(\d{6})\s*E`,
}

var defaultSenders = map[string][]string{
	"disney": {
		"disneyplus@trx.mail2.disneyplus.com",
	},
	// My Disney OTPs arrive from rotating addresses, so no sender
	// restriction is applied for this variant.
	"disney_mydisney": {},
	"netflix": {
		"info@account.netflix.com",
	},
	"crunchyroll": {
		"hello@mail.crunchyroll.com",
	},
	"prime": {
		"account-update@primevideo.com",
		"account-update@amazon.com",
	},
	"max": {
		"no-reply@alerts.hbomax.com",
	},
}

// DefaultCatalogue covers the external services the original deployment
// handled. Callers may construct their own for other services.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{
		patterns: defaultPatterns,
		senders:  defaultSenders,
		compiled: map[string]*regexp.Regexp{},
	}
}

func patternKey(service, variant string) string {
	if variant == "" {
		return service
	}
	return service + "_" + variant
}

// Pattern compiles and caches the extraction regexp for a service
// variant.
func (c *Catalogue) Pattern(service, variant string) (*regexp.Regexp, error) {
	key := patternKey(service, variant)

	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.compiled[key]; ok {
		return re, nil
	}

	src, ok := c.patterns[key]
	if !ok {
		return nil, fmt.Errorf("no extraction pattern for service %q", key)
	}

	re, err := regexp.Compile("(?is)" + src)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern for %q: %w", key, err)
	}

	c.compiled[key] = re
	return re, nil
}

// Senders returns the expected sender addresses for a service variant.
// Variant-specific sender lists win over the service-wide one. An empty
// list means mail from any sender is considered.
func (c *Catalogue) Senders(service, variant string) ([]string, error) {
	if variant != "" {
		if senders, ok := c.senders[patternKey(service, variant)]; ok {
			return senders, nil
		}
	}

	senders, ok := c.senders[service]
	if !ok {
		return nil, fmt.Errorf("unrecognised service %q", service)
	}
	return senders, nil
}
