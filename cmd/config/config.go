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

package config

import (
	"crypto/tls"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/service"
	"github.com/mailseek/mailseek/store"
	"github.com/mailseek/mailseek/verifier"
)

func DefaultConfig() CliConfig {
	return CliConfig{
		Database:    "mailseek.db",
		LogLevel:    "info",
		LogFormat:   "text",
		Timeout:     30 * time.Second,
		IdleExpiry:  pool.DefaultIdleExpiry,
		VerifyDelay: verifier.DefaultDelay,
	}
}

func (cfg *CliConfig) Parameters() []cli.Flag {
	def := DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "database",
			Usage:       "path to the sqlite database",
			EnvVars:     []string{"MAILSEEK_DATABASE"},
			Destination: &cfg.Database,
			Value:       def.Database,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"MAILSEEK_LOG_LEVEL"},
			Destination: &cfg.LogLevel,
			Value:       def.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"MAILSEEK_LOG_FORMAT"},
			Destination: &cfg.LogFormat,
			Value:       def.LogFormat,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "IMAP command timeout",
			EnvVars:     []string{"MAILSEEK_TIMEOUT"},
			Destination: &cfg.Timeout,
			Value:       def.Timeout,
		},
		&cli.DurationFlag{
			Name:        "idle-expiry",
			Usage:       "how long an idle pooled session stays usable",
			EnvVars:     []string{"MAILSEEK_IDLE_EXPIRY"},
			Destination: &cfg.IdleExpiry,
			Value:       def.IdleExpiry,
		},
		&cli.DurationFlag{
			Name:        "verify-delay",
			Usage:       "delay before the tampering check runs",
			EnvVars:     []string{"MAILSEEK_VERIFY_DELAY"},
			Destination: &cfg.VerifyDelay,
			Value:       def.VerifyDelay,
		},
		&cli.BoolFlag{
			Name:        "tls-skip-verify",
			Usage:       "skip TLS certificate verification",
			EnvVars:     []string{"MAILSEEK_TLS_SKIP_VERIFY"},
			Destination: &cfg.TLSSkipVerify,
			Value:       def.TLSSkipVerify,
		},
		&cli.BoolFlag{
			Name:        "imap-debug",
			Usage:       "dump the IMAP protocol exchange. for debugging only",
			EnvVars:     []string{"MAILSEEK_IMAP_DEBUG"},
			Destination: &cfg.Debug,
			Value:       def.Debug,
			Hidden:      true,
		},
	}
}

// ConfigureLogging applies the log-level and log-format flags.
func (cfg *CliConfig) ConfigureLogging() {
	if logLevel, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(logLevel)
	}

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// BuildServiceConfig assembles the service configuration around an
// opened store.
func (cfg *CliConfig) BuildServiceConfig(st *store.Store) service.Config {
	def := DefaultConfig()

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}

	var tlsConfig *tls.Config
	if cfg.TLSSkipVerify {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return service.Config{
		Source:      st,
		Status:      st,
		TLS:         true,
		TLSConfig:   tlsConfig,
		Timeout:     timeout,
		Debug:       cfg.Debug,
		IdleExpiry:  cfg.IdleExpiry,
		VerifyDelay: cfg.VerifyDelay,
	}
}
