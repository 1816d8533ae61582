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

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mailseek/mailseek/resolver"
)

// Store holds the credential rows the resolver queries and the user
// status flags the background verifier checks.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CredentialRows returns all credential rows for a bot identity in
// stored order. Satisfies resolver.Source.
func (s *Store) CredentialRows(botID string) ([]resolver.Row, error) {
	var rows []resolver.Row
	err := s.db.Select(&rows, `
		SELECT mailbox_key, account, secret, server, port
		FROM imap_credentials
		WHERE bot_id = ?
		ORDER BY id`,
		botID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying credential rows for bot %s: %w", botID, err)
	}
	return rows, nil
}

// UpsertCredential inserts or replaces the credential row for
// (botID, row.Key).
func (s *Store) UpsertCredential(botID string, row resolver.Row) error {
	port := row.Port
	if port == 0 {
		port = resolver.DefaultPort
	}

	_, err := s.db.Exec(`
		INSERT INTO imap_credentials (bot_id, mailbox_key, account, secret, server, port)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (bot_id, mailbox_key) DO UPDATE SET
			account = excluded.account,
			secret  = excluded.secret,
			server  = excluded.server,
			port    = excluded.port`,
		botID, row.Key, row.Account, row.Secret, row.Server, port,
	)
	if err != nil {
		return fmt.Errorf("upserting credential %s/%s: %w", botID, row.Key, err)
	}
	return nil
}

// DeleteCredential removes the credential row for (botID, key).
func (s *Store) DeleteCredential(botID, key string) error {
	_, err := s.db.Exec(
		"DELETE FROM imap_credentials WHERE bot_id = ? AND mailbox_key = ?",
		botID, key,
	)
	if err != nil {
		return fmt.Errorf("deleting credential %s/%s: %w", botID, key, err)
	}
	return nil
}

// IsDeactivated reports whether a user is flagged as deactivated.
// Unknown users are treated as active.
func (s *Store) IsDeactivated(botID, userID string) (bool, error) {
	var deactivated int
	err := s.db.Get(
		&deactivated,
		"SELECT deactivated FROM users WHERE id = ? AND bot_id = ?",
		userID, botID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading user status %s/%s: %w", botID, userID, err)
	}
	return deactivated != 0, nil
}

// Deactivate flags a user, recording why. Creates the row if missing.
func (s *Store) Deactivate(botID, userID, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, bot_id, deactivated, deactivated_reason)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (id, bot_id) DO UPDATE SET
			deactivated        = 1,
			deactivated_reason = excluded.deactivated_reason`,
		userID, botID, reason,
	)
	if err != nil {
		return fmt.Errorf("deactivating user %s/%s: %w", botID, userID, err)
	}
	return nil
}
