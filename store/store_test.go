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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailseek/mailseek/resolver"
)

func openTestStore(t *testing.T) (*Store, string) {
	dbPath := filepath.Join(t.TempDir(), "mailseek.db")
	s, err := Open(dbPath)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func TestCredentialRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "a@corp.com", Secret: "s1", Server: "imap.corp.com", Port: 993,
	}))
	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "promo", Account: "promo@corp.com", Secret: "s2", Server: "imap.corp.com", Port: 143,
	}))

	rows, err := s.CredentialRows("bot1")
	assert.NoError(t, err)
	assert.Len(t, rows, 2)

	// Insertion order is preserved; the resolver depends on it.
	assert.Equal(t, "corp.com", rows[0].Key)
	assert.Equal(t, "promo", rows[1].Key)
	assert.Equal(t, 143, rows[1].Port)
}

func TestCredentialRowsScopedByBot(t *testing.T) {
	s, _ := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "a@corp.com", Secret: "s1", Server: "imap.corp.com",
	}))

	rows, err := s.CredentialRows("bot2")
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s, _ := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "old@corp.com", Secret: "old", Server: "imap.corp.com",
	}))
	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "new@corp.com", Secret: "new", Server: "imap2.corp.com", Port: 993,
	}))

	rows, err := s.CredentialRows("bot1")
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "new@corp.com", rows[0].Account)
	assert.Equal(t, "imap2.corp.com", rows[0].Server)
}

func TestUpsertDefaultsPort(t *testing.T) {
	s, _ := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "a@corp.com", Secret: "s", Server: "imap.corp.com",
	}))

	rows, err := s.CredentialRows("bot1")
	assert.NoError(t, err)
	assert.Equal(t, resolver.DefaultPort, rows[0].Port)
}

func TestDeleteCredential(t *testing.T) {
	s, _ := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "a@corp.com", Secret: "s", Server: "imap.corp.com",
	}))
	assert.NoError(t, s.DeleteCredential("bot1", "corp.com"))

	rows, err := s.CredentialRows("bot1")
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUserStatus(t *testing.T) {
	s, _ := openTestStore(t)

	// Unknown users count as active.
	deactivated, err := s.IsDeactivated("bot1", "user1")
	assert.NoError(t, err)
	assert.False(t, deactivated)

	assert.NoError(t, s.Deactivate("bot1", "user1", "tampering detected"))

	deactivated, err = s.IsDeactivated("bot1", "user1")
	assert.NoError(t, err)
	assert.True(t, deactivated)

	// The same user id under a different bot is untouched.
	deactivated, err = s.IsDeactivated("bot2", "user1")
	assert.NoError(t, err)
	assert.False(t, deactivated)
}

func TestReopenKeepsData(t *testing.T) {
	s, dbPath := openTestStore(t)

	assert.NoError(t, s.UpsertCredential("bot1", resolver.Row{
		Key: "corp.com", Account: "a@corp.com", Secret: "s", Server: "imap.corp.com",
	}))
	assert.NoError(t, s.Close())

	// Reopening runs migrations again; they must be no-ops.
	s2, err := Open(dbPath)
	assert.NoError(t, err)
	defer s2.Close()

	rows, err := s2.CredentialRows("bot1")
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "a@corp.com", rows[0].Account)
}
