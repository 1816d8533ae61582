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

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY
			);

			CREATE TABLE IF NOT EXISTS imap_credentials (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				bot_id      TEXT NOT NULL,
				mailbox_key TEXT NOT NULL,
				account     TEXT NOT NULL,
				secret      TEXT NOT NULL,
				server      TEXT NOT NULL,
				port        INTEGER NOT NULL DEFAULT 993,
				UNIQUE (bot_id, mailbox_key)
			);

			CREATE TABLE IF NOT EXISTS users (
				id                 TEXT NOT NULL,
				bot_id             TEXT NOT NULL,
				deactivated        INTEGER NOT NULL DEFAULT 0,
				deactivated_reason TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (id, bot_id)
			);

			INSERT INTO schema_version (version) VALUES (1);
		`,
	},
}
