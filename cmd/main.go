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

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mailseek/mailseek/cmd/creds"
	"github.com/mailseek/mailseek/cmd/search"
	"github.com/mailseek/mailseek/cmd/verify"
)

func Main() {
	app := cli.App{
		Name:  "mailseek",
		Usage: os.Args[0],
		Description: `MailSeek digs verification codes and action links out of a
mailbox over IMAP, keeping a pool of healthy connections and retiring
the ones that go quiet.
`,
	}

	search.RegisterCommand(&app)
	creds.RegisterCommand(&app)
	verify.RegisterCommand(&app)

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
