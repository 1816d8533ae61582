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

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mailseek/mailseek/cmd/config"
	mailsearch "github.com/mailseek/mailseek/search"
	"github.com/mailseek/mailseek/service"
	"github.com/mailseek/mailseek/store"
)

type options struct {
	Address    string
	Service    string
	Variant    string
	Folder     string
	Days       int
	BotID      string
	CallerID   string
	WaitVerify bool
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.CliConfig{}
	opts := &options{}

	flags := append(cfg.Parameters(),
		&cli.StringFlag{
			Name:        "address",
			Usage:       "recipient address to search for",
			Required:    true,
			Destination: &opts.Address,
		},
		&cli.StringFlag{
			Name:        "service",
			Usage:       "service whose mail to look at (netflix, disney, ...)",
			Required:    true,
			Destination: &opts.Service,
		},
		&cli.StringFlag{
			Name:        "variant",
			Usage:       "message variant within the service (reset, login_code, ...)",
			Destination: &opts.Variant,
		},
		&cli.StringFlag{
			Name:        "folder",
			Usage:       "mailbox folder to search",
			Value:       mailsearch.DefaultFolder,
			Destination: &opts.Folder,
		},
		&cli.IntFlag{
			Name:        "days",
			Usage:       "how many days back to search",
			Value:       1,
			Destination: &opts.Days,
		},
		&cli.StringFlag{
			Name:        "bot-id",
			Usage:       "bot identity scoping the credentials",
			EnvVars:     []string{"MAILSEEK_BOT_ID"},
			Value:       "default",
			Destination: &opts.BotID,
		},
		&cli.StringFlag{
			Name:        "caller-id",
			Usage:       "requesting user, enables the tampering check",
			Destination: &opts.CallerID,
		},
		&cli.BoolFlag{
			Name:        "wait-verify",
			Usage:       "block until any scheduled tampering check has run",
			Destination: &opts.WaitVerify,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "search",
		Usage:  "Search a mailbox for a verification code or action link",
		Flags:  flags,
		Action: func(context *cli.Context) error { return run(context, cfg, opts) },
	})
	return app
}

func run(_ *cli.Context, cfg *config.CliConfig, opts *options) error {
	cfg.ConfigureLogging()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := service.New(cfg.BuildServiceConfig(st))
	defer svc.Close()

	result, err := svc.Search(mailsearch.Request{
		Address:   opts.Address,
		Service:   opts.Service,
		Variant:   opts.Variant,
		Folder:    opts.Folder,
		DayWindow: opts.Days,
		BotID:     opts.BotID,
		CallerID:  opts.CallerID,
	})
	if err != nil {
		return err
	}

	if result == nil {
		return cli.Exit("no matching message found", 1)
	}

	log.WithFields(log.Fields{
		"subject": result.Subject,
		"from":    result.From,
		"date":    result.Date,
		"is_link": result.IsLink,
	}).Info("search_result")

	fmt.Println(result.Value)

	if opts.WaitVerify && svc.Verifier() != nil {
		svc.Verifier().Wait()
	}
	return nil
}
