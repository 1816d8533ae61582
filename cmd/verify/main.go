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

package verify

import (
	"github.com/urfave/cli/v2"

	"github.com/mailseek/mailseek/cmd/config"
	"github.com/mailseek/mailseek/service"
	"github.com/mailseek/mailseek/store"
)

type options struct {
	Address  string
	BotID    string
	CallerID string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.CliConfig{}
	opts := &options{}

	flags := append(cfg.Parameters(),
		&cli.StringFlag{
			Name:        "address",
			Usage:       "mailbox address to inspect",
			Required:    true,
			Destination: &opts.Address,
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
			Usage:       "user to deactivate if tampering is found",
			Required:    true,
			Destination: &opts.CallerID,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "verify",
		Usage:  "Check a mailbox for account-tampering notices right now",
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

	detected, err := svc.Verifier().Check(opts.Address, opts.BotID, opts.CallerID)
	if err != nil {
		return err
	}

	if detected {
		return cli.Exit("tampering detected; caller deactivated", 2)
	}
	return nil
}
