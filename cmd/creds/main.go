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

package creds

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mailseek/mailseek/cmd/config"
	"github.com/mailseek/mailseek/resolver"
	"github.com/mailseek/mailseek/store"
)

type options struct {
	BotID      string
	Key        string
	Account    string
	Secret     string
	SecretFile string
	Server     string
	Port       int
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.CliConfig{}
	opts := &options{}

	botFlag := &cli.StringFlag{
		Name:        "bot-id",
		Usage:       "bot identity scoping the credentials",
		EnvVars:     []string{"MAILSEEK_BOT_ID"},
		Value:       "default",
		Destination: &opts.BotID,
	}
	keyFlag := &cli.StringFlag{
		Name:        "key",
		Usage:       "sub-addressing prefix or mail domain this mailbox serves",
		Required:    true,
		Destination: &opts.Key,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "creds",
		Usage: "Manage stored IMAP credentials",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add or replace a credential mapping",
				Flags: append(cfg.Parameters(),
					botFlag,
					keyFlag,
					&cli.StringFlag{
						Name:        "account",
						Usage:       "IMAP login name",
						Required:    true,
						Destination: &opts.Account,
					},
					&cli.StringFlag{
						Name:        "secret",
						Usage:       "IMAP password. prefer --secret-file",
						Destination: &opts.Secret,
					},
					&cli.StringFlag{
						Name:        "secret-file",
						Usage:       "file containing the IMAP password",
						Destination: &opts.SecretFile,
					},
					&cli.StringFlag{
						Name:        "server",
						Usage:       "IMAP server hostname",
						Required:    true,
						Destination: &opts.Server,
					},
					&cli.IntFlag{
						Name:        "port",
						Usage:       "IMAP server port",
						Value:       resolver.DefaultPort,
						Destination: &opts.Port,
					},
				),
				Action: func(context *cli.Context) error { return add(context, cfg, opts) },
			},
			{
				Name:   "list",
				Usage:  "List credential mappings (secrets are not shown)",
				Flags:  append(cfg.Parameters(), botFlag),
				Action: func(context *cli.Context) error { return list(context, cfg, opts) },
			},
			{
				Name:   "remove",
				Usage:  "Remove a credential mapping",
				Flags:  append(cfg.Parameters(), botFlag, keyFlag),
				Action: func(context *cli.Context) error { return remove(context, cfg, opts) },
			},
		},
	})
	return app
}

func openStore(cfg *config.CliConfig) (*store.Store, error) {
	cfg.ConfigureLogging()
	return store.Open(cfg.Database)
}

func add(_ *cli.Context, cfg *config.CliConfig, opts *options) error {
	secret := opts.Secret
	if opts.SecretFile != "" {
		raw, err := os.ReadFile(opts.SecretFile)
		if err != nil {
			return fmt.Errorf("reading secret file: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return errors.New("one of --secret or --secret-file is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.UpsertCredential(opts.BotID, resolver.Row{
		Key:     opts.Key,
		Account: opts.Account,
		Secret:  secret,
		Server:  opts.Server,
		Port:    opts.Port,
	})
}

func list(_ *cli.Context, cfg *config.CliConfig, opts *options) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.CredentialRows(opts.BotID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		fmt.Printf("%s\t%s\t%s:%d\n", row.Key, row.Account, row.Server, row.Port)
	}
	return nil
}

func remove(_ *cli.Context, cfg *config.CliConfig, opts *options) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.DeleteCredential(opts.BotID, opts.Key)
}
