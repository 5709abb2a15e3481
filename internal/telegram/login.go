/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Login runs the interactive user authorization flow and writes the session
// file. Prompts go to out, answers are read from in. Meant for a terminal;
// the serve path never prompts.
func Login(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: opts.SessionFile},
	})

	flow := auth.NewFlow(promptAuth{in: bufio.NewReader(in), out: out}, auth.SendCodeOptions{})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return err
		}
		self, err := client.Self(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s %s, session saved to %s\n", self.FirstName, self.LastName, opts.SessionFile)
		return nil
	})
}

// promptAuth answers the authorization flow from a terminal.
type promptAuth struct {
	in  *bufio.Reader
	out io.Writer
}

func (p promptAuth) Phone(_ context.Context) (string, error) {
	return p.ask("Phone number (international format): ")
}

func (p promptAuth) Password(_ context.Context) (string, error) {
	return p.ask("Two-factor password: ")
}

func (p promptAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return p.ask("Code from Telegram: ")
}

func (p promptAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (p promptAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign-up is not supported, register the account first")
}

func (p promptAuth) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
