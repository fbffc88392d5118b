package main

import (
	"context"
	"strings"

	"braces.dev/errtrace"
	"github.com/spf13/cobra"

	"github.com/ghettovoice/qsip"
	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/sip"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		contentType string
		subject     string
		to          []string
	)
	cmd := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send a MESSAGE to the recipients",
		Long: `Send the message text as MESSAGE request to every recipient.

Recipients come from the configuration unless given with --to.

Examples:
  qsip send -c qsip.yaml "front door opened"
  qsip send --subject "Alarm" "front door opened"
  qsip send --to sip:alice@example.com --content-type text/markdown "**alarm**"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.client(cmd)
			if err != nil {
				return errtrace.Wrap(err)
			}
			defer cl.Close()

			targets, err := parseTargets(to)
			if err != nil {
				return errtrace.Wrap(err)
			}
			if len(targets) == 0 {
				targets = a.cfg.RecipientAddresses()
			}
			if len(targets) == 0 {
				return errtrace.Wrap(errorutil.NewInvalidArgumentError("no recipients"))
			}

			body := []byte(strings.Join(args, " "))
			send := func(ctx context.Context, target sip.Address) (*qsip.Result, error) {
				var hdrs []*header.Header
				if subject != "" {
					subj, err := header.NewSimple(header.KindSubject, subject)
					if err != nil {
						return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
					}
					hdrs = append(hdrs, subj)
				}
				return errtrace.Wrap2(cl.Send(ctx, target, contentType, body, hdrs...))
			}
			return errtrace.Wrap(fanOut(commandContext(cmd), cmd.OutOrStdout(), targets, send))
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", sip.DefaultContentType, "message content type")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Subject header value, e.g. the notification title")
	cmd.Flags().StringArrayVar(&to, "to", nil, "recipient address, overrides configured recipients (repeatable)")
	return cmd
}
