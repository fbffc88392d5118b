package main

import (
	"net"
	"strconv"

	"braces.dev/errtrace"
	"github.com/spf13/cobra"

	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/sip"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [target...]",
		Short: "Send OPTIONS requests",
		Long: `Send an OPTIONS request to every target.

Without arguments the registrar is probed when configured, the recipients otherwise.

Examples:
  qsip probe sip:alice@example.com
  qsip probe -c qsip.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.client(cmd)
			if err != nil {
				return errtrace.Wrap(err)
			}
			defer cl.Close()

			targets, err := parseTargets(args)
			if err != nil {
				return errtrace.Wrap(err)
			}
			if len(targets) == 0 {
				targets = defaultProbeTargets(a)
			}
			if len(targets) == 0 {
				return errtrace.Wrap(errorutil.NewInvalidArgumentError("no probe target"))
			}
			return errtrace.Wrap(fanOut(commandContext(cmd), cmd.OutOrStdout(), targets, cl.Probe))
		},
	}
}

func defaultProbeTargets(a *app) []sip.Address {
	if a.cfg.RegistrarAddress != "" {
		host := a.cfg.RegistrarAddress
		if a.cfg.RegistrarPort != 0 {
			host = net.JoinHostPort(host, strconv.Itoa(int(a.cfg.RegistrarPort)))
		}
		return []sip.Address{{URI: "sip:" + host}}
	}
	return a.cfg.RecipientAddresses()
}
