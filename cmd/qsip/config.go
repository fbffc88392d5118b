package main

import (
	"braces.dev/errtrace"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return errtrace.Wrap(err)
			}
			return errtrace.Wrap(cfg.Dump(cmd.OutOrStdout()))
		},
	}
}
