package main

import (
	"context"
	"io"
	"log/slog"

	"braces.dev/errtrace"
	"github.com/spf13/cobra"

	"github.com/ghettovoice/qsip"
	"github.com/ghettovoice/qsip/config"
	"github.com/ghettovoice/qsip/internal/errorutil"
)

type app struct {
	cfgPath string
	debug   bool

	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "qsip",
		Short: "qsip - minimal SIP notification sender",
		Long: `qsip sends SIP MESSAGE notifications and OPTIONS probes over UDP.

Settings are read from the configuration file given with --config and from
QSIP_ prefixed environment variables (QSIP_FROM_ADDRESS, QSIP_OUTBOUND_PROXY, ...).`,
		Version:       qsip.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file path (yaml, json or toml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newProbeCmd(a),
		newSendCmd(a),
		newDigestCmd(),
		newConfigCmd(a),
	)

	return root
}

// load reads the configuration once. Flags override file and environment values.
func (a *app) load(cmd *cobra.Command) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	v := config.New()
	if a.cfgPath != "" {
		v.SetConfigFile(a.cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errtrace.Wrap(errorutil.NewWrapperError(config.ErrInvalidConfig, err))
		}
	}
	if f := cmd.Flags().Lookup("debug"); f != nil && f.Changed {
		if err := v.BindPFlag("debug", f); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	logger, closer, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	a.cfg, a.log, a.closer = cfg, logger, closer
	return cfg, nil
}

func (a *app) client(cmd *cobra.Command) (*qsip.Client, error) {
	cfg, err := a.load(cmd)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	cl, err := qsip.NewClient(cfg.ClientOptions(a.log))
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if cfg.Username != "" {
		cl.RegisterUser(cfg.Username, cfg.Password)
	}
	return cl, nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return errtrace.Wrap(err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
