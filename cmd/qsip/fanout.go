package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"braces.dev/errtrace"
	"golang.org/x/sync/errgroup"

	"github.com/ghettovoice/qsip"
	"github.com/ghettovoice/qsip/sip"
)

const maxParallel = 8

type sendFunc func(ctx context.Context, target sip.Address) (*qsip.Result, error)

// fanOut sends to every target in parallel and prints one line per target
// in the order given. A failure does not stop the other sends.
func fanOut(ctx context.Context, out io.Writer, targets []sip.Address, send sendFunc) error {
	results := make([]*qsip.Result, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, target := range targets {
		g.Go(func() error {
			results[i], errs[i] = send(ctx, target)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	var failed []error
	for i, target := range targets {
		if errs[i] != nil {
			fmt.Fprintf(out, "FAIL\t%s\t%v\n", target, errs[i])
			failed = append(failed, fmt.Errorf("%s: %w", target, errs[i]))
			continue
		}
		res := results[i]
		fmt.Fprintf(out, "OK\t%s\t%s\t%s -> %s\n", target, res.State, res.Local, res.Destination)
	}
	return errtrace.Wrap(errors.Join(failed...))
}

func parseTargets(args []string) ([]sip.Address, error) {
	targets := make([]sip.Address, 0, len(args))
	for _, arg := range args {
		addr, err := sip.ParseAddress(arg)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		targets = append(targets, addr)
	}
	return targets, nil
}
