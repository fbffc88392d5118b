package qsip

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/qsip/sip"
)

// TxState is a state of a client transaction.
//
// Responses are not awaited, so a transaction is completed as soon as
// the request is written to the transport.
//
//	Idle -> Sent -> Completed
//	  |       |
//	  +-------+---> TimedOut | Failed
type TxState uint8

const (
	TxStateIdle TxState = iota
	TxStateSent
	TxStateCompleted
	TxStateTimedOut
	TxStateFailed
)

var txStateNames = [...]string{
	TxStateIdle:      "Idle",
	TxStateSent:      "Sent",
	TxStateCompleted: "Completed",
	TxStateTimedOut:  "TimedOut",
	TxStateFailed:    "Failed",
}

func (s TxState) String() string {
	if int(s) < len(txStateNames) {
		return txStateNames[s]
	}
	return "Unknown"
}

// IsFinal reports whether no further transitions are possible from the state.
func (s TxState) IsFinal() bool {
	return s == TxStateCompleted || s == TxStateTimedOut || s == TxStateFailed
}

type txTrigger uint8

const (
	txTriggerSent txTrigger = iota
	txTriggerComplete
	txTriggerTimeout
	txTriggerTransportErr
)

var txTriggerNames = [...]string{
	txTriggerSent:         "sent",
	txTriggerComplete:     "complete",
	txTriggerTimeout:      "timeout",
	txTriggerTransportErr: "transport_error",
}

func (t txTrigger) String() string { return txTriggerNames[t] }

// clientTx tracks a single request from assembly to its final state.
type clientTx struct {
	fsm *stateless.StateMachine
	log *slog.Logger
	req *sip.Request
}

func newClientTx(log *slog.Logger) *clientTx {
	tx := &clientTx{
		fsm: stateless.NewStateMachine(TxStateIdle),
		log: log,
	}

	tx.fsm.Configure(TxStateIdle).
		Permit(txTriggerSent, TxStateSent).
		Permit(txTriggerTimeout, TxStateTimedOut).
		Permit(txTriggerTransportErr, TxStateFailed)
	tx.fsm.Configure(TxStateSent).
		Permit(txTriggerComplete, TxStateCompleted).
		Permit(txTriggerTimeout, TxStateTimedOut).
		Permit(txTriggerTransportErr, TxStateFailed)
	tx.fsm.Configure(TxStateCompleted)
	tx.fsm.Configure(TxStateTimedOut)
	tx.fsm.Configure(TxStateFailed)

	tx.fsm.OnTransitioned(func(ctx context.Context, t stateless.Transition) {
		if !tx.log.Enabled(ctx, slog.LevelDebug) {
			return
		}
		attrs := []slog.Attr{
			slog.Any("from", t.Source),
			slog.Any("to", t.Destination),
			slog.Any("trigger", t.Trigger),
		}
		if tx.req != nil {
			attrs = append(attrs, slog.Any("request", tx.req))
		}
		tx.log.LogAttrs(ctx, slog.LevelDebug, "client transaction state changed", attrs...)
	})
	return tx
}

func (tx *clientTx) State() TxState {
	return tx.fsm.MustState().(TxState) //nolint:forcetypeassert
}

func (tx *clientTx) fire(ctx context.Context, trigger txTrigger) error {
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, trigger))
}

// sent moves the transaction through Sent to Completed.
func (tx *clientTx) sent(ctx context.Context) error {
	if err := tx.fire(ctx, txTriggerSent); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(tx.fire(ctx, txTriggerComplete))
}

// fail moves the transaction to TimedOut or Failed depending on the cause.
func (tx *clientTx) fail(ctx context.Context, cause error) error {
	trigger := txTriggerTransportErr
	if isTimeout(ctx, cause) {
		trigger = txTriggerTimeout
	}
	return errtrace.Wrap(tx.fire(context.WithoutCancel(ctx), trigger))
}
