package gateway

import (
	"errors"

	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/registry"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

// Code classifies the outcome of an intent for the caller to render.
type Code int

const (
	OK Code = iota
	NotSeated
	InsufficientFunds
	WrongPhase
	WrongStatus
	AlreadyExists
	NoTable
	TableClosed
	InvalidAmount
	UnknownAction
	LedgerUnavailable
	Internal
)

var codeNames = [...]string{
	OK:                "ok",
	NotSeated:         "not_seated",
	InsufficientFunds: "insufficient_funds",
	WrongPhase:        "wrong_phase",
	WrongStatus:       "wrong_status",
	AlreadyExists:     "already_exists",
	NoTable:           "no_table",
	TableClosed:       "table_closed",
	InvalidAmount:     "invalid_amount",
	UnknownAction:     "unknown_action",
	LedgerUnavailable: "ledger_unavailable",
	Internal:          "internal",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "internal"
	}
	return codeNames[c]
}

var codeOf = []struct {
	err  error
	code Code
}{
	{table.ErrNotSeated, NotSeated},
	{table.ErrInsufficientFunds, InsufficientFunds},
	{table.ErrWrongPhase, WrongPhase},
	{table.ErrWrongStatus, WrongStatus},
	{table.ErrInvalidAmount, InvalidAmount},
	{table.ErrUnknownAction, UnknownAction},
	{table.ErrClosed, TableClosed},
	{table.ErrSurfaceGone, TableClosed},
	{registry.ErrExists, AlreadyExists},
	{registry.ErrNotFound, NoTable},
	{ledger.ErrUnavailable, LedgerUnavailable},
}

// CodeOf maps an intent error to its Code. nil is OK; anything
// unrecognised is Internal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	for _, m := range codeOf {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return Internal
}

var messages = map[Code]string{
	OK:                "Done.",
	NotSeated:         "You are not seated at this table.",
	InsufficientFunds: "You don't have enough coins for that bet.",
	WrongPhase:        "You can't do that right now.",
	WrongStatus:       "Your hand is already finished this round.",
	AlreadyExists:     "A table is already running in this channel.",
	NoTable:           "There is no table running in this channel.",
	TableClosed:       "This table has closed.",
	InvalidAmount:     "Bets must be a positive whole number.",
	UnknownAction:     "Unknown action.",
	LedgerUnavailable: "The bank is unavailable, try again shortly.",
	Internal:          "Something went wrong.",
}

// Message is the short player-facing text for c.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Internal]
}
