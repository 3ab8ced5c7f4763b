package table

import "fmt"

// Phase is the table's position in the round cycle.
type Phase int

const (
	WaitingForBets Phase = iota
	DealingCards
	PlayerActions
	DealerTurn
	Payouts
)

var phaseNames = [...]string{
	WaitingForBets: "waiting_for_bets",
	DealingCards:   "dealing_cards",
	PlayerActions:  "player_actions",
	DealerTurn:     "dealer_turn",
	Payouts:        "payouts",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Status is a seat's standing in the current round.
type Status int

const (
	StatusPlaying Status = iota
	StatusStand
	StatusBusted
	StatusBlackjack
	StatusSpectating
)

var statusNames = [...]string{
	StatusPlaying:    "playing",
	StatusStand:      "stand",
	StatusBusted:     "busted",
	StatusBlackjack:  "blackjack",
	StatusSpectating: "spectating",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStatus accepts exactly the five status names.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown seat status %q", name)
}

// Action is a player move during PlayerActions.
type Action string

const (
	ActionHit   Action = "hit"
	ActionStand Action = "stand"
)

func ParseAction(name string) (Action, error) {
	switch Action(name) {
	case ActionHit, ActionStand:
		return Action(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Role is how an identity is attached to a table.
type Role int

const (
	RoleSeat Role = iota
	RoleSpectator
)

func (r Role) String() string {
	if r == RoleSeat {
		return "seat"
	}
	return "spectator"
}
