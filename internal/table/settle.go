package table

// DealerStandsOn is the total at which the dealer stops drawing. Soft and
// hard totals are treated alike.
const DealerStandsOn = 17

// Payout is the amount credited back to a seat at settlement. The bet was
// already debited when it was placed, so a push returns exactly the bet.
func Payout(status Status, playerTotal, dealerTotal int, bet int64) int64 {
	if bet <= 0 {
		return 0
	}
	switch {
	case status == StatusBlackjack:
		return bet * 5 / 2
	case status == StatusBusted:
		return 0
	case dealerTotal > 21 || playerTotal > dealerTotal:
		return bet * 2
	case playerTotal == dealerTotal:
		return bet
	default:
		return 0
	}
}

// DealerMustHit reports whether the dealer draws on this total.
func DealerMustHit(total int) bool {
	return total < DealerStandsOn
}
