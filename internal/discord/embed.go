package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/swarm-blackjack/casino-bot/internal/cards"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

// Button and modal custom IDs.
const (
	ButtonBet   = "bj_bet"
	ButtonHit   = "bj_hit"
	ButtonStand = "bj_stand"
	ButtonLeave = "bj_leave"
	ModalBet    = "bj_bet_modal"
	InputAmount = "bet_amount"
)

const (
	colorBetting = 0x2ECC71
	colorPlaying = 0x3498DB
	colorPayout  = 0xF1C40F
	colorClosed  = 0x95A5A6
)

var statusGlyph = map[table.Status]string{
	table.StatusPlaying:    "▶️",
	table.StatusStand:      "⏹️",
	table.StatusBusted:     "💥",
	table.StatusBlackjack:  "👑",
	table.StatusSpectating: "👀",
}

var phaseTitle = map[table.Phase]string{
	table.WaitingForBets: "Place your bets",
	table.DealingCards:   "Dealing",
	table.PlayerActions:  "Players' turn",
	table.DealerTurn:     "Dealer's turn",
	table.Payouts:        "Payouts",
}

func cardList(cs []cards.Card) string {
	if len(cs) == 0 {
		return "-"
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = "`" + c.String() + "`"
	}
	return strings.Join(parts, " ")
}

func dealerLine(d table.DealerView) string {
	if len(d.Cards) == 0 {
		return "Waiting for the round to start."
	}
	if d.Hidden {
		return cardList(d.Cards) + " `??`"
	}
	return fmt.Sprintf("%s (%d)", cardList(d.Cards), d.Total)
}

func seatLine(s table.SeatView, phase table.Phase) string {
	line := fmt.Sprintf("%s <@%s>", statusGlyph[s.Status], s.PlayerID)
	if s.Bet == 0 {
		return line + " - no bet"
	}
	line += fmt.Sprintf(" - bet %d", s.Bet)
	if len(s.Cards) > 0 {
		line += fmt.Sprintf(" - %s (%d)", cardList(s.Cards), s.Total)
	}
	if phase == table.Payouts {
		if s.Payout > 0 {
			line += fmt.Sprintf(" - won %d", s.Payout)
		} else {
			line += " - lost"
		}
	}
	return line
}

// TableEmbed renders a snapshot. It is a pure function of the snapshot.
func TableEmbed(snap table.Snapshot) *discordgo.MessageEmbed {
	color := colorPlaying
	switch snap.Phase {
	case table.WaitingForBets:
		color = colorBetting
	case table.Payouts:
		color = colorPayout
	}

	seats := make([]string, 0, len(snap.Seats))
	for _, s := range snap.Seats {
		seats = append(seats, seatLine(s, snap.Phase))
	}
	seatText := strings.Join(seats, "\n")
	if seatText == "" {
		seatText = "Nobody seated."
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Dealer", Value: dealerLine(snap.Dealer)},
		{Name: fmt.Sprintf("Players (%d/%d)", len(snap.Seats), snap.MaxSeats), Value: seatText},
	}
	if len(snap.Spectators) > 0 {
		watchers := make([]string, len(snap.Spectators))
		for i, id := range snap.Spectators {
			watchers[i] = "<@" + id + ">"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Watching", Value: strings.Join(watchers, " ")})
	}

	return &discordgo.MessageEmbed{
		Title:       "🃏 Blackjack - " + phaseTitle[snap.Phase],
		Description: fmt.Sprintf("Next phase in **%ds**.", snap.Countdown),
		Color:       color,
		Fields:      fields,
	}
}

// ClosedEmbed replaces the table when it shuts down.
func ClosedEmbed(reason string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: "🃏 Blackjack", Description: reason, Color: colorClosed}
}

// TableButtons enables each button only in the phase it is useful in.
func TableButtons(phase table.Phase) []discordgo.MessageComponent {
	betting := phase == table.WaitingForBets
	acting := phase == table.PlayerActions
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: ButtonBet, Label: "Bet", Style: discordgo.SuccessButton, Disabled: !betting},
			discordgo.Button{CustomID: ButtonHit, Label: "Hit", Style: discordgo.PrimaryButton, Disabled: !acting},
			discordgo.Button{CustomID: ButtonStand, Label: "Stand", Style: discordgo.SecondaryButton, Disabled: !acting},
			discordgo.Button{CustomID: ButtonLeave, Label: "Leave", Style: discordgo.DangerButton},
		}},
	}
}

func betModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: ModalBet,
			Title:    "Place a bet",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    InputAmount,
						Label:       "Amount",
						Style:       discordgo.TextInputShort,
						Placeholder: "100",
						Required:    true,
					},
				}},
			},
		},
	}
}
