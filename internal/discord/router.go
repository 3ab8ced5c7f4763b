package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/swarm-blackjack/casino-bot/internal/economy"
	"github.com/swarm-blackjack/casino-bot/internal/gateway"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

const interactionTimeout = 3 * time.Second

// Router answers interactions: slash commands, table buttons and the bet modal.
type Router struct {
	gw  *gateway.Gateway
	eco *economy.Service
	log *zap.Logger
}

func NewRouter(gw *gateway.Gateway, eco *economy.Service, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{gw: gw, eco: eco, log: log}
}

// OnInteraction is registered with Session.AddHandler.
func (r *Router) OnInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	resp := r.Handle(ctx, ic.Interaction)
	if resp == nil {
		return
	}
	if err := s.InteractionRespond(ic.Interaction, resp, discordgo.WithContext(ctx)); err != nil {
		r.log.Warn("interaction respond failed", zap.String("channel", ic.ChannelID), zap.Error(err))
	}
}

// Handle decides the response to an interaction.
func (r *Router) Handle(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return r.command(ctx, i)
	case discordgo.InteractionMessageComponent:
		return r.button(ctx, i)
	case discordgo.InteractionModalSubmit:
		return r.modal(ctx, i)
	}
	return nil
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func reply(format string, args ...any) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf(format, args...),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func public(format string, args ...any) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: fmt.Sprintf(format, args...)},
	}
}

// deferred acknowledges a button without sending anything; the table
// message itself shows the result.
func deferred() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
}

func (r *Router) rejection(err error) *discordgo.InteractionResponse {
	code := gateway.CodeOf(err)
	if code == gateway.Internal || code == gateway.LedgerUnavailable {
		r.log.Error("intent failed", zap.Stringer("code", code), zap.Error(err))
	}
	return reply("%s", gateway.Message(code))
}

// ── Buttons and modal ─────────────────────────────────────────────────────────

func (r *Router) button(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	user, loc := userID(i), i.ChannelID
	custom := i.MessageComponentData().CustomID
	if !strings.HasPrefix(custom, "bj_") {
		return nil
	}

	// Any interaction with the table attaches the player to it.
	if custom != ButtonLeave {
		role, err := r.gw.Join(ctx, loc, user)
		if err != nil {
			return r.rejection(err)
		}
		if role == table.RoleSpectator {
			return reply("The table is full, you are watching.")
		}
	}

	switch custom {
	case ButtonBet:
		snap, err := r.gw.Snapshot(loc)
		if err != nil {
			return r.rejection(err)
		}
		if snap.Phase != table.WaitingForBets {
			return r.rejection(table.ErrWrongPhase)
		}
		return betModal()

	case ButtonHit, ButtonStand:
		action := strings.TrimPrefix(custom, "bj_")
		res, err := r.gw.Act(ctx, loc, user, action)
		if err != nil {
			return r.rejection(err)
		}
		if !res.Applied {
			return reply("Place a bet first to play this round.")
		}
		return deferred()

	case ButtonLeave:
		closed, err := r.gw.Leave(ctx, loc, user)
		if err != nil {
			return r.rejection(err)
		}
		if closed {
			return reply("You left. The table closed.")
		}
		return reply("You left the table.")
	}
	return nil
}

func modalValue(data discordgo.ModalSubmitInteractionData, id string) string {
	for _, row := range data.Components {
		var comps []discordgo.MessageComponent
		switch ar := row.(type) {
		case discordgo.ActionsRow:
			comps = ar.Components
		case *discordgo.ActionsRow:
			comps = ar.Components
		}
		for _, c := range comps {
			switch in := c.(type) {
			case discordgo.TextInput:
				if in.CustomID == id {
					return in.Value
				}
			case *discordgo.TextInput:
				if in.CustomID == id {
					return in.Value
				}
			}
		}
	}
	return ""
}

func (r *Router) modal(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	data := i.ModalSubmitData()
	if data.CustomID != ModalBet {
		return nil
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(modalValue(data, InputAmount)), 10, 64)
	if err != nil {
		return r.rejection(table.ErrInvalidAmount)
	}
	bal, err := r.gw.PlaceBet(ctx, i.ChannelID, userID(i), amount)
	if err != nil {
		return r.rejection(err)
	}
	return reply("Bet of **%d** placed. Balance: **%d**.", amount, bal)
}

// ── Slash commands ────────────────────────────────────────────────────────────

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

func (o options) integer(name string) int64 {
	opt, ok := o[name]
	if !ok {
		return 0
	}
	switch v := opt.Value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func (r *Router) command(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	data := i.ApplicationCommandData()
	user := userID(i)
	opts := optionMap(data.Options)

	switch data.Name {
	case "blackjack":
		if len(data.Options) == 0 || data.Options[0].Name != "table" {
			return nil
		}
		if _, err := r.gw.StartTable(ctx, i.ChannelID, user); err != nil {
			return r.rejection(err)
		}
		return reply("Table started. Use the buttons on the table to play.")

	case "balance":
		who := user
		if other := opts.str("member"); other != "" {
			who = other
		}
		bal, err := r.eco.Balance(ctx, who)
		if err != nil {
			return r.economyError(err)
		}
		return reply("<@%s> has **%d** coins.", who, bal)

	case "pay":
		to, amount := opts.str("member"), opts.integer("amount")
		after, err := r.eco.Pay(ctx, user, to, amount)
		if err != nil {
			return r.economyError(err)
		}
		return public("<@%s> paid **%d** coins to <@%s>. Balance: **%d**.", user, amount, to, after)

	case "daily", "weekly", "monthly":
		reward, bal, err := r.eco.Collect(ctx, user, data.Name)
		if err != nil {
			return r.economyError(err)
		}
		return reply("🎉 You collected **%d** coins! Balance: **%d**.", reward.Amount, bal)

	case "coinflip":
		res, err := r.eco.CoinFlip(ctx, user, opts.str("side"), opts.integer("amount"))
		if err != nil {
			return r.economyError(err)
		}
		if res.Won {
			return public("🎉 It landed **%s**! <@%s> won **%d** coins.", res.Side, user, opts.integer("amount"))
		}
		return public("😢 It landed **%s**. <@%s> lost **%d** coins.", res.Side, user, opts.integer("amount"))

	case "setcoins":
		who, amount := opts.str("member"), opts.integer("amount")
		if err := r.eco.SetBalance(ctx, user, who, amount); err != nil {
			return r.economyError(err)
		}
		return reply("✅ <@%s> now has **%d** coins.", who, amount)

	case "history":
		txs, err := r.eco.Statement(ctx, user, 10)
		if err != nil {
			return r.economyError(err)
		}
		if len(txs) == 0 {
			return reply("No transactions yet.")
		}
		var b strings.Builder
		for _, tx := range txs {
			fmt.Fprintf(&b, "`%s` %s %d → %d\n", tx.CreatedAt.Format("2006-01-02 15:04"), tx.Type, tx.Amount, tx.BalanceAfter)
		}
		return reply("%s", b.String())
	}
	return nil
}

func (r *Router) economyError(err error) *discordgo.InteractionResponse {
	var cd *economy.CooldownError
	switch {
	case errors.As(err, &cd):
		return reply("You already collected your %s reward. Try again in %s.", cd.Kind, cd.Remaining.Truncate(time.Second))
	case errors.Is(err, economy.ErrSelfPayment):
		return reply("You can't pay yourself.")
	case errors.Is(err, economy.ErrInvalidAmount):
		return reply("The amount must be positive.")
	case errors.Is(err, economy.ErrInsufficientFunds):
		return reply("Insufficient funds.")
	case errors.Is(err, economy.ErrInvalidSide):
		return reply("Pick heads or tails.")
	case errors.Is(err, economy.ErrNotOwner):
		return reply("Only the bot owner can use this command.")
	case errors.Is(err, economy.ErrNegativeBalance):
		return reply("The amount can't be negative.")
	case errors.Is(err, ledger.ErrUnavailable):
		r.log.Error("economy ledger failure", zap.Error(err))
		return reply("%s", gateway.Message(gateway.LedgerUnavailable))
	}
	r.log.Error("economy command failed", zap.Error(err))
	return reply("%s", gateway.Message(gateway.Internal))
}
