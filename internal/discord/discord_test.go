package discord

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/swarm-blackjack/casino-bot/internal/cards"
	"github.com/swarm-blackjack/casino-bot/internal/economy"
	"github.com/swarm-blackjack/casino-bot/internal/gateway"
	"github.com/swarm-blackjack/casino-bot/internal/ledger"
	"github.com/swarm-blackjack/casino-bot/internal/registry"
	"github.com/swarm-blackjack/casino-bot/internal/table"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []*discordgo.MessageSend
	edits   []*discordgo.MessageEdit
	editErr error
}

func (f *fakeAPI) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "m1"}, nil
}

func (f *fakeAPI) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID}, nil
}

func unknownMessage() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"},
	}
}

func TestPresenterRenderAndUpdate(t *testing.T) {
	api := &fakeAPI{}
	p := NewPresenter(api)
	ctx := context.Background()

	h, err := p.Render(ctx, table.Snapshot{Location: "c1", MaxSeats: 5})
	require.NoError(t, err)
	require.Equal(t, table.Handle("m1"), h)
	require.Len(t, api.sent[0].Embeds, 1)

	require.NoError(t, p.Update(ctx, h, table.Snapshot{Location: "c1", Phase: table.PlayerActions}))
	edit := api.edits[0]
	require.Equal(t, "m1", edit.ID)
	require.Equal(t, "c1", edit.Channel)
	require.Contains(t, (*edit.Embeds)[0].Title, "Players' turn")

	require.NoError(t, p.Close(ctx, h, "c1", "Table closed: no players left."))
	closing := api.edits[1]
	require.Empty(t, *closing.Components)
	require.Equal(t, "Table closed: no players left.", (*closing.Embeds)[0].Description)
}

func TestPresenterMapsUnknownMessage(t *testing.T) {
	api := &fakeAPI{editErr: unknownMessage()}
	err := NewPresenter(api).Update(context.Background(), "m1", table.Snapshot{Location: "c1"})
	require.ErrorIs(t, err, table.ErrSurfaceGone)

	api.editErr = errors.New("i/o timeout")
	err = NewPresenter(api).Update(context.Background(), "m1", table.Snapshot{Location: "c1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, table.ErrSurfaceGone)
}

func TestTableEmbedHidesHoleCard(t *testing.T) {
	snap := table.Snapshot{
		Phase:     table.PlayerActions,
		Countdown: 12,
		MaxSeats:  5,
		Dealer:    table.DealerView{Cards: []cards.Card{{Suit: "hearts", Rank: "K"}}, Hidden: true},
		Seats: []table.SeatView{
			{PlayerID: "u1", Bet: 100, Status: table.StatusPlaying, Total: 15,
				Cards: []cards.Card{{Suit: "clubs", Rank: "9"}, {Suit: "clubs", Rank: "6"}}},
			{PlayerID: "u2", Status: table.StatusSpectating},
		},
		Spectators: []string{"u3"},
	}
	e := TableEmbed(snap)
	require.Equal(t, "`K♥` `??`", e.Fields[0].Value)
	require.Equal(t, "Players (2/5)", e.Fields[1].Name)
	require.Contains(t, e.Fields[1].Value, "▶️ <@u1> - bet 100 - `9♣` `6♣` (15)")
	require.Contains(t, e.Fields[1].Value, "👀 <@u2> - no bet")
	require.Equal(t, "<@u3>", e.Fields[2].Value)
	require.Contains(t, e.Description, "12s")
}

func TestButtonsFollowPhase(t *testing.T) {
	row := TableButtons(table.WaitingForBets)[0].(discordgo.ActionsRow)
	bet := row.Components[0].(discordgo.Button)
	hit := row.Components[1].(discordgo.Button)
	require.False(t, bet.Disabled)
	require.True(t, hit.Disabled)

	row = TableButtons(table.PlayerActions)[0].(discordgo.ActionsRow)
	require.True(t, row.Components[0].(discordgo.Button).Disabled)
	require.False(t, row.Components[1].(discordgo.Button).Disabled)
}

func newRouter(t *testing.T) (*Router, *registry.Registry, *ledger.Memory) {
	t.Helper()
	reg := registry.New()
	mem := ledger.NewMemory(500)
	gw := gateway.New(gateway.Options{
		Registry:  reg,
		Ledger:    mem,
		Presenter: NewPresenter(&fakeAPI{}),
		Settings:  table.Settings{MaxSeats: 1, BettingSeconds: 1, ActionSeconds: 5, PayoutSeconds: 1},
		NewDeck:   func() *cards.Deck { return cards.NewDeck(rand.New(rand.NewSource(9))) },
	})
	eco := economy.New(mem, nil, economy.WithRand(rand.New(rand.NewSource(2))), economy.WithOwner("owner"))
	return NewRouter(gw, eco, nil), reg, mem
}

func member(id string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}}
}

func slash(user, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "c1",
		Member:    member(user),
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func press(user, custom string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "c1",
		Member:    member(user),
		Data:      discordgo.MessageComponentInteractionData{CustomID: custom, ComponentType: discordgo.ButtonComponent},
	}
}

func submitBet(user, amount string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionModalSubmit,
		ChannelID: "c1",
		Member:    member(user),
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: ModalBet,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: InputAmount, Value: amount},
				}},
			},
		},
	}
}

func content(resp *discordgo.InteractionResponse) string {
	if resp == nil || resp.Data == nil {
		return ""
	}
	return resp.Data.Content
}

func TestTableFlowThroughInteractions(t *testing.T) {
	r, reg, mem := newRouter(t)
	ctx := context.Background()

	tableCmd := &discordgo.ApplicationCommandInteractionDataOption{Name: "table", Type: discordgo.ApplicationCommandOptionSubCommand}
	resp := r.Handle(ctx, slash("u1", "blackjack", tableCmd))
	require.Contains(t, content(resp), "Table started")
	resp = r.Handle(ctx, slash("u2", "blackjack", tableCmd))
	require.Equal(t, gateway.Message(gateway.AlreadyExists), content(resp))

	resp = r.Handle(ctx, press("u2", ButtonHit))
	require.Contains(t, content(resp), "full")

	resp = r.Handle(ctx, press("u1", ButtonBet))
	require.Equal(t, discordgo.InteractionResponseModal, resp.Type)

	resp = r.Handle(ctx, submitBet("u1", "abc"))
	require.Equal(t, gateway.Message(gateway.InvalidAmount), content(resp))
	resp = r.Handle(ctx, submitBet("u1", "120"))
	require.Equal(t, "Bet of **120** placed. Balance: **380**.", content(resp))
	bal, err := mem.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(380), bal)

	registry.NewScheduler(reg, nil).RunOnce(ctx)
	resp = r.Handle(ctx, press("u1", ButtonBet))
	require.Equal(t, gateway.Message(gateway.WrongPhase), content(resp))

	resp = r.Handle(ctx, press("u1", ButtonStand))
	if content(resp) == "" {
		require.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, resp.Type)
	} else {
		require.Equal(t, gateway.Message(gateway.WrongStatus), content(resp), "dealt a natural")
	}

	resp = r.Handle(ctx, press("u2", ButtonLeave))
	require.Equal(t, "You left the table.", content(resp))
	resp = r.Handle(ctx, press("u3", ButtonLeave))
	require.Equal(t, gateway.Message(gateway.NotSeated), content(resp))
	resp = r.Handle(ctx, press("u1", ButtonLeave))
	require.Equal(t, "You left. The table closed.", content(resp))
	resp = r.Handle(ctx, press("u1", ButtonHit))
	require.Equal(t, gateway.Message(gateway.NoTable), content(resp))
}

func TestEconomyCommands(t *testing.T) {
	r, _, _ := newRouter(t)
	ctx := context.Background()

	resp := r.Handle(ctx, slash("u1", "balance"))
	require.Equal(t, "<@u1> has **500** coins.", content(resp))
	require.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	resp = r.Handle(ctx, slash("u1", "pay",
		&discordgo.ApplicationCommandInteractionDataOption{Name: "member", Type: discordgo.ApplicationCommandOptionUser, Value: "u2"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(50)},
	))
	require.Equal(t, "<@u1> paid **50** coins to <@u2>. Balance: **450**.", content(resp))

	resp = r.Handle(ctx, slash("u1", "pay",
		&discordgo.ApplicationCommandInteractionDataOption{Name: "member", Type: discordgo.ApplicationCommandOptionUser, Value: "u1"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(5)},
	))
	require.Equal(t, "You can't pay yourself.", content(resp))

	resp = r.Handle(ctx, slash("u2", "balance"))
	require.Contains(t, content(resp), "**550**")

	resp = r.Handle(ctx, slash("u1", "daily"))
	require.Contains(t, content(resp), "**25**")
	resp = r.Handle(ctx, slash("u1", "daily"))
	require.True(t, strings.HasPrefix(content(resp), "You already collected your daily reward"))

	resp = r.Handle(ctx, slash("u1", "coinflip",
		&discordgo.ApplicationCommandInteractionDataOption{Name: "side", Type: discordgo.ApplicationCommandOptionString, Value: "heads"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(10)},
	))
	require.Contains(t, content(resp), "It landed")

	resp = r.Handle(ctx, slash("u1", "history"))
	require.Contains(t, content(resp), "credit 25")
}

func TestSetCoinsCommand(t *testing.T) {
	r, _, mem := newRouter(t)
	ctx := context.Background()
	setcoins := func(user string, amount int64) *discordgo.Interaction {
		return slash(user, "setcoins",
			&discordgo.ApplicationCommandInteractionDataOption{Name: "member", Type: discordgo.ApplicationCommandOptionUser, Value: "u2"},
			&discordgo.ApplicationCommandInteractionDataOption{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(amount)},
		)
	}

	resp := r.Handle(ctx, setcoins("u1", 1000))
	require.Equal(t, "Only the bot owner can use this command.", content(resp))
	resp = r.Handle(ctx, setcoins("owner", -5))
	require.Equal(t, "The amount can't be negative.", content(resp))

	resp = r.Handle(ctx, setcoins("owner", 1000))
	require.Equal(t, "✅ <@u2> now has **1000** coins.", content(resp))
	bal, err := mem.Balance(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)
}
