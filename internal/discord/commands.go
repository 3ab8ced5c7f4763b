package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var minAmount = 1.0

// Commands are the slash commands the bot registers.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "blackjack",
		Description: "Blackjack games",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "table", Description: "Start a live blackjack table in this channel"},
		},
	},
	{
		Name:        "balance",
		Description: "Show a coin balance",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Whose balance"},
		},
	},
	{
		Name:        "pay",
		Description: "Send coins to another member",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Recipient", Required: true},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Coins to send", Required: true, MinValue: &minAmount},
		},
	},
	{Name: "daily", Description: "Collect your 25 daily coins"},
	{Name: "weekly", Description: "Collect your 100 weekly coins"},
	{Name: "monthly", Description: "Collect your 350 monthly coins"},
	{
		Name:        "coinflip",
		Description: "Bet on heads or tails to double your coins",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "side", Description: "heads or tails", Required: true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "heads", Value: "heads"},
					{Name: "tails", Value: "tails"},
				},
			},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Coins to bet", Required: true, MinValue: &minAmount},
		},
	},
	{Name: "history", Description: "Show your latest transactions"},
	{
		Name:        "setcoins",
		Description: "[Owner] Set a member's coin balance",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Whose balance", Required: true},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "The new balance", Required: true},
		},
	},
}

// Bot owns the Discord session.
type Bot struct {
	session *discordgo.Session
	router  *Router
	guildID string
	log     *zap.Logger
}

// NewSession creates a bot session with the intents the tables need.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return s, nil
}

func NewBot(session *discordgo.Session, router *Router, guildID string, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{session: session, router: router, guildID: guildID, log: log}
}

// Start connects and overwrites the slash commands. An empty guild ID
// registers them globally.
func (b *Bot) Start() error {
	b.session.AddHandler(b.router.OnInteraction)
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("connected", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, Commands); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.log.Info("slash commands registered", zap.Int("count", len(Commands)), zap.String("guild", b.guildID))
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}
