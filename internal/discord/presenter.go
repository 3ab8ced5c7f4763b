// Package discord puts tables in Discord channels: one message per table,
// edited every tick, with buttons and slash commands feeding the gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/swarm-blackjack/casino-bot/internal/table"
)

// Messenger is the part of *discordgo.Session the presenter uses.
type Messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Presenter renders a table as a message in the channel it belongs to. The
// table location is the channel ID and the handle is the message ID.
type Presenter struct {
	api Messenger
}

func NewPresenter(api Messenger) *Presenter {
	return &Presenter{api: api}
}

func (p *Presenter) Render(ctx context.Context, snap table.Snapshot) (table.Handle, error) {
	msg, err := p.api.ChannelMessageSendComplex(snap.Location, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{TableEmbed(snap)},
		Components: TableButtons(snap.Phase),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("send table message", err)
	}
	return table.Handle(msg.ID), nil
}

func (p *Presenter) Update(ctx context.Context, h table.Handle, snap table.Snapshot) error {
	embeds := []*discordgo.MessageEmbed{TableEmbed(snap)}
	components := TableButtons(snap.Phase)
	_, err := p.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         string(h),
		Channel:    snap.Location,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return classify("edit table message", err)
	}
	return nil
}

// Close swaps the table for a closing notice and removes the buttons.
func (p *Presenter) Close(ctx context.Context, h table.Handle, location, reason string) error {
	embeds := []*discordgo.MessageEmbed{ClosedEmbed(reason)}
	components := []discordgo.MessageComponent{}
	_, err := p.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         string(h),
		Channel:    location,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return classify("close table message", err)
	}
	return nil
}

// classify turns Discord's "unknown message/channel" answers into
// table.ErrSurfaceGone; anything else stays a transient error.
func classify(op string, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
				return fmt.Errorf("%s: %w: %w", op, table.ErrSurfaceGone, err)
			}
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w: %w", op, table.ErrSurfaceGone, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
