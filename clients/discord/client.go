package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"discordautomation/clients"
	"discordautomation/core"
)

// DiscordClient implements the clients.DiscordClient interface on top of
// the discordgo REST API. It shares the bot session with the gateway
// listener and holds no other network state.
type DiscordClient struct {
	session *discordgo.Session
}

func NewDiscordClient(session *discordgo.Session) clients.DiscordClient {
	return &DiscordClient{session: session}
}

// mapDiscordError converts discordgo REST failures into the core error
// taxonomy so callers can branch with errors.Is. The original error is
// kept in the chain for logging.
func mapDiscordError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", operation, core.ErrNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", operation, core.ErrForbidden, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %v", operation, core.ErrRateLimited, err)
		}
		if restErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%s: %w: %v", operation, core.ErrTransient, err)
		}
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: %w: %v", operation, core.ErrRateLimited, err)
	}

	// Anything else is connectivity-shaped and worth retrying
	return fmt.Errorf("%s: %w: %v", operation, core.ErrTransient, err)
}

func (c *DiscordClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	message, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapDiscordError(err, "send message")
	}
	return message.ID, nil
}

func (c *DiscordClient) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	err := c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
	return mapDiscordError(err, "add role")
}

func (c *DiscordClient) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	err := c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	return mapDiscordError(err, "remove role")
}

func (c *DiscordClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return mapDiscordError(err, "delete message")
}

func (c *DiscordClient) TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error {
	err := c.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx))
	return mapDiscordError(err, "timeout member")
}

func (c *DiscordClient) RemoveTimeout(ctx context.Context, guildID, userID string) error {
	err := c.session.GuildMemberTimeout(guildID, userID, nil, discordgo.WithContext(ctx))
	return mapDiscordError(err, "remove timeout")
}

func (c *DiscordClient) SetMemberNickname(ctx context.Context, guildID, userID, nickname string) error {
	err := c.session.GuildMemberNickname(guildID, userID, nickname, discordgo.WithContext(ctx))
	return mapDiscordError(err, "set member nickname")
}

func (c *DiscordClient) GetChannelMessages(
	ctx context.Context,
	channelID string,
	limit int,
) ([]clients.DiscordMessage, error) {
	// Discord caps a single history page at 100 messages
	var result []clients.DiscordMessage
	beforeID := ""
	for len(result) < limit {
		pageSize := limit - len(result)
		if pageSize > 100 {
			pageSize = 100
		}

		page, err := c.session.ChannelMessages(channelID, pageSize, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapDiscordError(err, "get channel messages")
		}
		if len(page) == 0 {
			break
		}

		for _, message := range page {
			result = append(result, clients.DiscordMessage{
				ID:             message.ID,
				ChannelID:      message.ChannelID,
				AuthorID:       message.Author.ID,
				AuthorUsername: message.Author.Username,
				AuthorIsBot:    message.Author.Bot,
				Content:        message.Content,
				MentionCount:   len(message.Mentions) + len(message.MentionRoles),
				Timestamp:      message.Timestamp,
			})
		}
		beforeID = page[len(page)-1].ID
	}
	return result, nil
}

func (c *DiscordClient) GetGuildByID(ctx context.Context, guildID string) (*clients.DiscordGuild, error) {
	guild, err := c.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapDiscordError(err, "fetch guild")
	}
	return &clients.DiscordGuild{
		ID:   guild.ID,
		Name: guild.Name,
	}, nil
}
