package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"discordautomation/middleware"
	"discordautomation/models"
	"discordautomation/usecases/automation"
)

// DiscordEventsHandler listens for gateway events, normalizes them into
// platform events and hands them to the trigger matcher. Bot-originated
// events are dropped at this boundary so automation can never trigger
// itself.
type DiscordEventsHandler struct {
	discordSDKClient  *discordgo.Session
	automationUseCase *automation.AutomationUseCase
	alertMiddleware   *middleware.ErrorAlertMiddleware
}

func NewDiscordEventsHandler(
	session *discordgo.Session,
	automationUseCase *automation.AutomationUseCase,
	alertMiddleware *middleware.ErrorAlertMiddleware,
) *DiscordEventsHandler {
	handler := &DiscordEventsHandler{
		discordSDKClient:  session,
		automationUseCase: automationUseCase,
		alertMiddleware:   alertMiddleware,
	}

	// Register event handlers
	session.AddHandler(handler.handleMemberJoinEvent)
	session.AddHandler(handler.handleMessageCreatedEvent)
	session.AddHandler(handler.handleReactionAddedEvent)

	// Set intents to receive member, message and reaction events
	session.Identify.Intents = discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	return handler
}

// StartBot opens the Discord connection and starts listening for events
func (h *DiscordEventsHandler) StartBot() error {
	if err := h.discordSDKClient.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	log.Printf("🤖 Discord bot is now running and listening for events")
	return nil
}

// StopBot gracefully closes the Discord connection
func (h *DiscordEventsHandler) StopBot() {
	h.discordSDKClient.Close()
}

func (h *DiscordEventsHandler) handleMemberJoinEvent(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	log.Printf("📨 Discord member %s joined guild %s", m.User.Username, m.GuildID)

	event := models.PlatformEvent{
		// Stable across gateway redelivery of the same join
		ID:        fmt.Sprintf("join:%s:%s", m.GuildID, m.User.ID),
		Type:      models.TriggerTypeMemberJoin,
		GuildID:   m.GuildID,
		UserID:    m.User.ID,
		Username:  m.User.Username,
		GuildName: h.guildName(s, m.GuildID),
	}
	h.process("member_join", event)
}

func (h *DiscordEventsHandler) handleMessageCreatedEvent(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	log.Printf("📨 Discord message received from %s in guild %s, channel %s",
		m.Author.Username, m.GuildID, m.ChannelID)

	event := models.PlatformEvent{
		ID:          fmt.Sprintf("msg:%s", m.ID),
		Type:        models.TriggerTypeMessageContains,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		GuildName:   h.guildName(s, m.GuildID),
		MessageID:   m.ID,
		MessageText: m.Content,
	}
	h.process("message_create", event)
}

func (h *DiscordEventsHandler) handleReactionAddedEvent(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	emoji := normalizeGatewayEmoji(r.Emoji)
	log.Printf("📨 Discord reaction %s added by user %s on message %s in guild %s",
		emoji, r.UserID, r.MessageID, r.GuildID)

	username := ""
	if r.Member != nil && r.Member.User != nil {
		username = r.Member.User.Username
	}

	event := models.PlatformEvent{
		ID:        fmt.Sprintf("react:%s:%s:%s", r.MessageID, r.UserID, emoji),
		Type:      models.TriggerTypeReactionAdded,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		UserID:    r.UserID,
		Username:  username,
		GuildName: h.guildName(s, r.GuildID),
		MessageID: r.MessageID,
		Emoji:     emoji,
	}
	h.process("reaction_add", event)
}

// process runs the matcher behind the alert wrapper so one bad event can
// never crash the gateway loop.
func (h *DiscordEventsHandler) process(eventName string, event models.PlatformEvent) {
	h.alertMiddleware.WrapGatewayHandler(eventName, func() error {
		return h.automationUseCase.ProcessPlatformEvent(context.Background(), event)
	})()
}

// guildName resolves the guild's display name for payload placeholders.
// The state cache covers the common case; a cache miss falls back to the
// guild ID rather than an extra API roundtrip per event.
func (h *DiscordEventsHandler) guildName(s *discordgo.Session, guildID string) string {
	if guildID == "" {
		return ""
	}
	if guild, err := s.State.Guild(guildID); err == nil && guild.Name != "" {
		return guild.Name
	}
	return guildID
}

// normalizeGatewayEmoji yields the canonical form rules are stored with:
// "name:id" for custom emoji, the raw rune(s) for unicode emoji.
func normalizeGatewayEmoji(emoji discordgo.Emoji) string {
	if emoji.ID != "" {
		return fmt.Sprintf("%s:%s", emoji.Name, emoji.ID)
	}
	return emoji.Name
}
