package clients

import (
	"context"
	"time"
)

// DiscordClient is the platform action client. The action executor is
// the sole caller of the mutating operations; failures are mapped onto
// the core error taxonomy (ErrNotFound, ErrForbidden, ErrRateLimited,
// ErrTransient) so the executor can decide about retries.
type DiscordClient interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error
	RemoveTimeout(ctx context.Context, guildID, userID string) error
	SetMemberNickname(ctx context.Context, guildID, userID, nickname string) error
	GetChannelMessages(ctx context.Context, channelID string, limit int) ([]DiscordMessage, error)
	GetGuildByID(ctx context.Context, guildID string) (*DiscordGuild, error)
}
