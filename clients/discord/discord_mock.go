package discord

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"discordautomation/clients"
)

// MockDiscordClient implements the clients.DiscordClient interface for testing
type MockDiscordClient struct {
	mock.Mock
}

func (m *MockDiscordClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	args := m.Called(ctx, channelID, content)
	return args.String(0), args.Error(1)
}

func (m *MockDiscordClient) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	args := m.Called(ctx, guildID, userID, roleID)
	return args.Error(0)
}

func (m *MockDiscordClient) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	args := m.Called(ctx, guildID, userID, roleID)
	return args.Error(0)
}

func (m *MockDiscordClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	args := m.Called(ctx, channelID, messageID)
	return args.Error(0)
}

func (m *MockDiscordClient) TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error {
	args := m.Called(ctx, guildID, userID, until)
	return args.Error(0)
}

func (m *MockDiscordClient) RemoveTimeout(ctx context.Context, guildID, userID string) error {
	args := m.Called(ctx, guildID, userID)
	return args.Error(0)
}

func (m *MockDiscordClient) SetMemberNickname(ctx context.Context, guildID, userID, nickname string) error {
	args := m.Called(ctx, guildID, userID, nickname)
	return args.Error(0)
}

func (m *MockDiscordClient) GetChannelMessages(
	ctx context.Context,
	channelID string,
	limit int,
) ([]clients.DiscordMessage, error) {
	args := m.Called(ctx, channelID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.DiscordMessage), args.Error(1)
}

func (m *MockDiscordClient) GetGuildByID(ctx context.Context, guildID string) (*clients.DiscordGuild, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.DiscordGuild), args.Error(1)
}
