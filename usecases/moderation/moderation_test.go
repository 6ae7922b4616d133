package moderation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"discordautomation/clients"
	"discordautomation/clients/discord"
	"discordautomation/config"
	"discordautomation/models"
	"discordautomation/services"
	"discordautomation/services/dispatch"
	"discordautomation/services/metrics"
)

func testAutoModConfig() config.AutoModConfig {
	return config.AutoModConfig{
		Mode:                 models.ModerationModeDryRun,
		DeleteThreshold:      0.4,
		TimeoutThreshold:     0.7,
		TimeoutDuration:      10 * time.Minute,
		WindowLimit:          200,
		RepeatedMessageRatio: 0.5,
		LinkRatio:            0.5,
		MentionThreshold:     5,
		CapsRatio:            0.7,
		CapsMinLength:        15,
	}
}

func discordMessage(id, author, content string, bot bool) clients.DiscordMessage {
	return clients.DiscordMessage{
		ID:             id,
		ChannelID:      "chan-1",
		AuthorID:       author,
		AuthorUsername: author,
		AuthorIsBot:    bot,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// spamHistory yields a window where "spammer" repeats the same message
// enough to cross the delete threshold but not the timeout threshold.
func spamHistory() []clients.DiscordMessage {
	var history []clients.DiscordMessage
	for i := 0; i < 6; i++ {
		history = append(history, discordMessage(fmt.Sprintf("dup-%d", i), "spammer", "buy my thing", false))
	}
	history = append(history,
		discordMessage("ok-1", "bystander", "hello", false),
		discordMessage("ok-2", "bystander", "how are you", false),
	)
	return history
}

func newTestUseCase(
	t *testing.T,
	cfg config.AutoModConfig,
) (*ModerationUseCase, *discord.MockDiscordClient, *dispatch.MockActionExecutorService, *metrics.MockMetricsService) {
	t.Helper()
	client := new(discord.MockDiscordClient)
	executor := new(dispatch.MockActionExecutorService)
	metricsService := new(metrics.MockMetricsService)
	usecase := NewModerationUseCase(client, executor, metricsService, cfg)
	return usecase, client, executor, metricsService
}

func TestEvaluateChannelDryRun(t *testing.T) {
	usecase, client, executor, metricsService := newTestUseCase(t, testAutoModConfig())

	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(spamHistory(), nil).Once()
	metricsService.On("TrackMetric", mock.Anything, models.MetricAutoModProposed, mock.Anything, mock.Anything).
		Return(&models.Metric{}, nil)

	actions, result, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeDryRun)

	require.NoError(t, err)
	require.Len(t, actions, 1)
	action := actions[0]
	assert.Equal(t, "spammer", action.AuthorID)
	assert.Equal(t, models.ModerationActionDeleteMessages, action.Kind)
	assert.False(t, action.Enforced)
	assert.Contains(t, action.Indicators, models.PatternIndicatorRepeatedMessage)
	assert.Equal(t, 8, result.MessagesScanned)

	// Dry run must never reach the executor
	executor.AssertNotCalled(t, "Execute")
	metricsService.AssertCalled(t, "TrackMetric",
		mock.Anything, models.MetricAutoModProposed, mock.Anything, mock.Anything)
}

func TestEvaluateChannelEnforceDeletes(t *testing.T) {
	usecase, client, executor, metricsService := newTestUseCase(t, testAutoModConfig())

	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(spamHistory(), nil).Once()
	metricsService.On("TrackMetric", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Metric{}, nil)
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.ActionType == models.ActionTypeDeleteMessage &&
			req.Payload["channel_id"] == "chan-1"
	})).Return(&models.DispatchOutcome{Status: models.DispatchStatusSuccess, Attempts: 1}, nil).Times(6)

	actions, _, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeEnforce)

	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Enforced)
	assert.Empty(t, actions[0].Error)
	executor.AssertExpectations(t)
	metricsService.AssertCalled(t, "TrackMetric",
		mock.Anything, models.MetricAutoModEnforced, mock.Anything, mock.Anything)
}

func TestEvaluateChannelEnforceTimeout(t *testing.T) {
	cfg := testAutoModConfig()
	usecase, client, executor, metricsService := newTestUseCase(t, cfg)

	// Repeated messages with the same link pushes the score past the
	// timeout threshold (0.4 + 0.3 + caps)
	var history []clients.DiscordMessage
	for i := 0; i < 5; i++ {
		history = append(history,
			discordMessage(fmt.Sprintf("m-%d", i), "spammer", "CLICK NOW https://scam.example/x FREE MONEY", false))
	}
	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(history, nil).Once()
	metricsService.On("TrackMetric", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Metric{}, nil)
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.ActionType == models.ActionTypeTimeoutMember &&
			req.Payload["guild_id"] == "guild-1" &&
			req.Payload["user_id"] == "spammer" &&
			req.Payload["duration"] == "10m0s"
	})).Return(&models.DispatchOutcome{Status: models.DispatchStatusSuccess, Attempts: 1}, nil).Once()

	actions, _, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeEnforce)

	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ModerationActionTimeout, actions[0].Kind)
	assert.True(t, actions[0].Enforced)
	// A timeout is one dispatch per author, never one per message
	executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestEvaluateChannelSkipsBots(t *testing.T) {
	usecase, client, executor, _ := newTestUseCase(t, testAutoModConfig())

	var history []clients.DiscordMessage
	for i := 0; i < 6; i++ {
		history = append(history, discordMessage(fmt.Sprintf("b-%d", i), "bot-1", "status: all good", true))
	}
	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(history, nil).Once()

	actions, result, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeEnforce)

	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Zero(t, result.MessagesScanned)
	executor.AssertNotCalled(t, "Execute")
}

func TestEvaluateChannelEnforcementIsolation(t *testing.T) {
	usecase, client, executor, metricsService := newTestUseCase(t, testAutoModConfig())

	var history []clients.DiscordMessage
	for i := 0; i < 4; i++ {
		history = append(history, discordMessage(fmt.Sprintf("a-%d", i), "author-a", "spam spam", false))
	}
	for i := 0; i < 4; i++ {
		history = append(history, discordMessage(fmt.Sprintf("b-%d", i), "author-b", "junk junk", false))
	}
	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(history, nil).Once()
	metricsService.On("TrackMetric", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Metric{}, nil)

	// author-a deletions all fail, author-b deletions all succeed
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.Payload["message_id"] == "a-0" || req.Payload["message_id"] == "a-1" ||
			req.Payload["message_id"] == "a-2" || req.Payload["message_id"] == "a-3"
	})).Return(&models.DispatchOutcome{Status: models.DispatchStatusFailed, Error: "forbidden"}, nil)
	executor.On("Execute", mock.Anything, mock.Anything).
		Return(&models.DispatchOutcome{Status: models.DispatchStatusSuccess, Attempts: 1}, nil)

	actions, _, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeEnforce)

	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "author-a", actions[0].AuthorID)
	assert.False(t, actions[0].Enforced)
	assert.NotEmpty(t, actions[0].Error)
	assert.Equal(t, "author-b", actions[1].AuthorID)
	assert.True(t, actions[1].Enforced)
}

func TestEvaluateChannelHistoryFetchFailure(t *testing.T) {
	usecase, client, executor, _ := newTestUseCase(t, testAutoModConfig())

	client.On("GetChannelMessages", mock.Anything, "chan-1", 200).
		Return(nil, assert.AnError).Once()

	_, _, err := usecase.EvaluateChannel(
		context.Background(), "guild-1", "chan-1", models.ModerationModeDryRun)

	assert.Error(t, err)
	executor.AssertNotCalled(t, "Execute")
}
