package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"discordautomation/core"
	"discordautomation/models"
	"discordautomation/services"
	"discordautomation/services/dispatch"
	"discordautomation/services/rules"
)

func strPtr(s string) *string { return &s }

func memberJoinRule(id, content string) *models.AutomationRule {
	return &models.AutomationRule{
		ID:            id,
		Name:          "welcome",
		TriggerType:   models.TriggerTypeMemberJoin,
		ActionType:    models.ActionTypeSendMessage,
		ActionPayload: map[string]string{"channel_id": "welcome-chan", "content": content},
		Enabled:       true,
		CreatedAt:     time.Now(),
	}
}

func successOutcome() *models.DispatchOutcome {
	return &models.DispatchOutcome{Status: models.DispatchStatusSuccess, Attempts: 1}
}

func TestProcessMemberJoinEvent(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	rule := memberJoinRule("ar_1", "Welcome {user} to {server}!")
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMemberJoin).
		Return([]*models.AutomationRule{rule}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.ActionType == models.ActionTypeSendMessage &&
			req.IdempotencyKey == "rule:ar_1:event:join-u1" &&
			req.Payload["channel_id"] == "welcome-chan" &&
			req.Payload["content"] == "Welcome {user} to {server}!" &&
			req.Placeholders["user"] == "Ann" &&
			req.Placeholders["server"] == "Foo"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:        "join-u1",
		Type:      models.TriggerTypeMemberJoin,
		GuildID:   "guild-1",
		UserID:    "u1",
		Username:  "Ann",
		GuildName: "Foo",
	})

	require.NoError(t, err)
	executor.AssertExpectations(t)
}

// A member_join event carries no channel or emoji, so those tokens must
// be absent from the placeholder map and survive rendering verbatim
// rather than collapsing to empty strings.
func TestProcessMemberJoinOmitsAbsentPlaceholders(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	rule := memberJoinRule("ar_1", "Say hi to {user} in {channel}")
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMemberJoin).
		Return([]*models.AutomationRule{rule}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		_, hasChannel := req.Placeholders["channel"]
		_, hasEmoji := req.Placeholders["emoji"]
		return req.Placeholders["user"] == "Ann" && !hasChannel && !hasEmoji
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:       "join-u1",
		Type:     models.TriggerTypeMemberJoin,
		GuildID:  "guild-1",
		UserID:   "u1",
		Username: "Ann",
	})

	require.NoError(t, err)
	executor.AssertExpectations(t)
}

func TestProcessMessageContainsEvent(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	matchingRule := &models.AutomationRule{
		ID:             "ar_1",
		Name:           "support ping",
		TriggerType:    models.TriggerTypeMessageContains,
		MessageTrigger: &models.MessageContainsTrigger{Keywords: []string{"help", "support"}},
		ActionType:     models.ActionTypeSendMessage,
		ActionPayload:  map[string]string{"channel_id": "mod-chan", "content": "{username} asked for help"},
		Enabled:        true,
	}
	nonMatchingRule := &models.AutomationRule{
		ID:             "ar_2",
		Name:           "other",
		TriggerType:    models.TriggerTypeMessageContains,
		MessageTrigger: &models.MessageContainsTrigger{Keywords: []string{"billing"}},
		ActionType:     models.ActionTypeLog,
		ActionPayload:  map[string]string{"message": "billing mention"},
		Enabled:        true,
	}
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMessageContains).
		Return([]*models.AutomationRule{matchingRule, nonMatchingRule}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.IdempotencyKey == "rule:ar_1:event:msg-1"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:          "msg-1",
		Type:        models.TriggerTypeMessageContains,
		GuildID:     "guild-1",
		ChannelID:   "chan-1",
		UserID:      "u1",
		Username:    "Ann",
		MessageID:   "m1",
		MessageText: "can somebody HELP me out",
	})

	require.NoError(t, err)
	executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestProcessReactionAddedEvent(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	rule := &models.AutomationRule{
		ID:              "ar_1",
		Name:            "party role",
		TriggerType:     models.TriggerTypeReactionAdded,
		ReactionTrigger: &models.ReactionAddedTrigger{Emoji: "partyblob:123"},
		ActionType:      models.ActionTypeAssignRole,
		ActionPayload:   map[string]string{"role_id": "role-party"},
		Enabled:         true,
	}
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeReactionAdded).
		Return([]*models.AutomationRule{rule}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		// Event context is merged in so the role action knows its target
		return req.ActionType == models.ActionTypeAssignRole &&
			req.Payload["guild_id"] == "guild-1" &&
			req.Payload["user_id"] == "u1" &&
			req.Payload["role_id"] == "role-party"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:      "react-m1-u1",
		Type:    models.TriggerTypeReactionAdded,
		GuildID: "guild-1",
		UserID:  "u1",
		Emoji:   "<:partyblob:123>",
	})

	require.NoError(t, err)
	executor.AssertExpectations(t)
}

func TestGuildScopedRuleSkipsOtherGuilds(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	scoped := memberJoinRule("ar_1", "hi")
	scoped.GuildID = strPtr("guild-other")
	global := memberJoinRule("ar_2", "hello")
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMemberJoin).
		Return([]*models.AutomationRule{scoped, global}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.IdempotencyKey == "rule:ar_2:event:join-u1"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:      "join-u1",
		Type:    models.TriggerTypeMemberJoin,
		GuildID: "guild-1",
		UserID:  "u1",
	})

	require.NoError(t, err)
	executor.AssertNumberOfCalls(t, "Execute", 1)
}

func TestMalformedRuleDoesNotBlockOthers(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	malformed := &models.AutomationRule{
		ID:          "ar_1",
		Name:        "broken",
		TriggerType: models.TriggerTypeMessageContains,
		// MessageTrigger missing entirely
		ActionType: models.ActionTypeLog,
		Enabled:    true,
	}
	healthy := &models.AutomationRule{
		ID:             "ar_2",
		Name:           "works",
		TriggerType:    models.TriggerTypeMessageContains,
		MessageTrigger: &models.MessageContainsTrigger{Keywords: []string{"ping"}},
		ActionType:     models.ActionTypeLog,
		ActionPayload:  map[string]string{"message": "pinged"},
		Enabled:        true,
	}
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMessageContains).
		Return([]*models.AutomationRule{malformed, healthy}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.IdempotencyKey == "rule:ar_2:event:msg-1"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:          "msg-1",
		Type:        models.TriggerTypeMessageContains,
		GuildID:     "guild-1",
		MessageText: "ping",
	})

	require.NoError(t, err)
	executor.AssertExpectations(t)
}

func TestDispatchFailureDoesNotBlockOthers(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	first := memberJoinRule("ar_1", "one")
	second := memberJoinRule("ar_2", "two")
	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMemberJoin).
		Return([]*models.AutomationRule{first, second}, nil)

	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.IdempotencyKey == "rule:ar_1:event:join-u1"
	})).Return(&models.DispatchOutcome{
		Status: models.DispatchStatusFailed,
		Error:  "boom",
	}, nil).Once()
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(req services.ExecuteActionRequest) bool {
		return req.IdempotencyKey == "rule:ar_2:event:join-u1"
	})).Return(successOutcome(), nil).Once()

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:      "join-u1",
		Type:    models.TriggerTypeMemberJoin,
		GuildID: "guild-1",
	})

	require.NoError(t, err)
	executor.AssertExpectations(t)
}

func TestRuleListingFailure(t *testing.T) {
	rulesService := new(rules.MockAutomationRulesService)
	executor := new(dispatch.MockActionExecutorService)
	usecase := NewAutomationUseCase(rulesService, executor)

	rulesService.On("ListEnabledRulesByTrigger", mock.Anything, models.TriggerTypeMemberJoin).
		Return(nil, core.ErrTransient)

	err := usecase.ProcessPlatformEvent(context.Background(), models.PlatformEvent{
		ID:   "join-u1",
		Type: models.TriggerTypeMemberJoin,
	})

	assert.ErrorIs(t, err, core.ErrTransient)
	executor.AssertNotCalled(t, "Execute")
}
