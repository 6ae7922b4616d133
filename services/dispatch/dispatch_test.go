package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"discordautomation/clients/discord"
	"discordautomation/config"
	"discordautomation/core"
	"discordautomation/models"
	"discordautomation/services"
)

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		RateLimitCapacity:     10,
		RateLimitRefillPerSec: 100,
		TokenWaitTimeout:      100 * time.Millisecond,
		PlatformTimeout:       time.Second,
		MaxAttempts:           3,
		BackoffBase:           time.Millisecond,
		LedgerRetention:       time.Minute,
		LedgerCapacity:        100,
	}
}

func TestExecuteSendMessage(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("SendMessage", mock.Anything, "chan-1", "Welcome Ann to Foo!").
		Return("msg-1", nil).Once()

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType:     models.ActionTypeSendMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "content": "Welcome {user} to {server}!"},
		Placeholders:   map[string]string{"user": "Ann", "server": "Foo"},
		IdempotencyKey: "rule:ar_1:event:ev_1",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.False(t, outcome.Deduplicated)
	client.AssertExpectations(t)
}

func TestExecuteDeduplicatesByIdempotencyKey(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("SendMessage", mock.Anything, "chan-1", "hi").
		Return("msg-1", nil).Once()

	req := services.ExecuteActionRequest{
		ActionType:     models.ActionTypeSendMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "content": "hi"},
		IdempotencyKey: "task:st_1",
	}

	first, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Succeeded())

	second, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Succeeded())
	assert.True(t, second.Deduplicated)

	// Only one platform call across both executions
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestExecuteConcurrentDuplicatesShareOneDispatch(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	// Slow platform call so both goroutines are in flight at once
	client.On("SendMessage", mock.Anything, "chan-1", "hi").
		Run(func(args mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return("msg-1", nil)

	req := services.ExecuteActionRequest{
		ActionType:     models.ActionTypeSendMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "content": "hi"},
		IdempotencyKey: "task:st_1",
	}

	var wg sync.WaitGroup
	outcomes := make([]*models.DispatchOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = executor.Execute(context.Background(), req)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, outcomes[0].Succeeded())
	assert.True(t, outcomes[1].Succeeded())
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestExecuteFailureIsNotCached(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("DeleteMessage", mock.Anything, "chan-1", "msg-1").
		Return(core.ErrForbidden).Once()
	client.On("DeleteMessage", mock.Anything, "chan-1", "msg-1").
		Return(nil).Once()

	req := services.ExecuteActionRequest{
		ActionType:     models.ActionTypeDeleteMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "message_id": "msg-1"},
		IdempotencyKey: "task:st_2",
	}

	first, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusFailed, first.Status)
	assert.Equal(t, 1, first.Attempts)
	assert.NotEmpty(t, first.Error)

	// A failed outcome must not satisfy a later retry of the same key
	second, err := executor.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Succeeded())
	assert.False(t, second.Deduplicated)
	client.AssertExpectations(t)
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("AddRole", mock.Anything, "guild-1", "user-1", "role-1").
		Return(core.ErrTransient).Once()
	client.On("AddRole", mock.Anything, "guild-1", "user-1", "role-1").
		Return(nil).Once()

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeAssignRole,
		Payload: map[string]string{
			"guild_id": "guild-1",
			"user_id":  "user-1",
			"role_id":  "role-1",
		},
		IdempotencyKey: "rule:ar_2:event:ev_2",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, 2, outcome.Attempts)
	client.AssertExpectations(t)
}

func TestExecuteStopsAtAttemptCap(t *testing.T) {
	client := new(discord.MockDiscordClient)
	cfg := testDispatchConfig()
	executor := NewActionExecutor(client, cfg)

	client.On("AddRole", mock.Anything, "guild-1", "user-1", "role-1").
		Return(core.ErrTransient)

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeAssignRole,
		Payload: map[string]string{
			"guild_id": "guild-1",
			"user_id":  "user-1",
			"role_id":  "role-1",
		},
		IdempotencyKey: "rule:ar_3:event:ev_3",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusFailed, outcome.Status)
	assert.Equal(t, cfg.MaxAttempts, outcome.Attempts)
}

func TestExecuteRateLimitTokenExhaustion(t *testing.T) {
	client := new(discord.MockDiscordClient)
	cfg := testDispatchConfig()
	cfg.RateLimitCapacity = 1
	cfg.RateLimitRefillPerSec = 0
	cfg.TokenWaitTimeout = 10 * time.Millisecond
	executor := NewActionExecutor(client, cfg)

	client.On("SendMessage", mock.Anything, "chan-1", "first").
		Return("msg-1", nil).Once()

	first, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType:     models.ActionTypeSendMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "content": "first"},
		IdempotencyKey: "task:st_10",
	})
	require.NoError(t, err)
	assert.True(t, first.Succeeded())

	// Bucket is empty and never refills, so the wait times out
	second, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType:     models.ActionTypeSendMessage,
		Payload:        map[string]string{"channel_id": "chan-1", "content": "second"},
		IdempotencyKey: "task:st_11",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusRateLimited, second.Status)
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestExecuteBulkAddRolesFansOut(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	for _, userID := range []string{"u1", "u2", "u3"} {
		client.On("AddRole", mock.Anything, "guild-1", userID, "role-1").
			Return(nil).Once()
	}

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeBulkAddRoles,
		Payload: map[string]string{
			"guild_id": "guild-1",
			"role_id":  "role-1",
			"user_ids": "u1, u2,u3",
		},
		IdempotencyKey: "task:st_20",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	client.AssertExpectations(t)
}

func TestExecuteBulkAddRolesRecordsPartialFailure(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("AddRole", mock.Anything, "guild-1", "u1", "role-1").Return(nil).Once()
	client.On("AddRole", mock.Anything, "guild-1", "u2", "role-1").Return(core.ErrForbidden).Once()
	client.On("AddRole", mock.Anything, "guild-1", "u3", "role-1").Return(nil).Once()

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeBulkAddRoles,
		Payload: map[string]string{
			"guild_id": "guild-1",
			"role_id":  "role-1",
			"user_ids": "u1,u2,u3",
		},
		IdempotencyKey: "task:st_21",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DispatchStatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "member u2")
	// Forbidden is permanent, so the batch runs exactly once
	client.AssertNumberOfCalls(t, "AddRole", 3)
}

func TestExecuteBulkModifyMembers(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	client.On("SetMemberNickname", mock.Anything, "guild-1", "u1", "Helper").Return(nil).Once()
	client.On("TimeoutMember", mock.Anything, "guild-1", "u2", mock.Anything).Return(nil).Once()
	client.On("RemoveTimeout", mock.Anything, "guild-1", "u3").Return(nil).Once()

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeBulkModifyMembers,
		Payload: map[string]string{
			"guild_id": "guild-1",
			"updates": `[{"user_id":"u1","nickname":"Helper"},` +
				`{"user_id":"u2","timeout_minutes":15},` +
				`{"user_id":"u3","timeout_minutes":0}]`,
		},
		IdempotencyKey: "task:st_22",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	client.AssertExpectations(t)
}

func TestExecuteLogActionSkipsPlatform(t *testing.T) {
	client := new(discord.MockDiscordClient)
	executor := NewActionExecutor(client, testDispatchConfig())

	outcome, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType:     models.ActionTypeLog,
		Payload:        map[string]string{"message": "member {user} joined"},
		Placeholders:   map[string]string{"user": "Ann"},
		IdempotencyKey: "rule:ar_4:event:ev_4",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	client.AssertNotCalled(t, "SendMessage")
}

func TestExecuteInvalidRequest(t *testing.T) {
	executor := NewActionExecutor(new(discord.MockDiscordClient), testDispatchConfig())

	_, err := executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType:     models.ActionType("explode"),
		IdempotencyKey: "k",
	})
	assert.True(t, core.IsValidationError(err))

	_, err = executor.Execute(context.Background(), services.ExecuteActionRequest{
		ActionType: models.ActionTypeSendMessage,
		Payload:    map[string]string{"channel_id": "c", "content": "x"},
	})
	assert.True(t, core.IsValidationError(err))
}

func TestRenderPayload(t *testing.T) {
	rendered := RenderPayload(
		map[string]string{
			"content": "Welcome {user} to {server}! React with {emoji}",
			"other":   "keeps {unknown} verbatim",
		},
		map[string]string{"user": "Ann", "server": "Foo", "emoji": "🎉"},
	)

	assert.Equal(t, "Welcome Ann to Foo! React with 🎉", rendered["content"])
	assert.Equal(t, "keeps {unknown} verbatim", rendered["other"])
}
