package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"discordautomation/clients"
	"discordautomation/config"
	"discordautomation/core"
	"discordautomation/models"
	"discordautomation/services"
)

// placeholderPattern matches substitution tokens like {user} or {server}
var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// ActionExecutor dispatches actions through the platform client. All
// producers (trigger matcher, task scheduler, auto-moderator) share one
// executor instance, which is what enforces a single rate limit and a
// single idempotency ledger. Safe for concurrent use: the limiter and
// the ledger are concurrency-safe on their own, and concurrent calls
// with the same idempotency key are coalesced onto one flight, so the
// ledger's check-then-add never lets two duplicates dispatch. No lock
// is ever held across a platform call.
type ActionExecutor struct {
	discordClient clients.DiscordClient
	limiter       *rate.Limiter
	ledger        *expirable.LRU[string, *models.DispatchOutcome]
	inflight      singleflight.Group
	cfg           config.DispatchConfig
}

func NewActionExecutor(discordClient clients.DiscordClient, cfg config.DispatchConfig) *ActionExecutor {
	return &ActionExecutor{
		discordClient: discordClient,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimitRefillPerSec), cfg.RateLimitCapacity),
		ledger:        expirable.NewLRU[string, *models.DispatchOutcome](cfg.LedgerCapacity, nil, cfg.LedgerRetention),
		cfg:           cfg,
	}
}

// RenderPayload resolves placeholder tokens in every payload value
// against the given context. Unresolved tokens are left verbatim and
// logged as a warning - they never fail the dispatch.
func RenderPayload(payload, placeholders map[string]string) map[string]string {
	rendered := make(map[string]string, len(payload))
	for key, value := range payload {
		rendered[key] = placeholderPattern.ReplaceAllStringFunc(value, func(token string) string {
			name := token[1 : len(token)-1]
			if replacement, ok := placeholders[name]; ok {
				return replacement
			}
			log.Printf("⚠️ Unresolved placeholder %s in payload field %s - leaving verbatim", token, key)
			return token
		})
	}
	return rendered
}

// Execute dispatches one action. The returned outcome always describes
// the result; the error is non-nil only for malformed requests that
// never reached dispatch.
func (e *ActionExecutor) Execute(
	ctx context.Context,
	req services.ExecuteActionRequest,
) (*models.DispatchOutcome, error) {
	if !models.IsKnownActionType(req.ActionType) {
		return nil, core.NewValidationError("action_type", fmt.Sprintf("unknown action type: %s", req.ActionType))
	}
	if req.IdempotencyKey == "" {
		return nil, core.NewValidationError("idempotency_key", "idempotency key cannot be empty")
	}

	// Concurrent duplicates (the gateway runs handlers in separate
	// goroutines and delivery is at-least-once) join one flight and
	// share its outcome instead of racing past the ledger check.
	value, _, _ := e.inflight.Do(req.IdempotencyKey, func() (interface{}, error) {
		return e.executeOnce(ctx, req), nil
	})
	return value.(*models.DispatchOutcome), nil
}

func (e *ActionExecutor) executeOnce(ctx context.Context, req services.ExecuteActionRequest) *models.DispatchOutcome {
	// Ledger check: a successful dispatch within the retention window
	// makes this call a no-op (at-most-once delivery for retried ticks
	// and redelivered events)
	if cached, ok := e.ledger.Get(req.IdempotencyKey); ok && cached.Succeeded() {
		log.Printf("⏭️ Dispatch %s already executed at %s - returning cached outcome",
			req.IdempotencyKey, cached.DispatchedAt.Format(time.RFC3339))
		duplicate := *cached
		duplicate.Deduplicated = true
		return &duplicate
	}

	payload := RenderPayload(req.Payload, req.Placeholders)

	outcome := &models.DispatchOutcome{
		ActionType:     req.ActionType,
		IdempotencyKey: req.IdempotencyKey,
		DispatchedAt:   time.Now().UTC(),
	}

	operation := func() error {
		outcome.Attempts++

		// The log action has no outbound call, so it bypasses the limiter
		if req.ActionType == models.ActionTypeLog {
			log.Printf("🔔 Action log: %s (key: %s)", payload["message"], req.IdempotencyKey)
			return nil
		}

		// Bounded wait for a rate-limit token. Exhaustion past the wait
		// budget fails the dispatch rather than queueing forever.
		waitCtx, cancelWait := context.WithTimeout(ctx, e.cfg.TokenWaitTimeout)
		err := e.limiter.Wait(waitCtx)
		cancelWait()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("rate limit token wait exhausted: %w", core.ErrRateLimited))
		}

		// Bounded wait for the platform response
		platformCtx, cancelPlatform := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
		defer cancelPlatform()

		if err := e.dispatch(platformCtx, req.ActionType, payload); err != nil {
			if core.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = e.cfg.BackoffBase
	retryPolicy := backoff.WithContext(
		backoff.WithMaxRetries(exponential, uint64(e.cfg.MaxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, retryPolicy); err != nil {
		outcome.Error = err.Error()
		if errors.Is(err, core.ErrRateLimited) {
			outcome.Status = models.DispatchStatusRateLimited
		} else {
			outcome.Status = models.DispatchStatusFailed
		}
		log.Printf("❌ Dispatch %s (%s) failed after %d attempt(s): %v",
			req.IdempotencyKey, req.ActionType, outcome.Attempts, err)
		return outcome
	}

	outcome.Status = models.DispatchStatusSuccess
	e.ledger.Add(req.IdempotencyKey, outcome)
	log.Printf("✅ Dispatch %s (%s) succeeded after %d attempt(s)",
		req.IdempotencyKey, req.ActionType, outcome.Attempts)
	return outcome
}

// dispatch makes the single platform call for an action type. The
// payload has placeholders already resolved.
func (e *ActionExecutor) dispatch(ctx context.Context, actionType models.ActionType, payload map[string]string) error {
	switch actionType {
	case models.ActionTypeSendMessage:
		_, err := e.discordClient.SendMessage(ctx, payload["channel_id"], payload["content"])
		return err
	case models.ActionTypeAssignRole:
		return e.discordClient.AddRole(ctx, payload["guild_id"], payload["user_id"], payload["role_id"])
	case models.ActionTypeRemoveRole:
		return e.discordClient.RemoveRole(ctx, payload["guild_id"], payload["user_id"], payload["role_id"])
	case models.ActionTypeDeleteMessage:
		return e.discordClient.DeleteMessage(ctx, payload["channel_id"], payload["message_id"])
	case models.ActionTypeTimeoutMember:
		duration := e.timeoutDuration(payload)
		return e.discordClient.TimeoutMember(ctx, payload["guild_id"], payload["user_id"], time.Now().UTC().Add(duration))
	case models.ActionTypeBulkAddRoles:
		return e.bulkAddRoles(ctx, payload)
	case models.ActionTypeBulkModifyMembers:
		return e.bulkModifyMembers(ctx, payload)
	default:
		return core.NewValidationError("action_type", fmt.Sprintf("unknown action type: %s", actionType))
	}
}

// bulkAddRoles fans one role assignment out over a member list. One
// member's failure never stops the rest; failures are joined so retry
// classification still sees the underlying sentinels. Re-running a
// partially applied batch is safe, adding an already-held role is a
// platform no-op.
func (e *ActionExecutor) bulkAddRoles(ctx context.Context, payload map[string]string) error {
	userIDs := models.SplitIDList(payload["user_ids"])
	var errs []error
	for _, userID := range userIDs {
		if err := e.discordClient.AddRole(ctx, payload["guild_id"], userID, payload["role_id"]); err != nil {
			log.Printf("⚠️ Bulk role add failed for member %s: %v", userID, err)
			errs = append(errs, fmt.Errorf("member %s: %w", userID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("bulk add roles: %d of %d member(s) failed: %w",
			len(errs), len(userIDs), errors.Join(errs...))
	}
	log.Printf("✅ Bulk role add applied to %d member(s)", len(userIDs))
	return nil
}

// bulkModifyMembers applies per-member nickname and timeout updates.
func (e *ActionExecutor) bulkModifyMembers(ctx context.Context, payload map[string]string) error {
	updates, err := models.ParseMemberUpdates(payload["updates"])
	if err != nil {
		return core.NewValidationError("updates", err.Error())
	}

	var errs []error
	for _, update := range updates {
		if err := e.modifyMember(ctx, payload["guild_id"], update); err != nil {
			log.Printf("⚠️ Bulk member update failed for %s: %v", update.UserID, err)
			errs = append(errs, fmt.Errorf("member %s: %w", update.UserID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("bulk modify members: %d of %d update(s) failed: %w",
			len(errs), len(updates), errors.Join(errs...))
	}
	log.Printf("✅ Bulk member update applied to %d member(s)", len(updates))
	return nil
}

func (e *ActionExecutor) modifyMember(ctx context.Context, guildID string, update models.MemberUpdate) error {
	if update.Nickname != nil {
		if err := e.discordClient.SetMemberNickname(ctx, guildID, update.UserID, *update.Nickname); err != nil {
			return err
		}
	}
	if update.TimeoutMinutes != nil {
		if *update.TimeoutMinutes <= 0 {
			return e.discordClient.RemoveTimeout(ctx, guildID, update.UserID)
		}
		until := time.Now().UTC().Add(time.Duration(*update.TimeoutMinutes * float64(time.Minute)))
		return e.discordClient.TimeoutMember(ctx, guildID, update.UserID, until)
	}
	return nil
}

// timeoutDuration reads the timeout length from the payload, falling
// back to 10 minutes when absent or malformed.
func (e *ActionExecutor) timeoutDuration(payload map[string]string) time.Duration {
	raw := payload["duration"]
	if raw == "" {
		return 10 * time.Minute
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		log.Printf("⚠️ Invalid timeout duration %q - using default 10m", raw)
		return 10 * time.Minute
	}
	return duration
}
