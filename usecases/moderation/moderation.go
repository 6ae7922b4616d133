// Package moderation runs the auto-moderator: it scans recent channel
// history for spam patterns and proposes (or enforces) per-author
// actions based on the configured thresholds.
package moderation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"discordautomation/clients"
	"discordautomation/config"
	"discordautomation/models"
	"discordautomation/patterns"
	"discordautomation/services"
)

type ModerationUseCase struct {
	discordClient  clients.DiscordClient
	actionExecutor services.ActionExecutorService
	metricsService services.MetricsService
	cfg            config.AutoModConfig
}

func NewModerationUseCase(
	discordClient clients.DiscordClient,
	actionExecutor services.ActionExecutorService,
	metricsService services.MetricsService,
	cfg config.AutoModConfig,
) *ModerationUseCase {
	return &ModerationUseCase{
		discordClient:  discordClient,
		actionExecutor: actionExecutor,
		metricsService: metricsService,
		cfg:            cfg,
	}
}

// EvaluateChannel analyzes the channel's recent history and proposes one
// action per flagged author. In dry_run mode the proposals are returned
// without any platform call; in enforce mode each proposal is submitted
// through the executor, with per-author isolation.
func (u *ModerationUseCase) EvaluateChannel(
	ctx context.Context,
	guildID, channelID string,
	mode models.ModerationMode,
) ([]*models.ModerationAction, *models.PatternAnalysisResult, error) {
	log.Printf("📋 Starting auto-mod evaluation of channel %s (mode: %s)", channelID, mode)

	history, err := u.discordClient.GetChannelMessages(ctx, channelID, u.cfg.WindowLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch channel history: %w", err)
	}

	window := make([]models.ChannelMessage, 0, len(history))
	for _, msg := range history {
		// Bot traffic never counts toward spam scores
		if msg.AuthorIsBot {
			continue
		}
		window = append(window, models.ChannelMessage{
			ID:             msg.ID,
			ChannelID:      msg.ChannelID,
			AuthorID:       msg.AuthorID,
			AuthorUsername: msg.AuthorUsername,
			Content:        msg.Content,
			MentionCount:   msg.MentionCount,
			CreatedAt:      msg.Timestamp,
		})
	}

	result := patterns.Analyze(channelID, window, u.cfg)
	log.Printf("🔍 Analyzed %d message(s) in channel %s: score %.2f, %d flagged author(s)",
		result.MessagesScanned, channelID, result.Score, len(result.Authors))

	actions := u.proposeActions(ctx, channelID, result)
	if len(actions) == 0 {
		log.Printf("✅ Channel %s is clean - no actions proposed", channelID)
		return nil, result, nil
	}

	if mode == models.ModerationModeDryRun {
		log.Printf("🔍 Dry run: %d action(s) proposed for channel %s, none enforced", len(actions), channelID)
		return actions, result, nil
	}

	for _, action := range actions {
		if err := u.enforceAction(ctx, guildID, action); err != nil {
			action.Error = err.Error()
			log.Printf("❌ Failed to enforce %s against author %s: %v", action.Kind, action.AuthorID, err)
			continue
		}
		action.Enforced = true
		u.trackAudit(ctx, models.MetricAutoModEnforced, action)
	}

	log.Printf("📋 Completed auto-mod evaluation of channel %s: %d action(s)", channelID, len(actions))
	return actions, result, nil
}

// proposeActions turns flagged authors into one action each: a timeout
// for the worst offenders, message deletion for the rest. Authors below
// the delete threshold are left alone.
func (u *ModerationUseCase) proposeActions(
	ctx context.Context,
	channelID string,
	result *models.PatternAnalysisResult,
) []*models.ModerationAction {
	var actions []*models.ModerationAction
	for authorID, author := range result.Authors {
		if author.Score < u.cfg.DeleteThreshold {
			continue
		}
		kind := models.ModerationActionDeleteMessages
		if author.Score >= u.cfg.TimeoutThreshold {
			kind = models.ModerationActionTimeout
		}
		action := &models.ModerationAction{
			ChannelID:  channelID,
			AuthorID:   authorID,
			Kind:       kind,
			Score:      author.Score,
			Indicators: author.Indicators,
			MessageIDs: author.MessageIDs,
		}
		actions = append(actions, action)
		u.trackAudit(ctx, models.MetricAutoModProposed, action)
	}

	// Stable output order for callers and tests
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].AuthorID < actions[j].AuthorID
	})
	return actions
}

func (u *ModerationUseCase) enforceAction(ctx context.Context, guildID string, action *models.ModerationAction) error {
	switch action.Kind {
	case models.ModerationActionTimeout:
		outcome, err := u.actionExecutor.Execute(ctx, services.ExecuteActionRequest{
			ActionType: models.ActionTypeTimeoutMember,
			Payload: map[string]string{
				"guild_id": guildID,
				"user_id":  action.AuthorID,
				"duration": u.cfg.TimeoutDuration.String(),
			},
			IdempotencyKey: fmt.Sprintf("automod:timeout:%s:%s:%s",
				action.ChannelID, action.AuthorID, lastMessageID(action)),
		})
		if err != nil {
			return err
		}
		if !outcome.Succeeded() {
			return fmt.Errorf("timeout dispatch failed: %s", outcome.Error)
		}
		return nil
	case models.ModerationActionDeleteMessages:
		var failures []string
		for _, messageID := range action.MessageIDs {
			outcome, err := u.actionExecutor.Execute(ctx, services.ExecuteActionRequest{
				ActionType: models.ActionTypeDeleteMessage,
				Payload: map[string]string{
					"channel_id": action.ChannelID,
					"message_id": messageID,
				},
				IdempotencyKey: fmt.Sprintf("automod:delete:%s:%s", action.ChannelID, messageID),
			})
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", messageID, err))
				continue
			}
			if !outcome.Succeeded() {
				failures = append(failures, fmt.Sprintf("%s: %s", messageID, outcome.Error))
			}
		}
		if len(failures) > 0 {
			return fmt.Errorf("failed to delete %d/%d message(s): %s",
				len(failures), len(action.MessageIDs), strings.Join(failures, "; "))
		}
		return nil
	default:
		return fmt.Errorf("unknown moderation action kind: %s", action.Kind)
	}
}

// trackAudit records a durable sample of what the moderator proposed or
// enforced. Audit failures are logged but never block moderation.
func (u *ModerationUseCase) trackAudit(ctx context.Context, metricName string, action *models.ModerationAction) {
	indicators := make([]string, len(action.Indicators))
	for i, ind := range action.Indicators {
		indicators[i] = string(ind)
	}
	_, err := u.metricsService.TrackMetric(ctx, metricName, decimal.NewFromFloat(action.Score), map[string]string{
		"channel_id": action.ChannelID,
		"author_id":  action.AuthorID,
		"kind":       string(action.Kind),
		"indicators": strings.Join(indicators, ","),
	})
	if err != nil {
		log.Printf("⚠️ Failed to track %s for author %s: %v", metricName, action.AuthorID, err)
	}
}

func lastMessageID(action *models.ModerationAction) string {
	if len(action.MessageIDs) == 0 {
		return "none"
	}
	return action.MessageIDs[len(action.MessageIDs)-1]
}
