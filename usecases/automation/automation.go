// Package automation matches normalized gateway events against stored
// automation rules and dispatches the actions of every rule that fires.
package automation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"discordautomation/models"
	"discordautomation/services"
)

// AutomationUseCase is the trigger matcher. One event in, zero or more
// dispatches out, evaluated against the enabled rules for the event's
// trigger type in rule creation order.
type AutomationUseCase struct {
	rulesService   services.AutomationRulesService
	actionExecutor services.ActionExecutorService
}

func NewAutomationUseCase(
	rulesService services.AutomationRulesService,
	actionExecutor services.ActionExecutorService,
) *AutomationUseCase {
	return &AutomationUseCase{
		rulesService:   rulesService,
		actionExecutor: actionExecutor,
	}
}

// ProcessPlatformEvent evaluates one event against the rule set. A rule
// that fails to match, dispatch or even parse never affects the other
// rules: evaluation always continues with the next rule.
func (u *AutomationUseCase) ProcessPlatformEvent(ctx context.Context, event models.PlatformEvent) error {
	log.Printf("📋 Starting to process %s event %s from user %s in guild %s",
		event.Type, event.ID, event.UserID, event.GuildID)

	rules, err := u.rulesService.ListEnabledRulesByTrigger(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to list enabled rules for trigger %s: %w", event.Type, err)
	}
	if len(rules) == 0 {
		log.Printf("🔍 No enabled rules for trigger %s - ignoring event %s", event.Type, event.ID)
		return nil
	}

	matched := 0
	for _, rule := range rules {
		fires, err := ruleMatches(rule, event)
		if err != nil {
			log.Printf("⚠️ Skipping malformed rule %s (%s): %v", rule.ID, rule.Name, err)
			continue
		}
		if !fires {
			continue
		}
		matched++

		outcome, err := u.actionExecutor.Execute(ctx, services.ExecuteActionRequest{
			ActionType:     rule.ActionType,
			Payload:        dispatchPayload(rule, event),
			Placeholders:   eventPlaceholders(event),
			IdempotencyKey: fmt.Sprintf("rule:%s:event:%s", rule.ID, event.ID),
		})
		if err != nil {
			log.Printf("❌ Rule %s (%s) dispatch rejected: %v", rule.ID, rule.Name, err)
			continue
		}
		if !outcome.Succeeded() {
			log.Printf("❌ Rule %s (%s) action %s failed: %s",
				rule.ID, rule.Name, rule.ActionType, outcome.Error)
			continue
		}
		log.Printf("✅ Rule %s (%s) fired for event %s", rule.ID, rule.Name, event.ID)
	}

	log.Printf("📋 Completed event %s: %d/%d rule(s) matched", event.ID, matched, len(rules))
	return nil
}

// ruleMatches decides whether a rule fires for an event. The trigger
// types already agree when this is called; what remains is guild scoping
// and the trigger parameters.
func ruleMatches(rule *models.AutomationRule, event models.PlatformEvent) (bool, error) {
	if rule.GuildID != nil && *rule.GuildID != event.GuildID {
		return false, nil
	}

	switch rule.TriggerType {
	case models.TriggerTypeMemberJoin:
		return true, nil
	case models.TriggerTypeMessageContains:
		if rule.MessageTrigger == nil || len(rule.MessageTrigger.Keywords) == 0 {
			return false, fmt.Errorf("message_contains rule has no keywords")
		}
		text := strings.ToLower(event.MessageText)
		for _, keyword := range rule.MessageTrigger.Keywords {
			if keyword != "" && strings.Contains(text, keyword) {
				return true, nil
			}
		}
		return false, nil
	case models.TriggerTypeReactionAdded:
		if rule.ReactionTrigger == nil || rule.ReactionTrigger.Emoji == "" {
			return false, fmt.Errorf("reaction_added rule has no emoji")
		}
		return rule.ReactionTrigger.Emoji == models.NormalizeEmoji(event.Emoji), nil
	default:
		return false, fmt.Errorf("unknown trigger type: %s", rule.TriggerType)
	}
}

// dispatchPayload merges the triggering event's context into the rule's
// action payload. The rule wins on conflicts so an explicit channel_id
// can redirect a welcome message away from the triggering channel.
func dispatchPayload(rule *models.AutomationRule, event models.PlatformEvent) map[string]string {
	payload := make(map[string]string, len(rule.ActionPayload)+4)
	if event.GuildID != "" {
		payload["guild_id"] = event.GuildID
	}
	if event.UserID != "" {
		payload["user_id"] = event.UserID
	}
	if event.ChannelID != "" {
		payload["channel_id"] = event.ChannelID
	}
	if event.MessageID != "" {
		payload["message_id"] = event.MessageID
	}
	for key, value := range rule.ActionPayload {
		payload[key] = value
	}
	return payload
}

// eventPlaceholders builds the substitution context for action payloads.
// Fields the event does not carry are omitted so their tokens stay
// verbatim in the rendered payload instead of vanishing silently.
func eventPlaceholders(event models.PlatformEvent) map[string]string {
	placeholders := make(map[string]string, 6)
	set := func(name, value string) {
		if value != "" {
			placeholders[name] = value
		}
	}
	set("user", event.Username)
	set("username", event.Username)
	set("user_id", event.UserID)
	set("server", event.GuildName)
	set("channel", event.ChannelID)
	set("emoji", event.Emoji)
	return placeholders
}
