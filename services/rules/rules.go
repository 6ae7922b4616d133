package rules

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/samber/mo"

	"discordautomation/core"
	"discordautomation/db"
	"discordautomation/models"
	"discordautomation/services"
)

type AutomationRulesService struct {
	rulesRepo *db.PostgresAutomationRulesRepository
}

func NewAutomationRulesService(repo *db.PostgresAutomationRulesRepository) *AutomationRulesService {
	return &AutomationRulesService{rulesRepo: repo}
}

// validateTrigger checks the trigger type and its parameters jointly.
// An invalid combination is rejected with a ValidationError and never
// reaches the repository.
func validateTrigger(params *services.CreateRuleParams) (*models.MessageContainsTrigger, *models.ReactionAddedTrigger, error) {
	switch params.TriggerType {
	case models.TriggerTypeMessageContains:
		if params.Emoji != "" {
			return nil, nil, core.NewValidationError("emoji", "not allowed for message_contains trigger")
		}
		keywords := make([]string, 0, len(params.Keywords))
		for _, keyword := range params.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				return nil, nil, core.NewValidationError("keywords", "keywords must be non-empty")
			}
			keywords = append(keywords, keyword)
		}
		if len(keywords) == 0 {
			return nil, nil, core.NewValidationError("keywords", "message_contains trigger requires at least one keyword")
		}
		return &models.MessageContainsTrigger{Keywords: keywords}, nil, nil

	case models.TriggerTypeReactionAdded:
		if len(params.Keywords) > 0 {
			return nil, nil, core.NewValidationError("keywords", "not allowed for reaction_added trigger")
		}
		emoji := models.NormalizeEmoji(params.Emoji)
		if emoji == "" {
			return nil, nil, core.NewValidationError("emoji", "reaction_added trigger requires an emoji")
		}
		return nil, &models.ReactionAddedTrigger{Emoji: emoji}, nil

	case models.TriggerTypeMemberJoin:
		if len(params.Keywords) > 0 || params.Emoji != "" {
			return nil, nil, core.NewValidationError("trigger_value", "member_join trigger takes no parameters")
		}
		return nil, nil, nil

	default:
		return nil, nil, core.NewValidationError("trigger_type", fmt.Sprintf("unknown trigger type: %s", params.TriggerType))
	}
}

// validateAction checks the action type and the payload fields it needs.
func validateAction(actionType models.ActionType, payload map[string]string) error {
	if !models.IsKnownActionType(actionType) {
		return core.NewValidationError("action_type", fmt.Sprintf("unknown action type: %s", actionType))
	}
	if models.IsBulkActionType(actionType) {
		return core.NewValidationError("action_type", fmt.Sprintf("%s is a scheduled task type, not a rule action", actionType))
	}

	switch actionType {
	case models.ActionTypeSendMessage:
		if payload["channel_id"] == "" {
			return core.NewValidationError("action_payload", "send_message action requires channel_id")
		}
	case models.ActionTypeAssignRole, models.ActionTypeRemoveRole:
		if payload["role_id"] == "" {
			return core.NewValidationError("action_payload", fmt.Sprintf("%s action requires role_id", actionType))
		}
	}
	return nil
}

func (s *AutomationRulesService) CreateRule(
	ctx context.Context,
	params services.CreateRuleParams,
) (*models.AutomationRule, error) {
	log.Printf("📋 Starting to create automation rule: %s (trigger: %s, action: %s)",
		params.Name, params.TriggerType, params.ActionType)

	if strings.TrimSpace(params.Name) == "" {
		return nil, core.NewValidationError("name", "name cannot be empty")
	}

	messageTrigger, reactionTrigger, err := validateTrigger(&params)
	if err != nil {
		return nil, err
	}
	if err := validateAction(params.ActionType, params.ActionPayload); err != nil {
		return nil, err
	}

	rule := &models.AutomationRule{
		ID:              core.NewID(core.IDPrefixRule),
		Name:            strings.TrimSpace(params.Name),
		GuildID:         params.GuildID,
		TriggerType:     params.TriggerType,
		MessageTrigger:  messageTrigger,
		ReactionTrigger: reactionTrigger,
		ActionType:      params.ActionType,
		ActionPayload:   params.ActionPayload,
		Enabled:         params.Enabled,
	}
	if rule.ActionPayload == nil {
		rule.ActionPayload = map[string]string{}
	}

	if err := s.rulesRepo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create automation rule: %w", err)
	}

	log.Printf("📋 Completed successfully - created automation rule with ID: %s", rule.ID)
	return rule, nil
}

func (s *AutomationRulesService) GetRuleByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.AutomationRule], error) {
	if !core.IsValidULID(id) {
		return mo.None[*models.AutomationRule](), fmt.Errorf("rule id must be a valid ULID")
	}
	maybeRule, err := s.rulesRepo.GetRuleByID(ctx, id)
	if err != nil {
		return mo.None[*models.AutomationRule](), fmt.Errorf("failed to get automation rule: %w", err)
	}
	return maybeRule, nil
}

func (s *AutomationRulesService) ListEnabledRulesByTrigger(
	ctx context.Context,
	triggerType models.TriggerType,
) ([]*models.AutomationRule, error) {
	rules, err := s.rulesRepo.ListRulesByTrigger(ctx, triggerType, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for trigger %s: %w", triggerType, err)
	}
	return rules, nil
}

func (s *AutomationRulesService) ListRules(ctx context.Context) ([]*models.AutomationRule, error) {
	rules, err := s.rulesRepo.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (s *AutomationRulesService) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	log.Printf("📋 Starting to set automation rule %s enabled=%t", id, enabled)
	if !core.IsValidULID(id) {
		return fmt.Errorf("rule id must be a valid ULID")
	}

	updated, err := s.rulesRepo.SetRuleEnabled(ctx, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update automation rule: %w", err)
	}
	if !updated {
		return core.ErrNotFound
	}

	log.Printf("📋 Completed successfully - set rule %s enabled=%t", id, enabled)
	return nil
}

func (s *AutomationRulesService) DeleteRule(ctx context.Context, id string) error {
	log.Printf("📋 Starting to delete automation rule: %s", id)
	if !core.IsValidULID(id) {
		return fmt.Errorf("rule id must be a valid ULID")
	}

	deleted, err := s.rulesRepo.DeleteRule(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete automation rule: %w", err)
	}
	if !deleted {
		return core.ErrNotFound
	}

	log.Printf("📋 Completed successfully - deleted automation rule: %s", id)
	return nil
}
