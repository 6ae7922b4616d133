package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "discordautomation/db/tx"
	"discordautomation/models"
)

type PostgresAutomationRulesRepository struct {
	db     *sqlx.DB
	schema string
}

// DBAutomationRule represents the database schema for the automation_rules table
type DBAutomationRule struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	GuildID       *string   `db:"guild_id"`
	TriggerType   string    `db:"trigger_type"`
	TriggerValue  []byte    `db:"trigger_value"`
	ActionType    string    `db:"action_type"`
	ActionPayload []byte    `db:"action_payload"`
	Enabled       bool      `db:"enabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Column names for automation_rules table
var automationRulesColumns = []string{
	"id",
	"name",
	"guild_id",
	"trigger_type",
	"trigger_value",
	"action_type",
	"action_payload",
	"enabled",
	"created_at",
	"updated_at",
}

func NewPostgresAutomationRulesRepository(db *sqlx.DB, schema string) *PostgresAutomationRulesRepository {
	return &PostgresAutomationRulesRepository{db: db, schema: schema}
}

// dbRuleToModel converts a DBAutomationRule to models.AutomationRule
func dbRuleToModel(dbRule *DBAutomationRule) (*models.AutomationRule, error) {
	rule := &models.AutomationRule{
		ID:          dbRule.ID,
		Name:        dbRule.Name,
		GuildID:     dbRule.GuildID,
		TriggerType: models.TriggerType(dbRule.TriggerType),
		ActionType:  models.ActionType(dbRule.ActionType),
		Enabled:     dbRule.Enabled,
		CreatedAt:   dbRule.CreatedAt,
	}

	if len(dbRule.ActionPayload) > 0 {
		if err := json.Unmarshal(dbRule.ActionPayload, &rule.ActionPayload); err != nil {
			return nil, fmt.Errorf("failed to decode action payload for rule %s: %w", dbRule.ID, err)
		}
	}

	// Populate trigger parameters based on type
	switch rule.TriggerType {
	case models.TriggerTypeMessageContains:
		trigger := &models.MessageContainsTrigger{}
		if err := json.Unmarshal(dbRule.TriggerValue, trigger); err != nil {
			return nil, fmt.Errorf("failed to decode message trigger for rule %s: %w", dbRule.ID, err)
		}
		rule.MessageTrigger = trigger
	case models.TriggerTypeReactionAdded:
		trigger := &models.ReactionAddedTrigger{}
		if err := json.Unmarshal(dbRule.TriggerValue, trigger); err != nil {
			return nil, fmt.Errorf("failed to decode reaction trigger for rule %s: %w", dbRule.ID, err)
		}
		rule.ReactionTrigger = trigger
	case models.TriggerTypeMemberJoin:
		// no trigger parameters
	default:
		return nil, fmt.Errorf("unsupported trigger type: %s for rule_id=%s", rule.TriggerType, dbRule.ID)
	}

	return rule, nil
}

// modelToDBRule converts a models.AutomationRule to DBAutomationRule
func modelToDBRule(rule *models.AutomationRule) (*DBAutomationRule, error) {
	// Validate that trigger type matches parameter presence
	if rule.TriggerType == models.TriggerTypeMessageContains && rule.MessageTrigger == nil {
		return nil, fmt.Errorf("message_contains trigger requires MessageTrigger to be populated")
	}
	if rule.TriggerType == models.TriggerTypeReactionAdded && rule.ReactionTrigger == nil {
		return nil, fmt.Errorf("reaction_added trigger requires ReactionTrigger to be populated")
	}

	dbRule := &DBAutomationRule{
		ID:          rule.ID,
		Name:        rule.Name,
		GuildID:     rule.GuildID,
		TriggerType: string(rule.TriggerType),
		ActionType:  string(rule.ActionType),
		Enabled:     rule.Enabled,
		CreatedAt:   rule.CreatedAt,
	}

	payload, err := json.Marshal(rule.ActionPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action payload: %w", err)
	}
	dbRule.ActionPayload = payload

	switch rule.TriggerType {
	case models.TriggerTypeMessageContains:
		value, err := json.Marshal(rule.MessageTrigger)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message trigger: %w", err)
		}
		dbRule.TriggerValue = value
	case models.TriggerTypeReactionAdded:
		value, err := json.Marshal(rule.ReactionTrigger)
		if err != nil {
			return nil, fmt.Errorf("failed to encode reaction trigger: %w", err)
		}
		dbRule.TriggerValue = value
	case models.TriggerTypeMemberJoin:
		dbRule.TriggerValue = []byte("{}")
	}

	return dbRule, nil
}

func (r *PostgresAutomationRulesRepository) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	db := dbtx.GetTransactional(ctx, r.db)
	dbRule, err := modelToDBRule(rule)
	if err != nil {
		return fmt.Errorf("failed to convert rule to db model: %w", err)
	}

	columnsStr := strings.Join(automationRulesColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.automation_rules (id, name, guild_id, trigger_type, trigger_value, action_type, action_payload, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING %s`, r.schema, columnsStr)

	var returnedDBRule DBAutomationRule
	err = db.QueryRowxContext(ctx, query,
		dbRule.ID, dbRule.Name, dbRule.GuildID, dbRule.TriggerType,
		dbRule.TriggerValue, dbRule.ActionType, dbRule.ActionPayload, dbRule.Enabled).
		StructScan(&returnedDBRule)
	if err != nil {
		return fmt.Errorf("failed to create automation rule: %w", err)
	}

	convertedRule, err := dbRuleToModel(&returnedDBRule)
	if err != nil {
		return fmt.Errorf("failed to convert created rule: %w", err)
	}
	*rule = *convertedRule
	return nil
}

func (r *PostgresAutomationRulesRepository) GetRuleByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.AutomationRule], error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(automationRulesColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.automation_rules
		WHERE id = $1`, columnsStr, r.schema)

	var dbRule DBAutomationRule
	err := db.GetContext(ctx, &dbRule, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return mo.None[*models.AutomationRule](), nil
		}
		return mo.None[*models.AutomationRule](), fmt.Errorf("failed to get automation rule: %w", err)
	}

	convertedRule, err := dbRuleToModel(&dbRule)
	if err != nil {
		return mo.None[*models.AutomationRule](), fmt.Errorf("failed to convert rule: %w", err)
	}
	return mo.Some(convertedRule), nil
}

// ListRulesByTrigger returns rules for a trigger type in creation order,
// so earlier-defined rules dispatch first.
func (r *PostgresAutomationRulesRepository) ListRulesByTrigger(
	ctx context.Context,
	triggerType models.TriggerType,
	enabledOnly bool,
) ([]*models.AutomationRule, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(automationRulesColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.automation_rules
		WHERE trigger_type = $1`, columnsStr, r.schema)
	if enabledOnly {
		query += " AND enabled = true"
	}
	query += " ORDER BY created_at ASC, id ASC"

	var dbRules []DBAutomationRule
	if err := db.SelectContext(ctx, &dbRules, query, string(triggerType)); err != nil {
		return nil, fmt.Errorf("failed to list automation rules: %w", err)
	}

	rules := make([]*models.AutomationRule, 0, len(dbRules))
	for i := range dbRules {
		rule, err := dbRuleToModel(&dbRules[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *PostgresAutomationRulesRepository) ListRules(ctx context.Context) ([]*models.AutomationRule, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	columnsStr := strings.Join(automationRulesColumns, ", ")
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.automation_rules
		ORDER BY created_at ASC, id ASC`, columnsStr, r.schema)

	var dbRules []DBAutomationRule
	if err := db.SelectContext(ctx, &dbRules, query); err != nil {
		return nil, fmt.Errorf("failed to list automation rules: %w", err)
	}

	rules := make([]*models.AutomationRule, 0, len(dbRules))
	for i := range dbRules {
		rule, err := dbRuleToModel(&dbRules[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *PostgresAutomationRulesRepository) SetRuleEnabled(ctx context.Context, id string, enabled bool) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`
		UPDATE %s.automation_rules
		SET enabled = $2, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return false, fmt.Errorf("failed to update automation rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *PostgresAutomationRulesRepository) DeleteRule(ctx context.Context, id string) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)
	query := fmt.Sprintf(`DELETE FROM %s.automation_rules WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete automation rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
