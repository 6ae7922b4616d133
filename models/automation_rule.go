package models

import (
	"time"
)

type TriggerType string

const (
	TriggerTypeMemberJoin      TriggerType = "member_join"
	TriggerTypeMessageContains TriggerType = "message_contains"
	TriggerTypeReactionAdded   TriggerType = "reaction_added"
)

// KnownTriggerTypes lists every trigger type the matcher understands.
var KnownTriggerTypes = []TriggerType{
	TriggerTypeMemberJoin,
	TriggerTypeMessageContains,
	TriggerTypeReactionAdded,
}

type ActionType string

const (
	ActionTypeSendMessage   ActionType = "send_message"
	ActionTypeAssignRole    ActionType = "assign_role"
	ActionTypeRemoveRole    ActionType = "remove_role"
	ActionTypeDeleteMessage ActionType = "delete_message"
	ActionTypeTimeoutMember ActionType = "timeout_member"
	ActionTypeLog           ActionType = "log"

	// Bulk types fan one dispatch out over a member list. They are
	// scheduled task types only, not rule actions.
	ActionTypeBulkAddRoles      ActionType = "bulk_add_roles"
	ActionTypeBulkModifyMembers ActionType = "bulk_modify_members"
)

// KnownActionTypes lists every action type the executor can dispatch.
var KnownActionTypes = []ActionType{
	ActionTypeSendMessage,
	ActionTypeAssignRole,
	ActionTypeRemoveRole,
	ActionTypeDeleteMessage,
	ActionTypeTimeoutMember,
	ActionTypeLog,
	ActionTypeBulkAddRoles,
	ActionTypeBulkModifyMembers,
}

// IsBulkActionType reports whether the action targets a member list.
func IsBulkActionType(t ActionType) bool {
	return t == ActionTypeBulkAddRoles || t == ActionTypeBulkModifyMembers
}

func IsKnownActionType(t ActionType) bool {
	for _, known := range KnownActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

type AutomationRule struct {
	// Common fields
	ID          string      `json:"id"          db:"id"`
	Name        string      `json:"name"        db:"name"`
	GuildID     *string     `json:"guild_id,omitempty" db:"guild_id"`
	TriggerType TriggerType `json:"trigger_type" db:"trigger_type"`

	// Polymorphic trigger parameters - populated based on TriggerType.
	// member_join rules carry no parameters.
	MessageTrigger  *MessageContainsTrigger `json:"message_trigger,omitempty"`
	ReactionTrigger *ReactionAddedTrigger   `json:"reaction_trigger,omitempty"`

	ActionType    ActionType        `json:"action_type"    db:"action_type"`
	ActionPayload map[string]string `json:"action_payload"`
	Enabled       bool              `json:"enabled"        db:"enabled"`
	CreatedAt     time.Time         `json:"created_at"     db:"created_at"`
}

// MessageContainsTrigger matches when the message text contains any of
// the keywords, case-insensitively.
type MessageContainsTrigger struct {
	Keywords []string `json:"keywords"`
}

// ReactionAddedTrigger matches on the normalized emoji representation:
// the raw rune(s) for unicode emoji, "name:id" for custom emoji.
type ReactionAddedTrigger struct {
	Emoji string `json:"emoji"`
}
